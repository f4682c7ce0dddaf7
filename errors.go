// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nvfs

import "fmt"

// ErrINVAL reports an invalid argument passed to a public or internal
// operation, analogous to errno EINVAL.
type ErrINVAL struct {
	Msg string
	Arg interface{}
}

func (e *ErrINVAL) Error() string { return fmt.Sprintf("%s: %v", e.Msg, e.Arg) }

// ErrPERM reports an operation attempted in a context it is not permitted,
// analogous to errno EPERM. Used for wrong-mode handle operations (spec §7).
type ErrPERM struct{ Msg string }

func (e *ErrPERM) Error() string { return e.Msg }

// ErrCorrupt reports an on-medium inconsistency detected while walking a
// chain or decoding the allocation table: an out-of-range LBA, a chain that
// fails to terminate within MaxBlocksPerFile steps, or similar. These are
// the "illegal sequence" errors of the teacher's ErrILSEQ.
type ErrCorrupt struct {
	Op  string
	LBA LBA
}

func (e *ErrCorrupt) Error() string { return fmt.Sprintf("%s: corrupt chain at lba %d", e.Op, e.LBA) }

// ErrNotFound reports open_read on an identifier with an empty table slot
// (spec §7, §4.8). It is diagnostic, not fatal: open_read still returns a
// handle, whose subsequent Read will fail with ErrNullHandle.
type ErrNotFound struct{ ID int }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("file %d: not found", e.ID) }

// ErrNullHandle reports a Read on a handle whose first block is out of
// range, i.e. opened against an empty file (spec §4.11).
type ErrNullHandle struct{}

func (e *ErrNullHandle) Error() string { return "null handle" }

// ErrFull reports take_head invoked with an empty free list (spec §4.3,
// §7). Write stops at the blocks it could take, keeps what it wrote, and
// returns this error unwrapped alongside the number of bytes consumed.
type ErrFull struct{}

func (e *ErrFull) Error() string { return "medium full" }

// ErrOversize reports a write whose requested block count exceeds
// MaxBlocksPerFile (spec §4.9, §7). The write is truncated, not rejected;
// this error is informational, returned alongside the truncated byte count.
type ErrOversize struct {
	Requested int
	Max       int
}

func (e *ErrOversize) Error() string {
	return fmt.Sprintf("write needs %d blocks, max per file is %d: truncated", e.Requested, e.Max)
}

// ErrWrongMode reports an operation attempted against a handle opened in
// an incompatible mode, e.g. Write on a Read handle (spec §4.9, §7).
type ErrWrongMode struct {
	Op   string
	Mode Mode
}

func (e *ErrWrongMode) Error() string { return fmt.Sprintf("%s: wrong handle mode %s", e.Op, e.Mode) }

// ErrAppendOverflow reports an Append to a file whose existing chain
// already uses all MaxBlocksPerFile blocks, leaving no block for new data.
// Write refuses such an append outright, consuming no bytes and leaving
// the stored file unchanged.
type ErrAppendOverflow struct{ ID int }

func (e *ErrAppendOverflow) Error() string {
	return fmt.Sprintf("file %d: existing chain already at MaxBlocksPerFile, append refused", e.ID)
}
