// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nvfs

import "github.com/pkg/errors"

// FileAlloc is a single allocation-table entry: a file's size and the LBA
// of its chain's head block. Head == NoLBA iff the slot is empty, in which
// case Size must be 0 (spec §3 invariant 2).
type FileAlloc struct {
	Size uint32
	Head LBA
}

func (f FileAlloc) encode() []byte {
	b := make([]byte, fileAllocSize)
	b[0] = byte(f.Size >> 24)
	b[1] = byte(f.Size >> 16)
	b[2] = byte(f.Size >> 8)
	b[3] = byte(f.Size)
	copy(b[4:], encodeLBA(f.Head))
	return b
}

func decodeFileAlloc(b []byte) FileAlloc {
	size := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return FileAlloc{Size: size, Head: decodeLBA(b[4:])}
}

// slotOffset returns the medium offset of allocation-table slot i
// (0..MaxFiles inclusive; MaxFiles is the free-list head slot).
func (e *Engine) slotOffset(i int) int64 {
	return e.cfg.FSStart + e.cfg.tableOffset() + int64(i)*fileAllocSize
}

// loadTable bulk-reads the allocation table from the medium into RAM
// (spec §4.5 load()).
func (e *Engine) loadTable() error {
	n := e.cfg.MaxFiles + 1
	raw, err := e.medium.ReadBytes(e.slotOffset(0), n*fileAllocSize)
	if err != nil {
		return errors.Wrap(err, "loadTable")
	}

	e.table = make([]FileAlloc, n)
	for i := 0; i < n; i++ {
		e.table[i] = decodeFileAlloc(raw[i*fileAllocSize : (i+1)*fileAllocSize])
	}
	return nil
}

// writeTable bulk-writes the whole in-RAM table to the medium. Used only
// by Format, which legitimately rewrites the whole table in one pass; the
// hot path uses mirrorSlot/mirrorFreeHead instead.
func (e *Engine) writeTable() error {
	n := e.cfg.MaxFiles + 1
	raw := make([]byte, n*fileAllocSize)
	for i := 0; i < n; i++ {
		copy(raw[i*fileAllocSize:], e.table[i].encode())
	}
	return errors.Wrap(e.medium.WriteBytes(e.slotOffset(0), raw), "writeTable")
}

// mirrorSlot updates only the bytes of file slot f on the medium (spec
// §4.5 mirror_slot).
func (e *Engine) mirrorSlot(f int) error {
	return errors.Wrapf(e.medium.UpdateBytes(e.slotOffset(f), e.table[f].encode()), "mirrorSlot(%d)", f)
}

// mirrorFreeHead updates only the bytes of the trailing free-list-head
// slot (spec §4.5 mirror_free_head).
func (e *Engine) mirrorFreeHead() error {
	return e.mirrorSlot(e.cfg.MaxFiles)
}

// wrapID applies spec §3 invariant 6 / §4.8: identifiers are taken modulo
// MaxFiles, lossily and without error. A diagnostic is emitted when
// wrapping actually changes the value.
func (e *Engine) wrapID(id int) int {
	w := id % e.cfg.MaxFiles
	if w < 0 {
		w += e.cfg.MaxFiles
	}
	if w != id {
		e.diag.Debugf(2, "identifier %d wrapped to %d (mod %d)", id, w, e.cfg.MaxFiles)
	}
	return w
}
