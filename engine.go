// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nvfs implements a miniature persistent filesystem engine for a
// small byte-addressable non-volatile medium with limited per-byte write
// endurance. Files are identified by small integers and stored as chains
// of fixed-size blocks linked through an in-medium "next" pointer kept
// inside each block; a statically located allocation table at the start
// of the medium maps each identifier to the head of its chain and its
// length.
//
// The design is single-threaded and cooperative (spec §5): every public
// Engine method runs to completion atomically with respect to the others,
// and nothing here is safe for concurrent use from multiple goroutines
// without external serialization.
package nvfs

import "github.com/pkg/errors"

// FormatMode selects how aggressively Format rewrites the medium (spec
// §4.6).
type FormatMode int

const (
	// FormatQuick relinks the initial free chain without touching block
	// payloads.
	FormatQuick FormatMode = iota

	// FormatFull additionally zeroes every block's payload.
	FormatFull

	// FormatWipe first zeroes every dword of the whole filesystem region
	// (destructive, slow, full wear cost), then proceeds as FormatFull.
	FormatWipe
)

// Engine is the explicit, caller-owned state a free function/global would
// otherwise have held: the cached allocation table and the free-list head
// it terminates with (spec §9's re-architecture away from process-wide
// mutable state). Construct one with NewEngine and call Init before any
// other method.
type Engine struct {
	medium Medium
	cfg    Config
	table  []FileAlloc
	diag   DiagSink
}

// NewEngine returns an Engine bound to medium and cfg. diag may be nil, in
// which case diagnostics are discarded (NopDiagSink).
func NewEngine(medium Medium, cfg Config, diag DiagSink) *Engine {
	if diag == nil {
		diag = NopDiagSink{}
	}
	return &Engine{medium: medium, cfg: cfg, diag: diag}
}

// SetDebug adjusts the verbosity of diag, if it exposes a SetLevel method
// (ZapDiagSink does); otherwise it is a no-op. level follows spec §6's
// 0..4 scale.
func (e *Engine) SetDebug(level int) {
	if s, ok := e.diag.(interface{ SetLevel(int) }); ok {
		s.SetLevel(level)
	}
}

// Init reads the stored metadata header. If any field differs from cfg, a
// Quick format is triggered (spec §4.7). It then bulk-reads the
// allocation table into RAM.
func (e *Engine) Init() error {
	raw, err := e.medium.ReadBytes(e.cfg.FSStart, headerSize)
	mismatched := err != nil
	if err == nil {
		mismatched = !decodeHeader(raw).matches(e.cfg)
	}

	if mismatched {
		e.diag.Debugf(1, "Init: metadata mismatch, quick formatting")
		if err := e.Format(FormatQuick); err != nil {
			return err
		}
		return nil
	}

	return e.loadTable()
}

// Format rebuilds the free chain and the allocation table, then writes
// the metadata header last, so that an interrupted first format (or one
// for a changed Config) leaves a medium that still fails the header match
// on the next Init rather than one that passes it with a half-built table
// (spec §4.6). Reformatting a medium whose header already matches leaves
// that header valid throughout.
func (e *Engine) Format(mode FormatMode) error {
	if mode == FormatWipe {
		if err := e.wipeRegion(); err != nil {
			return errors.Wrap(err, "Format: wipe")
		}
	}

	n := e.cfg.numBlocks()
	full := mode == FormatFull || mode == FormatWipe
	zero := make([]byte, e.cfg.dataSize())
	for i := int64(0); i < n; i++ {
		lba := LBA(i)
		var next LBA
		if i == 0 {
			next = NoLBA
		} else {
			next = LBA(i - 1)
		}

		if full {
			block := make([]byte, e.cfg.BlockSize)
			copy(block[0:lbaSize], encodeLBA(next))
			copy(block[lbaSize:], zero)
			if err := e.medium.WriteBytes(e.cfg.blockPtr(lba), block); err != nil {
				return errors.Wrapf(err, "Format: block %d", lba)
			}
			continue
		}

		if err := e.relink(lba, next); err != nil {
			return errors.Wrapf(err, "Format: relink block %d", lba)
		}
	}

	e.table = make([]FileAlloc, e.cfg.MaxFiles+1)
	for i := range e.table {
		e.table[i] = FileAlloc{Size: 0, Head: NoLBA}
	}
	freeHead := NoLBA
	if n > 0 {
		freeHead = LBA(n - 1)
	}
	e.table[e.cfg.MaxFiles] = FileAlloc{Size: 0, Head: freeHead}

	if err := e.writeTable(); err != nil {
		return err
	}

	return errors.Wrap(e.medium.WriteBytes(e.cfg.FSStart, headerOf(e.cfg).encode()), "Format: header")
}

// wipeRegion zeroes every dword of the filesystem region, the destructive
// full-cost clear used as the first step of FormatWipe and by the public
// Wipe operation.
func (e *Engine) wipeRegion() error {
	total := e.cfg.FSSize
	for off := int64(0); off < total; off += 4 {
		if err := e.medium.WriteDwordZero(e.cfg.FSStart + off); err != nil {
			return err
		}
	}
	return nil
}

// Wipe is the public diagnostic of spec §6: an explicit, destructive,
// full-wear-cost zeroing of the filesystem region followed by a full
// reformat, independent of whatever Format modes a caller might otherwise
// choose.
func (e *Engine) Wipe() error {
	return e.Format(FormatWipe)
}

// Delete wraps id modulo MaxFiles, returns the entire chain (if any) to
// the free list, and clears the table slot (spec §4.12). Delete is
// idempotent: deleting an already-empty slot is a no-op beyond the
// identifier wrap diagnostic.
func (e *Engine) Delete(id int) error {
	f := e.wrapID(id)
	if e.table[f].Head != NoLBA {
		if err := e.unlink(e.table[f].Head); err != nil {
			return errors.Wrap(err, "Delete")
		}
		if err := e.mirrorFreeHead(); err != nil {
			return err
		}
	}

	e.table[f] = FileAlloc{Size: 0, Head: NoLBA}
	return e.mirrorSlot(f)
}

// DumpReport is the structured result of Dump, listing every occupied
// file slot and the free list's length.
type DumpReport struct {
	Files     []DumpFile
	FreeLen   int
	FreeHead  LBA
	NumBlocks int64
}

// DumpFile is one allocation-table entry in a DumpReport.
type DumpFile struct {
	ID       int
	Size     uint32
	Head     LBA
	ChainLen int
}

// Dump reports, for every occupied file slot, its (id, size, chain
// length, head LBA), and the free list's own length — supplementing the
// distilled spec with the human-readable table dump small embedded
// filesystems typically ship for field debugging. The report is returned
// for programmatic use; only a one-line summary (file count, free-list
// length, total blocks) is emitted through the DiagSink at level 0.
func (e *Engine) Dump() (DumpReport, error) {
	rep := DumpReport{FreeHead: e.freeHead(), NumBlocks: e.cfg.numBlocks()}

	for i := 0; i < e.cfg.MaxFiles; i++ {
		slot := e.table[i]
		if slot.Head == NoLBA {
			continue
		}
		n, err := e.chainLength(slot.Head)
		if err != nil {
			return rep, err
		}
		rep.Files = append(rep.Files, DumpFile{ID: i, Size: slot.Size, Head: slot.Head, ChainLen: n})
	}

	n, err := e.chainLength(e.freeHead())
	if err != nil {
		return rep, err
	}
	rep.FreeLen = n

	e.diag.Debugf(0, "dump: %d file(s), free list %d block(s) of %d total", len(rep.Files), rep.FreeLen, rep.NumBlocks)
	return rep, nil
}
