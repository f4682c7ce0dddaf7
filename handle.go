// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nvfs

import "github.com/cznic/mathutil"

// Handle is per-open bookkeeping (spec §3): identifier, mode, running
// size, and the first/last block of the chain being accumulated. It is a
// plain value the caller owns, not an out-parameter — spec §9's
// re-architecture away from the source's out-parameter handles. Close
// takes a pointer and invalidates it; a Handle used after Close or Abort
// returns ErrPERM.
type Handle struct {
	engine *Engine
	id     int
	mode   Mode

	// size is the running size accumulated on *this* handle. For Read,
	// it is the file's full size at open time. For Write/Append, it is
	// the size of the *new* chain being built (after any tail-prefix
	// absorption for Append) — see Write; an Append handle holds the
	// existing file's size from OpenAppend until Write replaces it.
	size uint32

	first, last LBA
	closed      bool
}

// ID returns the (already-wrapped) file identifier this handle refers to.
func (h *Handle) ID() int { return h.id }

// Mode returns the handle's open mode.
func (h *Handle) Mode() Mode { return h.mode }

// Size returns the handle's current notion of file size: for Read, the
// full file size; for Write/Append, the bytes written into the new chain
// so far (for Append before any Write, the existing file's size).
func (h *Handle) Size() uint32 { return h.size }

// OpenRead implements spec §4.8 open_read. If the identifier's table slot
// is empty, a handle is still returned (subsequent Read on it fails with
// ErrNullHandle), but OpenRead itself returns ErrNotFound as a diagnostic,
// non-fatal signal.
func (e *Engine) OpenRead(id int) (*Handle, error) {
	f := e.wrapID(id)
	slot := e.table[f]
	h := &Handle{engine: e, id: f, mode: ModeRead, size: slot.Size, first: slot.Head, last: NoLBA}
	if slot.Head == NoLBA {
		e.diag.Debugf(1, "open_read: file %d not found", f)
		return h, &ErrNotFound{ID: f}
	}
	return h, nil
}

// OpenWrite implements spec §4.8 open_write.
func (e *Engine) OpenWrite(id int) (*Handle, error) {
	f := e.wrapID(id)
	return &Handle{engine: e, id: f, mode: ModeWrite, size: 0, first: NoLBA, last: NoLBA}, nil
}

// OpenAppend implements spec §4.8 open_append. first/last refer to the
// *new* chain being accumulated; the existing chain is looked up from the
// table at Close time.
func (e *Engine) OpenAppend(id int) (*Handle, error) {
	f := e.wrapID(id)
	return &Handle{engine: e, id: f, mode: ModeAppend, size: e.table[f].Size, first: NoLBA, last: NoLBA}, nil
}

// Write implements spec §4.9. Write is meant to be called once per handle,
// with the caller's entire payload: the new chain it builds is exactly
// what Close later splices or links in, so there is no running "size so
// far" to reconcile across repeated calls. For Append, the old chain's
// partially-filled tail block is absorbed as a prefix first (spec §4.9
// steps 1-3), exactly as if the caller had re-supplied those bytes
// themselves.
//
// The chain-length cap is spec §4.9's literal `blocks_in_use + needed >
// MaxBlocksPerFile`: blocksInUse counts the existing chain's blocks that
// Close will keep. Whenever the old tail is partial (overflow nonzero),
// Close drops that old tail block instead of extending it — in the case-1
// splice path (DESIGN.md "Open question 2") and in case 2, where the
// one-block chain is dropped whole — so the kept count there is
// blocksInUse-1, not blocksInUse; that one-block adjustment is the only
// place this bound deviates from the plain existing-chain-length count.
// An Append whose existing chain already uses all MaxBlocksPerFile blocks
// is refused with ErrAppendOverflow and leaves the file unchanged.
//
// Write returns the number of user-supplied bytes actually consumed
// (which may be less than len(data) if the write was truncated for
// oversize or a full medium — spec §7's policy that these are
// non-exceptional, reported return paths) and a non-nil, non-fatal error
// describing why, if so.
func (e *Engine) Write(h *Handle, data []byte) (int, error) {
	if h.closed {
		return 0, &ErrPERM{"Write: handle already closed"}
	}
	if h.mode != ModeWrite && h.mode != ModeAppend {
		return 0, &ErrWrongMode{Op: "Write", Mode: h.mode}
	}

	dataSize := e.engineDataSize()
	buf := data
	prefixLen := 0
	blocksInUse := 0
	if h.mode == ModeAppend {
		old := e.table[h.id]
		blocksInUse = ceilDiv(int(old.Size), dataSize)
		overflow := int(old.Size) % dataSize
		if overflow != 0 {
			if old.Head == NoLBA {
				return 0, &ErrCorrupt{Op: "Write: append with nonzero size but empty head", LBA: NoLBA}
			}
			tail, err := e.tailOf(old.Head)
			if err != nil {
				return 0, err
			}
			prefix, err := e.readPayload(tail)
			if err != nil {
				return 0, err
			}
			prefixLen = overflow
			buf = append(append([]byte{}, prefix[:overflow]...), data...)
			// Close drops this old tail block on the splice rather than
			// keeping it (see tailWithPrev's doc comment), so it does not
			// count against the cap.
			blocksInUse--
		}
	}

	limit := mathutil.Max(0, e.cfg.MaxBlocksPerFile-blocksInUse)
	needed := ceilDiv(len(buf), dataSize)
	if h.mode == ModeAppend && limit == 0 && needed > 0 {
		e.diag.Debugf(0, "write: file %d already uses %d blocks, append refused", h.id, blocksInUse)
		return 0, &ErrAppendOverflow{ID: h.id}
	}
	var writeErr error
	if needed > limit {
		writeErr = &ErrOversize{Requested: blocksInUse + needed, Max: e.cfg.MaxBlocksPerFile}
		needed = limit
		truncatedLen := mathutil.Max(needed*dataSize, mathutil.Min(prefixLen, len(buf)))
		e.diag.Debugf(0, "write: file %d needs more than %d blocks (already using %d), truncating to %d bytes", h.id, e.cfg.MaxBlocksPerFile, blocksInUse, truncatedLen)
		buf = buf[:truncatedLen]
	}

	written := 0
	for i := 0; i < needed; i++ {
		lba, err := e.takeHead()
		if err != nil {
			e.diag.Debugf(0, "write: file %d: %v", h.id, err)
			h.size = uint32(written)
			return mathutil.Max(written-prefixLen, 0), err
		}

		lo := i * dataSize
		hi := mathutil.Min(lo+dataSize, len(buf))
		if err := e.writePayload(lba, buf[lo:hi]); err != nil {
			h.size = uint32(written)
			return mathutil.Max(written-prefixLen, 0), err
		}

		if h.first == NoLBA {
			h.first = lba
		}
		h.last = lba
		written = hi
	}

	h.size = uint32(written)
	consumed := mathutil.Max(written-prefixLen, 0)
	return consumed, writeErr
}

// Close is the commit point (spec §4.10). It links (or splices) the new
// chain into the allocation table, then terminates it — in that order,
// so a crash between the two leaves the table pointing at a file whose
// tail rejoins the free list past its real end, never an unreferenced
// allocation.
func (e *Engine) Close(h *Handle) error {
	if h.closed {
		return &ErrPERM{"Close: handle already closed"}
	}
	if h.mode == ModeRead {
		// A Read handle has no new chain to commit.
		h.closed = true
		return nil
	}

	f := h.id
	old := e.table[f]
	dataSize := e.engineDataSize()

	switch {
	case h.mode == ModeAppend && h.first == NoLBA:
		// Write was never called (or wrote nothing): the file is
		// unchanged. h.size still holds the placeholder OpenAppend
		// primed it with, not a new chain length, so it must not be
		// folded into any size arithmetic here.

	case h.mode == ModeAppend && int(old.Size) >= dataSize:
		// Case 1: existing chain holds at least one full block — splice
		// the new chain onto it, table head unchanged.
		overflow := int(old.Size) % dataSize
		if overflow == 0 {
			tail, err := e.tailOf(old.Head)
			if err != nil {
				return err
			}
			if err := e.relink(tail, h.first); err != nil {
				return err
			}
		} else {
			// The old tail holds a partial payload already folded into
			// h's new chain as its absorbed prefix (see Write): keeping
			// that old tail block around too would have Read replay its
			// stale copy of those same bytes, so it is dropped instead of
			// extended.
			//
			// unlink(tail) runs before relink(prev, h.first) rather than
			// after: unlink only appends a pointer to the free list's own
			// tail, it does not touch tail itself (tail.next is already
			// -1, the precondition unlink requires), so between the two
			// writes tail is reachable from both the old file chain (via
			// prev) and the free list — multiply-linked, but never
			// unreferenced. Running relink first would instead open a
			// window where neither list points at tail if power is lost
			// before unlink runs. Given a choice between those two
			// crash-window shapes, the benign double-link is preferred
			// over the orphan, matching the ordering rationale Close uses
			// everywhere else (spec §4.10).
			prev, tail, err := e.tailWithPrev(old.Head)
			if err != nil {
				return err
			}
			if err := e.unlink(tail); err != nil {
				return err
			}
			if err := e.relink(prev, h.first); err != nil {
				return err
			}
		}

		newSize := old.Size - uint32(overflow) + h.size
		e.table[f] = FileAlloc{Size: newSize, Head: old.Head}
		if err := e.mirrorSlot(f); err != nil {
			return err
		}
		if err := e.mirrorFreeHead(); err != nil {
			return err
		}

	case h.mode == ModeAppend:
		// Case 2: existing chain holds less than one full block, all of
		// it absorbed by Write as the new chain's prefix — drop it, the
		// new chain becomes the whole file.
		overflow := int(old.Size) % dataSize
		if old.Head != NoLBA {
			if err := e.unlink(old.Head); err != nil {
				return err
			}
		}
		newSize := old.Size - uint32(overflow) + h.size
		if err := e.link(f, h.first, newSize); err != nil {
			return err
		}

	default: // ModeWrite
		// open_write does not implicitly delete a pre-existing file at
		// this identifier (spec §4.10 case 3) — it simply overwrites the
		// table entry; any old chain it replaces was never touched by h,
		// so it is silently orphaned rather than freed, matching the
		// source's own behavior here.
		if err := e.link(f, h.first, h.size); err != nil {
			return err
		}
	}

	if h.first != NoLBA {
		if err := e.relink(h.last, NoLBA); err != nil {
			return err
		}
	}

	h.closed = true
	return nil
}

// link writes the table entry for f, mirrors it, and mirrors the free
// head (which may have advanced during this handle's take_head calls) —
// spec §4.10's link().
func (e *Engine) link(f int, head LBA, size uint32) error {
	e.table[f] = FileAlloc{Size: size, Head: head}
	if err := e.mirrorSlot(f); err != nil {
		return err
	}
	return e.mirrorFreeHead()
}

// Abort implements the NEW rollback path of spec §9 hazard 1 / SPEC_FULL
// §4.14: it returns the handle's own in-progress chain to the free list
// without touching the allocation table, and without walking the
// returned chain, by exploiting the very mechanism spec §9 hazard 4
// documents — a block's next field, immediately after take_head, still
// holds the value that was the free head at the moment it was taken. A
// single Write takes the handle's blocks one after another, so
// h.first..h.last is still linked in free-list order. Abort relinks
// h.last onto the current free head (which differs from h.last's stale
// next if other handles have taken blocks since) and then rewinds the
// free head back to h.first. A Read handle owns no chain, so Abort only
// invalidates it.
func (e *Engine) Abort(h *Handle) error {
	if h.closed {
		return &ErrPERM{"Abort: handle already closed"}
	}

	if h.mode != ModeRead && h.first != NoLBA {
		if err := e.relink(h.last, e.freeHead()); err != nil {
			return err
		}
		e.setFreeHead(h.first)
		if err := e.mirrorFreeHead(); err != nil {
			return err
		}
	}

	h.closed = true
	return nil
}

// Read implements spec §4.11. buf must be at least Size() bytes; Read
// copies exactly Size() bytes into it (or returns early with ErrNullHandle
// if the handle was opened against an empty/not-found file).
func (e *Engine) Read(h *Handle, buf []byte) (int, error) {
	if h.closed {
		return 0, &ErrPERM{"Read: handle already closed"}
	}
	if h.mode != ModeRead {
		return 0, &ErrWrongMode{Op: "Read", Mode: h.mode}
	}
	if !e.cfg.validLBA(h.first) {
		return 0, &ErrNullHandle{}
	}
	if len(buf) < int(h.size) {
		return 0, &ErrINVAL{"Read: buffer shorter than handle size", len(buf)}
	}

	dataSize := e.engineDataSize()
	cur := h.first
	var copied int
	for copied < int(h.size) {
		chunk := mathutil.Min(dataSize, int(h.size)-copied)
		payload, err := e.readPayload(cur)
		if err != nil {
			return copied, err
		}
		copy(buf[copied:copied+chunk], payload[:chunk])
		copied += chunk

		next, err := e.readNext(cur)
		if err != nil {
			return copied, err
		}
		if next == NoLBA {
			break
		}
		cur = next
	}

	return copied, nil
}

func (e *Engine) engineDataSize() int { return e.cfg.dataSize() }

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
