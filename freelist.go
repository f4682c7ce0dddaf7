// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nvfs

// freeHead returns the current free-list head, cached at table slot
// MaxFiles (spec §4.3).
func (e *Engine) freeHead() LBA { return e.table[e.cfg.MaxFiles].Head }

func (e *Engine) setFreeHead(lba LBA) { e.table[e.cfg.MaxFiles].Head = lba }

// takeHead returns the current free-list head and advances the head to
// that block's next field (spec §4.3 take_head). The returned block's own
// next field still holds its former value — the caller overwrites it, per
// spec §4.9's note and §9 hazard 4, this is precisely how a multi-block
// write's chain topology ends up inherited from the free list's own prior
// topology, which must be preserved exactly.
func (e *Engine) takeHead() (LBA, error) {
	h := e.freeHead()
	if h == NoLBA {
		e.diag.Debugf(0, "takeHead: medium full")
		return NoLBA, &ErrFull{}
	}

	next, err := e.readNext(h)
	if err != nil {
		return NoLBA, err
	}

	e.setFreeHead(next)
	return h, nil
}

// appendToTail walks the free chain to its tail and relinks the tail's
// next from NoLBA to lba (spec §4.3 append_to_tail). The caller must have
// already arranged block[lba].next == NoLBA, or that the subchain rooted
// at lba already terminates there.
func (e *Engine) appendToTail(lba LBA) error {
	head := e.freeHead()
	if head == NoLBA {
		e.setFreeHead(lba)
		return nil
	}

	tail, err := e.tailOf(head)
	if err != nil {
		return err
	}

	return e.relink(tail, lba)
}

// unlink returns the chain rooted at lba to the free list in bulk: since
// the chain already terminates at NoLBA, no walk of it is required, only
// a walk of the (typically much shorter) free chain to find its own tail
// (spec §4.12 unlink).
func (e *Engine) unlink(lba LBA) error {
	return e.appendToTail(lba)
}
