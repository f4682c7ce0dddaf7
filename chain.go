// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nvfs

import "github.com/pkg/errors"

// These are the only mutating primitives this engine ever applies to a
// data block: relink touches exactly sizeof(LBA) bytes, writePayload
// touches exactly the payload bytes it is given. Neither ever rewrites a
// block in full; that discipline is the source of the wear-leveling
// property of spec §1/§4.4.

// readNext reads a block's next field.
func (e *Engine) readNext(lba LBA) (LBA, error) {
	if !e.cfg.validLBA(lba) {
		return NoLBA, &ErrCorrupt{Op: "readNext", LBA: lba}
	}

	b, err := e.medium.ReadBytes(e.cfg.blockPtr(lba), lbaSize)
	if err != nil {
		return NoLBA, errors.Wrapf(err, "readNext(%d)", lba)
	}
	return decodeLBA(b), nil
}

// relink overwrites only the next field of block lba with target (spec
// §4.4 relink).
func (e *Engine) relink(lba, target LBA) error {
	if !e.cfg.validLBA(lba) {
		return &ErrCorrupt{Op: "relink", LBA: lba}
	}

	return errors.Wrapf(e.medium.UpdateBytes(e.cfg.blockPtr(lba), encodeLBA(target)), "relink(%d -> %d)", lba, target)
}

// readPayload reads a block's full DataSize payload bytes, regardless of
// how many of them are logically meaningful — callers slice the result.
func (e *Engine) readPayload(lba LBA) ([]byte, error) {
	if !e.cfg.validLBA(lba) {
		return nil, &ErrCorrupt{Op: "readPayload", LBA: lba}
	}

	b, err := e.medium.ReadBytes(e.cfg.payloadPtr(lba), e.cfg.dataSize())
	if err != nil {
		return nil, errors.Wrapf(err, "readPayload(%d)", lba)
	}
	return b, nil
}

// writePayload overwrites only the payload bytes of block lba, leaving
// next intact (spec §4.4 write_payload). data may be shorter than
// DataSize; only those bytes are written.
func (e *Engine) writePayload(lba LBA, data []byte) error {
	if !e.cfg.validLBA(lba) {
		return &ErrCorrupt{Op: "writePayload", LBA: lba}
	}
	if len(data) > e.cfg.dataSize() {
		return &ErrINVAL{"writePayload: data exceeds DataSize", len(data)}
	}

	return errors.Wrapf(e.medium.UpdateBytes(e.cfg.payloadPtr(lba), data), "writePayload(%d)", lba)
}

// tailOf follows next pointers from head until a block with next == NoLBA
// is reached, and returns that block's LBA (spec §4.4 tail_of). It fails
// if head is out of range, and it bounds the walk so a corrupt cyclic
// chain cannot hang the caller: at MaxBlocksPerFile steps for a file chain
// (spec §8's chain-termination property requires termination within that
// many steps for any well-formed file), and at the medium's block count
// when head is the free-list head, since the free list may hold every
// block.
func (e *Engine) tailOf(head LBA) (LBA, error) {
	if !e.cfg.validLBA(head) {
		return NoLBA, &ErrCorrupt{Op: "tailOf", LBA: head}
	}

	bound := e.cfg.MaxBlocksPerFile
	if head == e.freeHead() {
		bound = int(e.cfg.numBlocks())
	}
	cur := head
	for steps := 0; steps <= bound; steps++ {
		next, err := e.readNext(cur)
		if err != nil {
			return NoLBA, err
		}
		if next == NoLBA {
			return cur, nil
		}
		cur = next
	}
	return NoLBA, &ErrCorrupt{Op: "tailOf: chain did not terminate", LBA: head}
}

// tailWithPrev is like tailOf but also returns the block immediately
// preceding the tail, for the multi-block append-splice path of spec
// §4.10 case 1, where the true current tail (if it holds an unaligned
// partial payload) is being replaced rather than extended — see
// DESIGN.md for why the prior block, not the tail itself, is the splice
// point in that sub-case. head must already be known to have at least
// two blocks in its chain.
func (e *Engine) tailWithPrev(head LBA) (prev, tail LBA, err error) {
	if !e.cfg.validLBA(head) {
		return NoLBA, NoLBA, &ErrCorrupt{Op: "tailWithPrev", LBA: head}
	}

	prev = NoLBA
	cur := head
	for steps := 0; steps <= e.cfg.MaxBlocksPerFile; steps++ {
		next, err := e.readNext(cur)
		if err != nil {
			return NoLBA, NoLBA, err
		}
		if next == NoLBA {
			return prev, cur, nil
		}
		prev = cur
		cur = next
	}
	return NoLBA, NoLBA, &ErrCorrupt{Op: "tailWithPrev: chain did not terminate", LBA: head}
}

// chainLength walks from head and counts blocks, for Dump and for the
// size/chain-agreement property test of spec §8. It shares tailOf's step
// bounds, including the larger one for the free list.
func (e *Engine) chainLength(head LBA) (int, error) {
	if head == NoLBA {
		return 0, nil
	}
	if !e.cfg.validLBA(head) {
		return 0, &ErrCorrupt{Op: "chainLength", LBA: head}
	}

	bound := e.cfg.MaxBlocksPerFile
	if head == e.freeHead() {
		bound = int(e.cfg.numBlocks())
	}
	n := 1
	cur := head
	for steps := 0; steps <= bound; steps++ {
		next, err := e.readNext(cur)
		if err != nil {
			return 0, err
		}
		if next == NoLBA {
			return n, nil
		}
		n++
		cur = next
	}
	return 0, &ErrCorrupt{Op: "chainLength: chain did not terminate", LBA: head}
}
