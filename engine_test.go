// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nvfs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testConfig mirrors the worked example of spec §8: BlockSize 32 (LBA 2
// bytes, DataSize 30), MaxFiles 29 (a prime, per spec §6's recommendation
// to reduce modular-wrap collisions).
func testConfig() Config {
	return Config{
		FSStart:          0,
		FSSize:           headerSize + 30*fileAllocSize + 20*32,
		BlockSize:        32,
		MaxBlocksPerFile: 8,
		MaxFiles:         29,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := testConfig()
	m := NewMemMedium(cfg.FSSize)
	e := NewEngine(m, cfg, nil)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestInitFreshMediumQuickFormats(t *testing.T) {
	e := newTestEngine(t)
	if g, e := e.freeHead(), LBA(e.cfg.numBlocks()-1); g != e {
		t.Fatal(g, e)
	}
}

func TestInitPersistsAcrossReopen(t *testing.T) {
	cfg := testConfig()
	m := NewMemMedium(cfg.FSSize)
	e1 := NewEngine(m, cfg, nil)
	if err := e1.Init(); err != nil {
		t.Fatal(err)
	}

	h, err := e1.OpenWrite(3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e1.Write(h, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := e1.Close(h); err != nil {
		t.Fatal(err)
	}

	// Reopen against the same medium, same Config: matches
	e2 := NewEngine(m, cfg, nil)
	if err := e2.Init(); err != nil {
		t.Fatal(err)
	}

	if g, w := e2.table[3], (FileAlloc{Size: 5, Head: e1.table[3].Head}); g != w {
		t.Fatal(g, w)
	}
}

func TestInitMismatchedConfigReformats(t *testing.T) {
	cfg := testConfig()
	m := NewMemMedium(cfg.FSSize)
	e1 := NewEngine(m, cfg, nil)
	if err := e1.Init(); err != nil {
		t.Fatal(err)
	}

	h, err := e1.OpenWrite(3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e1.Write(h, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := e1.Close(h); err != nil {
		t.Fatal(err)
	}

	cfg2 := cfg
	cfg2.MaxBlocksPerFile = cfg.MaxBlocksPerFile + 1
	e2 := NewEngine(m, cfg2, nil)
	if err := e2.Init(); err != nil {
		t.Fatal(err)
	}

	if g, w := e2.table[3], (FileAlloc{Size: 0, Head: NoLBA}); g != w {
		t.Fatal(g, w)
	}
}

func TestFormatIdempotence(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Format(FormatQuick); err != nil {
		t.Fatal(err)
	}
	first := append([]FileAlloc(nil), e.table...)

	if err := e.Format(FormatQuick); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, e.table); diff != "" {
		t.Fatal(diff)
	}
}

func TestFormatFullZeroesPayloads(t *testing.T) {
	cfg := testConfig()
	m := NewMemMedium(cfg.FSSize)
	e := NewEngine(m, cfg, nil)
	m.Fill(0xAB)
	if err := e.Format(FormatFull); err != nil {
		t.Fatal(err)
	}

	p, err := e.readPayload(0)
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range p {
		if c != 0 {
			t.Fatalf("byte %d: got %#x, want 0", i, c)
		}
	}
}

func TestDeleteIdempotence(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.OpenWrite(9)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Write(h, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(h); err != nil {
		t.Fatal(err)
	}

	if err := e.Delete(9); err != nil {
		t.Fatal(err)
	}
	after1 := append([]FileAlloc(nil), e.table...)

	if err := e.Delete(9); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(after1, e.table); diff != "" {
		t.Fatal(diff)
	}

	if g, w := e.table[9], (FileAlloc{Size: 0, Head: NoLBA}); g != w {
		t.Fatal(g, w)
	}
}

func TestDumpReportsOccupiedSlots(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.OpenWrite(4)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Write(h, []byte("cake! ")); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(h); err != nil {
		t.Fatal(err)
	}

	rep, err := e.Dump()
	if err != nil {
		t.Fatal(err)
	}

	if len(rep.Files) != 1 {
		t.Fatalf("got %d occupied slots, want 1", len(rep.Files))
	}
	if g, w := rep.Files[0], (DumpFile{ID: 4, Size: 6, Head: e.table[4].Head, ChainLen: 1}); g != w {
		t.Fatal(g, w)
	}
	if rep.FreeLen+1 != int(rep.NumBlocks) {
		t.Fatalf("free %d + allocated 1 != total %d", rep.FreeLen, rep.NumBlocks)
	}
}

// Fresh-format scenario 1 of spec §8.
func TestScenario1FreshFormatWriteReadBack(t *testing.T) {
	e := newTestEngine(t)

	h, err := e.OpenWrite(6)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Write(h, []byte("Hello World!\n\x00")); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(h); err != nil {
		t.Fatal(err)
	}

	if g, w := e.table[6].Size, uint32(14); g != w {
		t.Fatal(g, w)
	}
	n, err := e.chainLength(e.table[6].Head)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("chain length %d, want 1", n)
	}

	rh, err := e.OpenRead(6)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, rh.Size())
	if _, err := e.Read(rh, buf); err != nil {
		t.Fatal(err)
	}
	if g, w := string(buf), "Hello World!\n\x00"; g != w {
		t.Fatalf("got %q, want %q", g, w)
	}
}

// Scenario 6 of spec §8: fill the medium, confirm ErrFull, confirm the
// partition invariant (every block free XOR allocated) still holds.
func TestScenario6MediumFullDiagnosesAndHoldsPartition(t *testing.T) {
	cfg := testConfig()
	m := NewMemMedium(cfg.FSSize)
	e := NewEngine(m, cfg, nil)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}

	total := int(e.cfg.numBlocks())
	id := 0
	maxBytes := e.cfg.dataSize() * e.cfg.MaxBlocksPerFile
	payload := make([]byte, maxBytes)

	var lastErr error
	for {
		h, err := e.OpenWrite(id)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Write(h, payload); err != nil {
			lastErr = err
		}
		if err := e.Close(h); err != nil {
			t.Fatal(err)
		}
		if e.freeHead() == NoLBA {
			break
		}
		id++
		if id > total {
			t.Fatal("never exhausted the free list")
		}
	}

	h, err := e.OpenWrite(id + 1000)
	if err != nil {
		t.Fatal(err)
	}
	n, err := e.Write(h, []byte("overflow"))
	if err == nil {
		t.Fatal("expected ErrFull-derived error on a full medium")
	}
	if n != 0 {
		t.Fatalf("consumed %d bytes on a full medium, want 0", n)
	}
	if err := e.Close(h); err != nil {
		t.Fatal(err)
	}
	_ = lastErr

	seen := make([]bool, total)
	for i := 0; i < e.cfg.MaxFiles; i++ {
		cur := e.table[i].Head
		for cur != NoLBA {
			if seen[cur] {
				t.Fatalf("block %d referenced by more than one chain", cur)
			}
			seen[cur] = true
			next, err := e.readNext(cur)
			if err != nil {
				t.Fatal(err)
			}
			cur = next
		}
	}
	for cur := e.freeHead(); cur != NoLBA; {
		if seen[cur] {
			t.Fatalf("free block %d also referenced by a file chain", cur)
		}
		seen[cur] = true
		next, err := e.readNext(cur)
		if err != nil {
			t.Fatal(err)
		}
		cur = next
	}
	for i, s := range seen {
		if !s {
			t.Fatalf("block %d neither free nor allocated", i)
		}
	}
}
