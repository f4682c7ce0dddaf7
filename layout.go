// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nvfs

import "encoding/binary"

// LBA is a Logical Block Address: a signed index into the data-block
// region. NoLBA (-1) is the null sentinel of spec §3 — "none". The
// on-medium encoding is a 2-byte, big-endian ("network byte order", per
// the teacher's convention) two's-complement integer, matching the worked
// example of spec §8 (BLOCK_SIZE=32, LBA=2 bytes, DATA_SIZE=30).
type LBA int16

// NoLBA is the null LBA sentinel.
const NoLBA LBA = -1

const lbaSize = 2 // sizeof(LBA) on the medium, in bytes

func encodeLBA(v LBA) []byte {
	var b [lbaSize]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	return b[:]
}

func decodeLBA(b []byte) LBA {
	return LBA(binary.BigEndian.Uint16(b))
}

// Mode is the open mode of a Handle (spec §3, §4.8).
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
	ModeAppend
)

// String implements fmt.Stringer, used by ErrWrongMode.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "Read"
	case ModeWrite:
		return "Write"
	case ModeAppend:
		return "Append"
	default:
		return "Mode(?)"
	}
}

// Config holds the compile-time constants of spec §6: FSStart, FSSize,
// BlockSize, MaxBlocksPerFile, MaxFiles. Changing any of these after a
// medium has been formatted triggers a Quick format on the next Init
// (spec §4.7) — Config itself does not persist; only its fingerprint does,
// inside the metadata header.
type Config struct {
	// FSStart is the base byte offset of the filesystem region within the
	// medium.
	FSStart int64

	// FSSize is the total byte extent of the filesystem region,
	// metadata + allocation table + data blocks.
	FSSize int64

	// BlockSize is the fixed size, in bytes, of one data block including
	// its leading LBA "next" pointer. Payload per block is
	// BlockSize - sizeof(LBA).
	BlockSize int

	// MaxBlocksPerFile bounds the chain length of any single file (spec
	// §4.9); writes that would exceed it are truncated and reported.
	MaxBlocksPerFile int

	// MaxFiles is the number of file-identifier slots in the allocation
	// table (plus one trailing slot for the free-list head). Spec §6
	// recommends a prime value to reduce modular-wrap collisions.
	MaxFiles int
}

// fileAllocSize is sizeof(FileAlloc) on the medium: a 4-byte unsigned
// size field followed by a 2-byte LBA.
const fileAllocSize = 4 + lbaSize

// headerSize is the fixed size of the persisted metadata header: BlockSize
// (2), FSStart (8), FSSize (8), MaxBlocksPerFile (4), MaxFiles (4).
const headerSize = 2 + 8 + 8 + 4 + 4

// tableOffset is the byte offset of the allocation table, relative to
// FSStart.
func (c Config) tableOffset() int64 { return headerSize }

// tableSize is the byte extent of the allocation table: one FileAlloc per
// file identifier, plus one trailing slot for the free-list head.
func (c Config) tableSize() int64 {
	return int64(c.MaxFiles+1) * fileAllocSize
}

// dataRegionOffset is the byte offset of the data-block region, relative
// to FSStart.
func (c Config) dataRegionOffset() int64 {
	return c.tableOffset() + c.tableSize()
}

// dataSize is the usable payload size of one block.
func (c Config) dataSize() int {
	return c.BlockSize - lbaSize
}

// numBlocks is NUM_BLOCKS of spec §3.1.
func (c Config) numBlocks() int64 {
	avail := c.FSSize - c.dataRegionOffset()
	if avail <= 0 {
		return 0
	}
	return avail / int64(c.BlockSize)
}

// blockPtr implements spec §4.1's block_ptr(lba): the absolute medium
// offset of the block's leading LBA field. The modulo is defensive — a
// valid lba (as checked by every caller before reaching here) never
// triggers it, exactly as spec §4.1 notes.
func (c Config) blockPtr(lba LBA) int64 {
	off := c.FSStart + c.dataRegionOffset() + int64(lba)*int64(c.BlockSize)
	total := c.FSStart + c.FSSize
	if total <= 0 {
		return off
	}
	m := off % total
	if m < 0 {
		m += total
	}
	return m
}

// payloadPtr is blockPtr(lba) + sizeof(LBA): where a block's data bytes
// begin.
func (c Config) payloadPtr(lba LBA) int64 {
	return c.blockPtr(lba) + lbaSize
}

// validLBA reports whether lba is in the legal range [0, numBlocks), i.e.
// excluding the null sentinel too — callers that accept NoLBA check for it
// separately.
func (c Config) validLBA(lba LBA) bool {
	return lba >= 0 && int64(lba) < c.numBlocks()
}

// header is the persisted fingerprint of spec §4.7: if any field read back
// from the medium differs from the running Config, a Quick format is
// triggered. There is deliberately no magic number or version field (spec
// §9 item 5) — identity is inferred purely from an exact constant match.
type header struct {
	BlockSize        uint16
	FSStart          int64
	FSSize           int64
	MaxBlocksPerFile uint32
	MaxFiles         uint32
}

func headerOf(c Config) header {
	return header{
		BlockSize:        uint16(c.BlockSize),
		FSStart:          c.FSStart,
		FSSize:           c.FSSize,
		MaxBlocksPerFile: uint32(c.MaxBlocksPerFile),
		MaxFiles:         uint32(c.MaxFiles),
	}
}

func (h header) matches(c Config) bool {
	return h == headerOf(c)
}

func (h header) encode() []byte {
	b := make([]byte, headerSize)
	binary.BigEndian.PutUint16(b[0:2], h.BlockSize)
	binary.BigEndian.PutUint64(b[2:10], uint64(h.FSStart))
	binary.BigEndian.PutUint64(b[10:18], uint64(h.FSSize))
	binary.BigEndian.PutUint32(b[18:22], h.MaxBlocksPerFile)
	binary.BigEndian.PutUint32(b[22:26], h.MaxFiles)
	return b
}

func decodeHeader(b []byte) header {
	return header{
		BlockSize:        binary.BigEndian.Uint16(b[0:2]),
		FSStart:          int64(binary.BigEndian.Uint64(b[2:10])),
		FSSize:           int64(binary.BigEndian.Uint64(b[10:18])),
		MaxBlocksPerFile: binary.BigEndian.Uint32(b[18:22]),
		MaxFiles:         binary.BigEndian.Uint32(b[22:26]),
	}
}
