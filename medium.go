// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// A byte-addressable medium abstraction, analogous to the teacher's Filer
// but narrower: a real NVM device exposes no seek stream, only addressed
// reads and writes, and an endurance-preserving "update" that is free to
// skip bytes that would not change.

package nvfs

import (
	"os"

	"github.com/pkg/errors"
)

// Medium is the external collaborator of spec §4.2 / §6: byte-level
// read/write/update primitives over a linear address space of known size,
// plus a "write dword zero" primitive used only by Wipe. The core never
// assumes anything about the backing device beyond this interface; it is
// provided externally and is not part of the persisted contract.
type Medium interface {
	// ReadBytes returns length bytes starting at addr.
	ReadBytes(addr int64, length int) ([]byte, error)

	// WriteBytes unconditionally writes b at addr.
	WriteBytes(addr int64, b []byte) error

	// UpdateBytes writes only the bytes of b that differ from the medium's
	// current content at addr, an endurance-preserving variant of
	// WriteBytes. Implementations that cannot do better MAY alias this to
	// WriteBytes.
	UpdateBytes(addr int64, b []byte) error

	// WriteDwordZero zeroes the 4 bytes (a "dword") starting at addr. Used
	// only by Wipe's destructive full-medium clear (spec §4.6).
	WriteDwordZero(addr int64) error

	// Size reports the total addressable byte extent of the medium.
	Size() int64
}

var _ Medium = (*MemMedium)(nil)

// MemMedium is a []byte-backed Medium, the in-memory analogue of the
// teacher's MemFiler. It backs every unit test in this repository and is
// the natural stand-in for an NVM device in property tests, since its
// entire content can be diffed byte-for-byte between operations to check
// the wear-discipline property of spec §8.
type MemMedium struct {
	buf []byte
}

// NewMemMedium returns a MemMedium of the given size, zero-filled, as a
// freshly erased NVM part would read (many EEPROM/flash parts erase to
// 0xFF rather than 0x00; callers modeling that should Fill after
// construction).
func NewMemMedium(size int64) *MemMedium {
	return &MemMedium{buf: make([]byte, size)}
}

// Fill overwrites the entire medium with b, e.g. 0xFF to model an erased
// flash part.
func (m *MemMedium) Fill(b byte) {
	for i := range m.buf {
		m.buf[i] = b
	}
}

// Snapshot returns a copy of the medium's current bytes, for wear-discipline
// comparisons in tests.
func (m *MemMedium) Snapshot() []byte {
	out := make([]byte, len(m.buf))
	copy(out, m.buf)
	return out
}

// ReadBytes implements Medium.
func (m *MemMedium) ReadBytes(addr int64, length int) ([]byte, error) {
	if addr < 0 || length < 0 || addr+int64(length) > int64(len(m.buf)) {
		return nil, &ErrINVAL{"MemMedium.ReadBytes out of range", addr}
	}

	out := make([]byte, length)
	copy(out, m.buf[addr:addr+int64(length)])
	return out, nil
}

// WriteBytes implements Medium.
func (m *MemMedium) WriteBytes(addr int64, b []byte) error {
	if addr < 0 || addr+int64(len(b)) > int64(len(m.buf)) {
		return &ErrINVAL{"MemMedium.WriteBytes out of range", addr}
	}

	copy(m.buf[addr:], b)
	return nil
}

// UpdateBytes implements Medium: it writes only the differing bytes, the
// behavior spec §4.2 calls the endurance-preserving variant.
func (m *MemMedium) UpdateBytes(addr int64, b []byte) error {
	if addr < 0 || addr+int64(len(b)) > int64(len(m.buf)) {
		return &ErrINVAL{"MemMedium.UpdateBytes out of range", addr}
	}

	for i, c := range b {
		if m.buf[addr+int64(i)] != c {
			m.buf[addr+int64(i)] = c
		}
	}
	return nil
}

// WriteDwordZero implements Medium.
func (m *MemMedium) WriteDwordZero(addr int64) error {
	return m.WriteBytes(addr, []byte{0, 0, 0, 0})
}

// Size implements Medium.
func (m *MemMedium) Size() int64 { return int64(len(m.buf)) }

var _ Medium = (*OSMedium)(nil)

// OSMedium is an *os.File-backed Medium, the analogue of the teacher's
// OSFiler/SimpleFileFiler, for exercising the engine against a real file
// standing in for the NVM device (a loopback file, or an mmap'd character
// device opened by the host as an *os.File).
type OSMedium struct {
	f    *os.File
	size int64
}

// NewOSMedium wraps f, an already-sized file (e.g. created with
// f.Truncate(size)), as a Medium.
func NewOSMedium(f *os.File) (*OSMedium, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "OSMedium: stat")
	}

	return &OSMedium{f: f, size: fi.Size()}, nil
}

// ReadBytes implements Medium.
func (m *OSMedium) ReadBytes(addr int64, length int) ([]byte, error) {
	b := make([]byte, length)
	if _, err := m.f.ReadAt(b, addr); err != nil {
		return nil, errors.Wrapf(err, "OSMedium.ReadBytes addr=%d len=%d", addr, length)
	}
	return b, nil
}

// WriteBytes implements Medium.
func (m *OSMedium) WriteBytes(addr int64, b []byte) error {
	if _, err := m.f.WriteAt(b, addr); err != nil {
		return errors.Wrapf(err, "OSMedium.WriteBytes addr=%d len=%d", addr, len(b))
	}
	return nil
}

// UpdateBytes implements Medium. A real character device has no efficient
// read-modify-compare-write path cheaper than the kernel already provides,
// so this degrades to WriteBytes, which spec §4.2 explicitly allows.
func (m *OSMedium) UpdateBytes(addr int64, b []byte) error {
	return m.WriteBytes(addr, b)
}

// WriteDwordZero implements Medium.
func (m *OSMedium) WriteDwordZero(addr int64) error {
	return m.WriteBytes(addr, []byte{0, 0, 0, 0})
}

// Size implements Medium.
func (m *OSMedium) Size() int64 { return m.size }
