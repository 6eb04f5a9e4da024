// Package wire defines the fixed-length framed packet exchanged with the
// robot's embedded controller.
//
// A frame is a flat byte buffer of a fixed capacity chosen at construction:
//
//	[HeadByte(0xff)] [payload bytes...] [check byte] [TailByte(0x0d)]
//
// There is no length field (the length is implicit in the capacity) and no
// escaping: payload bytes equal to the head or tail markers are legal, which
// is why framing over a raw byte stream is heuristic and handled by the
// transceiver's scan rather than by per-packet validation.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeadByte marks the first byte of every frame.
	HeadByte = 0xff
	// TailByte marks the last byte of every frame.
	TailByte = 0x0d

	// MinCapacity is the smallest usable frame: head, check and tail bytes.
	MinCapacity = 3
)

var ErrCapacityTooSmall = errors.New("wire: packet capacity must be at least 3 bytes")

// FixedPacket is a fixed-capacity framed buffer. The zero value is not
// usable; construct with New.
//
// The check byte at capacity-2 is settable but is not validated anywhere in
// this layer. Frame validity is the head/tail test in Valid only.
type FixedPacket struct {
	buf []byte
}

// New returns a packet of the given capacity with the head and tail bytes in
// place and the payload zeroed.
func New(capacity int) (*FixedPacket, error) {
	if capacity < MinCapacity {
		return nil, fmt.Errorf("%w: got %d", ErrCapacityTooSmall, capacity)
	}
	p := &FixedPacket{buf: make([]byte, capacity)}
	p.buf[0] = HeadByte
	p.buf[capacity-1] = TailByte
	return p, nil
}

// MustNew is New for compile-time-known capacities; it panics on a bad
// capacity and is intended for package-level defaults and tests.
func MustNew(capacity int) *FixedPacket {
	p, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return p
}

// Capacity returns the total frame length in bytes.
func (p *FixedPacket) Capacity() int {
	return len(p.buf)
}

// Bytes exposes the underlying frame buffer. Callers must treat it as
// read-only; mutate through the typed accessors instead.
func (p *FixedPacket) Bytes() []byte {
	return p.buf
}

// Clear zeroes the payload and check byte, preserving the head and tail.
func (p *FixedPacket) Clear() {
	for i := 1; i < len(p.buf)-1; i++ {
		p.buf[i] = 0
	}
}

// SetCheckByte stores b in the reserved check-byte slot at capacity-2. The
// value is carried on the wire but not verified on receive.
func (p *FixedPacket) SetCheckByte(b byte) {
	p.buf[len(p.buf)-2] = b
}

// CheckByte returns the reserved check byte.
func (p *FixedPacket) CheckByte() byte {
	return p.buf[len(p.buf)-2]
}

// CopyFrom overwrites the entire frame, head and tail included, with src.
// src must be exactly Capacity bytes; the caller is responsible for the
// result being a well-formed frame.
func (p *FixedPacket) CopyFrom(src []byte) error {
	if src == nil {
		return errors.New("wire: copy source is nil")
	}
	if len(src) != len(p.buf) {
		return fmt.Errorf("wire: copy source is %d bytes, want %d", len(src), len(p.buf))
	}
	copy(p.buf, src)
	return nil
}

// Clone returns an independent copy of the packet.
func (p *FixedPacket) Clone() *FixedPacket {
	c := &FixedPacket{buf: make([]byte, len(p.buf))}
	copy(c.buf, p.buf)
	return c
}

// Valid reports whether the frame carries the expected head and tail bytes.
// This is the only structural check performed on a frame; the check byte is
// ignored.
func (p *FixedPacket) Valid() bool {
	return FrameValid(p.buf)
}

// FrameValid reports whether buf looks like a complete frame: non-empty,
// starting with HeadByte and ending with TailByte.
func FrameValid(buf []byte) bool {
	if len(buf) < MinCapacity {
		return false
	}
	return buf[0] == HeadByte && buf[len(buf)-1] == TailByte
}

// LoadData encodes v little-endian into the payload starting at index.
// It returns false without touching the buffer when v has no fixed binary
// size or when the field does not fit: index must be positive and
// index+size must be strictly below capacity-1, which confines every field
// to the payload region. The check byte can never carry field data; a
// multi-byte field starting on the last payload byte is rejected even
// though its tail would physically fit over the check byte. This mirrors
// the controller firmware's bounds rule exactly.
func (p *FixedPacket) LoadData(v any, index int) bool {
	size := binary.Size(v)
	if size < 0 {
		return false
	}
	if index <= 0 || index+size >= len(p.buf)-1 {
		return false
	}
	if _, err := binary.Encode(p.buf[index:index+size], binary.LittleEndian, v); err != nil {
		return false
	}
	return true
}

// UnloadData decodes a little-endian value from the payload at index into v,
// which must be a pointer to a fixed-size type. The bounds rule mirrors
// LoadData. It returns false on any failure and leaves v untouched on a
// bounds miss.
func (p *FixedPacket) UnloadData(v any, index int) bool {
	size := binary.Size(v)
	if size < 0 {
		return false
	}
	if index <= 0 || index+size >= len(p.buf)-1 {
		return false
	}
	if _, err := binary.Decode(p.buf[index:index+size], binary.LittleEndian, v); err != nil {
		return false
	}
	return true
}
