// Package packet builds outbound handshake packets from typed fragments.
//
// A Builder only knows about byte layout; what goes into a packet is decided
// by the protocol engines.
package packet

import "encoding/binary"

// Builder is an append-only byte sequence. The zero value is ready to use.
type Builder struct {
	buf []byte
}

// New returns a Builder with room for size bytes.
func New(size int) *Builder {
	return &Builder{buf: make([]byte, 0, size)}
}

// Byte appends a single byte.
func (b *Builder) Byte(v byte) *Builder {
	b.buf = append(b.buf, v)
	return b
}

// Uint16 appends v in network byte order.
func (b *Builder) Uint16(v uint16) *Builder {
	b.buf = binary.BigEndian.AppendUint16(b.buf, v)
	return b
}

// Raw appends p as is.
func (b *Builder) Raw(p []byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

// String appends the bytes of s.
func (b *Builder) String(s string) *Builder {
	b.buf = append(b.buf, s...)
	return b
}

// LenPrefixed appends a one byte length followed by p. The caller must
// ensure len(p) fits in a byte.
func (b *Builder) LenPrefixed(p []byte) *Builder {
	b.buf = append(b.buf, byte(len(p)))
	b.buf = append(b.buf, p...)
	return b
}

// Len reports the number of bytes appended so far.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Bytes returns a copy of the packet. Later appends do not affect it.
func (b *Builder) Bytes() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}
