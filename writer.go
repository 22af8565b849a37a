package bitcode

import (
	"encoding/binary"
	"fmt"

	"github.com/rawbytedev/bitcode/internal/bitops"
)

// Sink is an append-only bit container. Writer is the native implementation;
// PortableWriter is the byte-order agnostic fallback.
type Sink interface {
	// WriteBits appends the low width bits of v. width is 0..64.
	WriteBits(v uint64, width int)
	// Len returns the number of bits written so far.
	Len() int
	// Finish pads the last byte with zeros and hands over the result.
	Finish() Buffer
}

// Writer appends bits to a growable byte slice it exclusively owns.
// The zero value is ready to use.
type Writer struct {
	buf []byte
	n   int
}

// NewWriter returns a Writer with room for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// grow makes room for width more bits. New bytes are zero so Pack can OR into them.
// append doubles capacity, so growth is amortized.
func (w *Writer) grow(width int) {
	if need := bitops.BytesFor(w.n + width); need > len(w.buf) {
		w.buf = append(w.buf, make([]byte, need-len(w.buf))...)
	}
}

// WriteBits appends the low width bits of v at the cursor.
func (w *Writer) WriteBits(v uint64, width int) {
	if width < 0 || width > bitops.MaxWidth {
		panic(fmt.Sprintf("bitcode: write width %d out of range", width))
	}
	w.grow(width)
	bitops.Pack(w.buf, w.n, v, width)
	w.n += width
}

// WriteBool appends a single bit.
func (w *Writer) WriteBool(b bool) {
	var v uint64
	if b {
		v = 1
	}
	w.WriteBits(v, 1)
}

// WriteBytes appends every bit of p. An aligned cursor takes a plain copy.
func (w *Writer) WriteBytes(p []byte) {
	if w.Aligned() {
		w.buf = append(w.buf, p...)
		w.n += len(p) * 8
		return
	}
	for len(p) >= 8 {
		w.WriteBits(binary.LittleEndian.Uint64(p), 64)
		p = p[8:]
	}
	for _, b := range p {
		w.WriteBits(uint64(b), 8)
	}
}

// Append concatenates an independently built encoding at the current cursor,
// which need not be byte aligned.
func (w *Writer) Append(b Buffer) {
	full, rem := bitops.Split(b.Bits)
	w.WriteBytes(b.Bytes[:full])
	if rem > 0 {
		w.WriteBits(uint64(b.Bytes[full]), rem)
	}
}

// AppendWriter concatenates the bits written to other so far.
func (w *Writer) AppendWriter(other *Writer) {
	w.Append(Buffer{Bytes: other.buf, Bits: other.n})
}

// Len returns the number of bits written.
func (w *Writer) Len() int { return w.n }

// Aligned reports whether the cursor sits on a byte boundary.
func (w *Writer) Aligned() bool { return w.n&7 == 0 }

// Finish returns the encoded bits. The final partial byte is already zero
// padded. The Writer is left empty and must not share the returned bytes.
func (w *Writer) Finish() Buffer {
	b := Buffer{Bytes: w.buf, Bits: w.n}
	if b.Bytes == nil {
		b.Bytes = []byte{}
	}
	w.buf, w.n = nil, 0
	return b
}

func appendToSink(s Sink, b Buffer) {
	if w, ok := s.(*Writer); ok {
		w.Append(b)
		return
	}
	full, rem := bitops.Split(b.Bits)
	for _, c := range b.Bytes[:full] {
		s.WriteBits(uint64(c), 8)
	}
	if rem > 0 {
		s.WriteBits(uint64(b.Bytes[full]), rem)
	}
}
