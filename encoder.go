package bitcode

import (
	"math"
	"unicode/utf8"
	"unsafe"
)

// CharBits is the width of an encoded Unicode scalar value.
const CharBits = 21

// Encoder is the write side handed to Marshaler implementations. Every value
// is appended at the current bit cursor, with no padding between values.
type Encoder interface {
	EncodeBool(v bool)
	// EncodeBits writes the low width bits of v. width must be in 0..64.
	EncodeBits(v uint64, width int)
	EncodeUvarint(v uint64)
	EncodeVarint(v int64)
	EncodeFloat32(v float32)
	EncodeFloat64(v float64)
	// EncodeChar rejects values that are not Unicode scalar values.
	EncodeChar(r rune) error
	EncodeBytes(p []byte)
	// EncodeString rejects invalid UTF-8.
	EncodeString(s string) error
	// EncodeOption writes the presence bit of an optional value. The caller
	// encodes the payload next when present is true.
	EncodeOption(present bool)
	// EncodeVariant writes index in the minimal width for count variants.
	EncodeVariant(index, count int) error
	EncodeLen(n int)
	// EncodeSeqLen writes a count of elements taking at least minElemBits
	// bits each. It rejects counts that DecodeLen would refuse.
	EncodeSeqLen(n, minElemBits int) error
	// Append splices an independently built buffer in at the cursor.
	Append(b Buffer)
	// EncodeValue encodes v with the reflection rules of the owning Codec.
	EncodeValue(v any) error
}

// Marshaler is implemented by types that write themselves.
type Marshaler interface {
	MarshalBits(e Encoder) error
}

// Enumerated is implemented by integer types that name a closed set of
// variants 0..VariantCount()-1. They encode in the minimal tag width.
type Enumerated interface {
	VariantCount() int
}

type encoder struct {
	s     Sink
	t     transcoder
	c     *Codec
	depth int
}

func (e *encoder) EncodeBool(v bool) {
	var b uint64
	if v {
		b = 1
	}
	e.s.WriteBits(b, 1)
}

func (e *encoder) EncodeBits(v uint64, width int) { e.s.WriteBits(v, width) }

func (e *encoder) EncodeUvarint(v uint64) { writeUvarint(e.s, v) }

func (e *encoder) EncodeVarint(v int64) { writeVarint(e.s, v) }

func (e *encoder) EncodeFloat32(v float32) { e.s.WriteBits(uint64(math.Float32bits(v)), 32) }

func (e *encoder) EncodeFloat64(v float64) { e.s.WriteBits(math.Float64bits(v), 64) }

func (e *encoder) EncodeChar(r rune) error {
	if !utf8.ValidRune(r) {
		return invalidf("%U is not a Unicode scalar value", r)
	}
	e.s.WriteBits(uint64(r), CharBits)
	return nil
}

func (e *encoder) EncodeBytes(p []byte) {
	e.EncodeLen(len(p))
	writeBytes(e.s, p)
}

func (e *encoder) EncodeString(s string) error {
	if !utf8.ValidString(s) {
		return invalidf("string is not valid UTF-8")
	}
	e.EncodeLen(len(s))
	// Read-only view; writeBytes never retains it.
	writeBytes(e.s, unsafe.Slice(unsafe.StringData(s), len(s)))
	return nil
}

func (e *encoder) EncodeOption(present bool) { e.EncodeBool(present) }

func (e *encoder) EncodeVariant(index, count int) error {
	if count <= 0 {
		return invalidf("enum with %d variants", count)
	}
	if index < 0 || index >= count {
		return invalidf("variant %d out of range for %d variants", index, count)
	}
	e.s.WriteBits(uint64(index), tagWidth(count))
	return nil
}

func (e *encoder) EncodeLen(n int) {
	if n < 0 {
		panic("bitcode: negative length")
	}
	writeUvarint(e.s, uint64(n))
}

func (e *encoder) EncodeSeqLen(n, minElemBits int) error {
	if minElemBits <= 0 && n > e.c.maxZero {
		return invalidf("length %d of zero-width elements exceeds %d", n, e.c.maxZero)
	}
	e.EncodeLen(n)
	return nil
}

func (e *encoder) Append(b Buffer) { appendToSink(e.s, b) }

func (e *encoder) EncodeValue(v any) error { return e.c.encodeAny(e, v) }

func writeBytes(s Sink, p []byte) {
	if w, ok := s.(*Writer); ok {
		w.WriteBytes(p)
		return
	}
	for _, b := range p {
		s.WriteBits(uint64(b), 8)
	}
}
