package bitcode

import (
	"strings"

	"github.com/rawbytedev/bitcode/internal/bitops"
)

// Buffer is a finished encoding: the bytes plus the number of bits in use.
// The final byte may be partly used; its unused high bits are zero and carry
// no meaning.
type Buffer struct {
	Bytes []byte
	Bits  int
}

// Validate checks that Bits fits Bytes exactly and that padding bits are zero.
func (b Buffer) Validate() error {
	if b.Bits < 0 || bitops.BytesFor(b.Bits) != len(b.Bytes) {
		return invalidf("%d bits do not fit %d bytes", b.Bits, len(b.Bytes))
	}
	if _, shift := bitops.Split(b.Bits); shift != 0 {
		if b.Bytes[len(b.Bytes)-1]>>uint(shift) != 0 {
			return invalidf("non-zero padding bits")
		}
	}
	return nil
}

// BitString renders the buffer in stream order, one character per bit,
// grouped by byte.
func (b Buffer) BitString() string {
	var sb strings.Builder
	sb.Grow(b.Bits + b.Bits/8)
	for i := 0; i < b.Bits; i++ {
		if i > 0 && i%8 == 0 {
			sb.WriteByte(' ')
		}
		if bitops.Unpack(b.Bytes, i, 1) == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
