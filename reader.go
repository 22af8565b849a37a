package bitcode

import (
	"fmt"

	"github.com/rawbytedev/bitcode/internal/bitops"
)

// Source is a sequential bit container opened over caller-owned bytes.
// Reader is the native implementation; PortableReader is the fallback.
type Source interface {
	// ReadBits consumes width bits (0..64) and returns them zero-extended.
	ReadBits(width int) (uint64, error)
	// PeekBits returns the next width bits without consuming them.
	PeekBits(width int) (uint64, error)
	// Remaining returns the number of unread bits.
	Remaining() int
}

// Reader reads bits from a borrowed byte slice. It never writes to the slice
// and never looks past the declared bit length. After the first failed read
// the Reader is poisoned and keeps returning that error.
type Reader struct {
	data  []byte
	pos   int
	limit int
	err   error
}

// NewReader reads every bit of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, limit: len(data) * 8}
}

// NewBitReader reads the first bits bits of data.
func NewBitReader(data []byte, bits int) (*Reader, error) {
	if bits < 0 || bits > len(data)*8 {
		return nil, invalidf("bit length %d outside 0..%d", bits, len(data)*8)
	}
	return &Reader{data: data, limit: bits}, nil
}

func (r *Reader) check(width int) error {
	if width < 0 || width > bitops.MaxWidth {
		panic(fmt.Sprintf("bitcode: read width %d out of range", width))
	}
	if r.err != nil {
		return r.err
	}
	if have := r.limit - r.pos; width > have {
		r.err = truncated(width, have)
		return r.err
	}
	return nil
}

// ReadBits consumes width bits.
func (r *Reader) ReadBits(width int) (uint64, error) {
	if err := r.check(width); err != nil {
		return 0, err
	}
	v := bitops.Unpack(r.data, r.pos, width)
	r.pos += width
	return v, nil
}

// PeekBits returns the next width bits without moving the cursor.
func (r *Reader) PeekBits(width int) (uint64, error) {
	if err := r.check(width); err != nil {
		return 0, err
	}
	return bitops.Unpack(r.data, r.pos, width), nil
}

// ReadBool consumes one bit.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

// ReadBytes fills p with the next len(p)*8 bits.
func (r *Reader) ReadBytes(p []byte) error {
	if err := r.check(0); err != nil {
		return err
	}
	if have := r.limit - r.pos; len(p)*8 > have {
		r.err = truncated(len(p)*8, have)
		return r.err
	}
	if r.Aligned() {
		i, _ := bitops.Split(r.pos)
		copy(p, r.data[i:])
		r.pos += len(p) * 8
		return nil
	}
	for k := range p {
		p[k] = byte(bitops.Unpack(r.data, r.pos, 8))
		r.pos += 8
	}
	return nil
}

// aligned returns a view of the next n bytes when the cursor is byte aligned
// and the bytes are inside the limit. ok is false otherwise and nothing moves.
func (r *Reader) aligned(n int) (view []byte, ok bool) {
	if r.err != nil || !r.Aligned() || n*8 > r.limit-r.pos {
		return nil, false
	}
	i, _ := bitops.Split(r.pos)
	r.pos += n * 8
	return r.data[i : i+n : i+n], true
}

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int { return r.limit - r.pos }

// Pos returns the cursor in bits from the start of the data.
func (r *Reader) Pos() int { return r.pos }

// Aligned reports whether the cursor sits on a byte boundary.
func (r *Reader) Aligned() bool { return r.pos&7 == 0 }

// Err returns the error that poisoned the reader, if any.
func (r *Reader) Err() error { return r.err }
