package bitcode

import (
	"math"
	"unicode/utf8"
	"unsafe"

	"github.com/rawbytedev/bitcode/internal/bitops"
)

// Decoder is the read side handed to Unmarshaler implementations. It mirrors
// Encoder. Once a call fails, for truncation or invalid data alike, every
// later call fails with the same error.
type Decoder interface {
	DecodeBool() (bool, error)
	DecodeBits(width int) (uint64, error)
	DecodeUvarint() (uint64, error)
	DecodeVarint() (int64, error)
	DecodeFloat32() (float32, error)
	DecodeFloat64() (float64, error)
	DecodeChar() (rune, error)
	DecodeBytes() ([]byte, error)
	DecodeString() (string, error)
	DecodeOption() (bool, error)
	// DecodeVariant rejects a tag >= count with ErrInvalidData.
	DecodeVariant(count int) (int, error)
	// DecodeLen reads a count and rejects it unless the remaining input
	// could hold that many elements of minElemBits bits each. Counts of
	// elements that may take no bits are bounded by the codec instead.
	DecodeLen(minElemBits int) (int, error)
	// DecodeValue decodes into ptr with the reflection rules of the owning Codec.
	DecodeValue(ptr any) error
	// Remaining returns the number of unread bits.
	Remaining() int
}

// Unmarshaler is implemented by pointer types that read themselves.
type Unmarshaler interface {
	UnmarshalBits(d Decoder) error
}

type decoder struct {
	s     Source
	t     transcoder
	c     *Codec
	depth int
	err   error
}

// fail records the first error so that later calls keep returning it.
func (d *decoder) fail(err error) error {
	if err != nil && d.err == nil {
		d.err = err
	}
	return err
}

func (d *decoder) DecodeBool() (bool, error) {
	v, err := d.DecodeBits(1)
	return v == 1, err
}

func (d *decoder) DecodeBits(width int) (uint64, error) {
	if d.err != nil {
		return 0, d.err
	}
	v, err := d.s.ReadBits(width)
	return v, d.fail(err)
}

func (d *decoder) DecodeUvarint() (uint64, error) {
	if d.err != nil {
		return 0, d.err
	}
	v, err := readUvarint(d.s)
	return v, d.fail(err)
}

func (d *decoder) DecodeVarint() (int64, error) {
	u, err := d.DecodeUvarint()
	return bitops.UnZigZag(u), err
}

func (d *decoder) DecodeFloat32() (float32, error) {
	v, err := d.DecodeBits(32)
	return math.Float32frombits(uint32(v)), err
}

func (d *decoder) DecodeFloat64() (float64, error) {
	v, err := d.DecodeBits(64)
	return math.Float64frombits(v), err
}

func (d *decoder) DecodeChar() (rune, error) {
	v, err := d.DecodeBits(CharBits)
	if err != nil {
		return 0, err
	}
	r := rune(v)
	if !utf8.ValidRune(r) {
		return 0, d.fail(invalidf("%U is not a Unicode scalar value", r))
	}
	return r, nil
}

func (d *decoder) DecodeBytes() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	n, err := readLen(d.s, 8, 0)
	if err != nil {
		return nil, d.fail(err)
	}
	p := make([]byte, n)
	if err := readBytes(d.s, p); err != nil {
		return nil, d.fail(err)
	}
	return p, nil
}

func (d *decoder) DecodeString() (string, error) {
	p, err := d.DecodeBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(p) {
		return "", d.fail(invalidf("string is not valid UTF-8"))
	}
	if len(p) == 0 {
		return "", nil
	}
	// p is private to this call.
	return unsafe.String(&p[0], len(p)), nil
}

func (d *decoder) DecodeOption() (bool, error) { return d.DecodeBool() }

func (d *decoder) DecodeVariant(count int) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if count <= 0 {
		return 0, d.fail(invalidf("enum with %d variants", count))
	}
	v, err := d.DecodeBits(tagWidth(count))
	if err != nil {
		return 0, err
	}
	if v >= uint64(count) {
		return 0, d.fail(invalidf("variant tag %d out of range for %d variants", v, count))
	}
	return int(v), nil
}

func (d *decoder) DecodeLen(minElemBits int) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	n, err := readLen(d.s, minElemBits, d.c.maxZero)
	return n, d.fail(err)
}

func (d *decoder) DecodeValue(ptr any) error {
	if d.err != nil {
		return d.err
	}
	return d.fail(d.c.decodeAny(d, ptr))
}

func (d *decoder) Remaining() int { return d.s.Remaining() }

func readBytes(s Source, p []byte) error {
	if r, ok := s.(*Reader); ok {
		return r.ReadBytes(p)
	}
	for i := range p {
		v, err := s.ReadBits(8)
		if err != nil {
			return err
		}
		p[i] = byte(v)
	}
	return nil
}

// tagWidth is the width of an enum tag for count variants.
func tagWidth(count int) int {
	return bitops.WidthFor(uint64(count))
}
