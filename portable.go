package bitcode

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/icza/bitio"

	"github.com/rawbytedev/bitcode/internal/bitops"
)

// The portable containers sit on top of github.com/icza/bitio, which packs
// MSB first. The wire is LSB first, so values are bit-reversed on the way in
// and every byte is bit-reversed on the way out. No memory is reinterpreted,
// which makes them safe on any host byte order.

type msbWriter interface {
	WriteBits(r uint64, n uint8) error
	Close() error
}

type msbReader interface {
	ReadBits(n uint8) (uint64, error)
}

// reverse returns the low width bits of v in the opposite order.
func reverse(v uint64, width int) uint64 {
	if width == 0 {
		return 0
	}
	return bits.Reverse64(v&bitops.Mask(width)) >> uint(64-width)
}

// PortableWriter is a Sink that never reinterprets memory.
type PortableWriter struct {
	out bytes.Buffer
	w   msbWriter
	n   int
	err error
}

// NewPortableWriter returns an empty PortableWriter.
func NewPortableWriter() *PortableWriter {
	p := &PortableWriter{}
	p.w = bitio.NewWriter(&p.out)
	return p
}

// WriteBits appends the low width bits of v.
func (p *PortableWriter) WriteBits(v uint64, width int) {
	if width < 0 || width > bitops.MaxWidth {
		panic(fmt.Sprintf("bitcode: write width %d out of range", width))
	}
	if width == 0 {
		return
	}
	if err := p.w.WriteBits(reverse(v, width), uint8(width)); err != nil && p.err == nil {
		p.err = err
	}
	p.n += width
}

// Len returns the number of bits written.
func (p *PortableWriter) Len() int { return p.n }

// Finish flushes the pending bits and returns the result in wire order.
func (p *PortableWriter) Finish() Buffer {
	if err := p.w.Close(); err != nil && p.err == nil {
		p.err = err
	}
	if p.err != nil {
		// bytes.Buffer never fails a write; anything else is a broken invariant.
		panic(fmt.Sprintf("bitcode: portable writer: %v", p.err))
	}
	out := bytes.Clone(p.out.Bytes())
	if out == nil {
		out = []byte{}
	}
	for i, b := range out {
		out[i] = bits.Reverse8(b)
	}
	b := Buffer{Bytes: out, Bits: p.n}
	p.out.Reset()
	p.w = bitio.NewWriter(&p.out)
	p.n = 0
	return b
}

// PortableReader is a Source that never reinterprets memory. It works on a
// private, bit-reversed copy of the input, so the caller's bytes are never touched.
type PortableReader struct {
	r     msbReader
	pos   int
	limit int
	// look holds bits fetched by PeekBits but not yet consumed, LSB first.
	look  uint64
	nlook int
	err   error
}

// NewPortableReader reads the first n bits of data.
func NewPortableReader(data []byte, n int) (*PortableReader, error) {
	if n < 0 || n > len(data)*8 {
		return nil, invalidf("bit length %d outside 0..%d", n, len(data)*8)
	}
	flipped := make([]byte, bitops.BytesFor(n))
	for i := range flipped {
		flipped[i] = bits.Reverse8(data[i])
	}
	return &PortableReader{r: bitio.NewReader(bytes.NewReader(flipped)), limit: n}, nil
}

func (p *PortableReader) check(width int) error {
	if width < 0 || width > bitops.MaxWidth {
		panic(fmt.Sprintf("bitcode: read width %d out of range", width))
	}
	if p.err != nil {
		return p.err
	}
	if have := p.limit - p.pos; width > have {
		p.err = truncated(width, have)
		return p.err
	}
	return nil
}

func (p *PortableReader) fetch(width int) (uint64, error) {
	if width == 0 {
		return 0, nil
	}
	raw, err := p.r.ReadBits(uint8(width))
	if err != nil {
		p.err = fmt.Errorf("%w: %v", ErrTruncated, err)
		return 0, p.err
	}
	return reverse(raw, width), nil
}

// ReadBits consumes width bits.
func (p *PortableReader) ReadBits(width int) (uint64, error) {
	if err := p.check(width); err != nil {
		return 0, err
	}
	var v uint64
	if width <= p.nlook {
		v = p.look & bitops.Mask(width)
		if width == 64 {
			p.look = 0
		} else {
			p.look >>= uint(width)
		}
		p.nlook -= width
	} else {
		rest, err := p.fetch(width - p.nlook)
		if err != nil {
			return 0, err
		}
		v = p.look | rest<<uint(p.nlook)
		p.look, p.nlook = 0, 0
	}
	p.pos += width
	return v, nil
}

// PeekBits returns the next width bits without consuming them.
func (p *PortableReader) PeekBits(width int) (uint64, error) {
	if err := p.check(width); err != nil {
		return 0, err
	}
	if p.nlook < width {
		rest, err := p.fetch(width - p.nlook)
		if err != nil {
			return 0, err
		}
		p.look |= rest << uint(p.nlook)
		p.nlook = width
	}
	return p.look & bitops.Mask(width), nil
}

// Remaining returns the number of unread bits.
func (p *PortableReader) Remaining() int { return p.limit - p.pos }
