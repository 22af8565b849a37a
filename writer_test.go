package bitcode

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/bitcode/internal/bitops"
)

func TestWriterBoolsPackLSBFirst(t *testing.T) {
	w := NewWriter(0)
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteBool(true)
	b := w.Finish()
	require.Equal(t, []byte{0x05}, b.Bytes)
	require.Equal(t, 3, b.Bits)
	require.NoError(t, b.Validate())
	require.Equal(t, "101", b.BitString())
}

func TestWriterEmpty(t *testing.T) {
	var w Writer
	b := w.Finish()
	require.NotNil(t, b.Bytes)
	require.Empty(t, b.Bytes)
	require.Zero(t, b.Bits)
	require.NoError(t, b.Validate())
}

func TestWriterFinishResets(t *testing.T) {
	w := NewWriter(4)
	w.WriteBits(0xff, 8)
	first := w.Finish()
	w.WriteBits(1, 1)
	second := w.Finish()
	require.Equal(t, []byte{0xff}, first.Bytes)
	require.Equal(t, Buffer{Bytes: []byte{0x01}, Bits: 1}, second)
}

func TestWriterAppendUnaligned(t *testing.T) {
	inner := NewWriter(0)
	inner.WriteBits(0x2d, 6)
	ib := inner.Finish()

	w := NewWriter(0)
	w.WriteBits(0x1, 3)
	w.Append(ib)
	w.WriteBits(0x3, 2)
	require.Equal(t, 11, w.Len())
	b := w.Finish()
	require.NoError(t, b.Validate())

	r, err := NewBitReader(b.Bytes, b.Bits)
	require.NoError(t, err)
	for _, want := range []struct {
		v     uint64
		width int
	}{{0x1, 3}, {0x2d, 6}, {0x3, 2}} {
		got, err := r.ReadBits(want.width)
		require.NoError(t, err)
		require.Equal(t, want.v, got)
	}
	require.Zero(t, r.Remaining())
}

func TestWriterAppendWriter(t *testing.T) {
	a, b := NewWriter(0), NewWriter(0)
	a.WriteBits(0x5, 3)
	b.WriteBits(0x1ff, 9)
	a.AppendWriter(b)
	out := a.Finish()
	require.Equal(t, 12, out.Bits)
	require.Equal(t, uint64(0x1ff<<3|0x5), bitops.Unpack(out.Bytes, 0, 12))
}

func TestWriteBytesUnaligned(t *testing.T) {
	payload := make([]byte, 21)
	for i := range payload {
		payload[i] = byte(i*37 + 1)
	}
	w := NewWriter(0)
	w.WriteBool(true)
	w.WriteBytes(payload)
	b := w.Finish()
	require.Equal(t, 1+8*len(payload), b.Bits)

	r := NewReader(b.Bytes)
	bit, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, bit)
	got := make([]byte, len(payload))
	require.NoError(t, r.ReadBytes(got))
	require.Equal(t, payload, got)
}

func TestWriterWidthOutOfRangePanics(t *testing.T) {
	w := NewWriter(0)
	assert.Panics(t, func() { w.WriteBits(0, 65) })
	assert.Panics(t, func() { w.WriteBits(0, -1) })
	assert.Panics(t, func() { NewPortableWriter().WriteBits(0, 65) })
}

func TestReaderTruncatedPoisons(t *testing.T) {
	r := NewReader([]byte{0xff})
	_, err := r.ReadBits(9)
	require.ErrorIs(t, err, ErrTruncated)
	require.Zero(t, r.Pos())

	_, err = r.ReadBits(1)
	require.ErrorIs(t, err, ErrTruncated)
	require.ErrorIs(t, r.Err(), ErrTruncated)
}

func TestReaderRespectsBitLimit(t *testing.T) {
	r, err := NewBitReader([]byte{0xff}, 3)
	require.NoError(t, err)
	v, err := r.ReadBits(3)
	require.NoError(t, err)
	require.Equal(t, uint64(7), v)
	_, err = r.ReadBits(1)
	require.ErrorIs(t, err, ErrTruncated)

	_, err = NewBitReader([]byte{0xff}, 9)
	require.ErrorIs(t, err, ErrInvalidData)
	_, err = NewBitReader(nil, -1)
	require.ErrorIs(t, err, ErrInvalidData)
}

func TestReaderPeek(t *testing.T) {
	r := NewReader([]byte{0xb4})
	v, err := r.PeekBits(4)
	require.NoError(t, err)
	require.Equal(t, uint64(0x4), v)
	require.Zero(t, r.Pos())
	v, err = r.ReadBits(4)
	require.NoError(t, err)
	require.Equal(t, uint64(0x4), v)
	v, err = r.ReadBits(4)
	require.NoError(t, err)
	require.Equal(t, uint64(0xb), v)
}

func TestReaderZeroWidth(t *testing.T) {
	r := NewReader(nil)
	v, err := r.ReadBits(0)
	require.NoError(t, err)
	require.Zero(t, v)
}

func TestReaderReadBytesTruncated(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	require.ErrorIs(t, r.ReadBytes(make([]byte, 4)), ErrTruncated)
}

func TestBufferValidate(t *testing.T) {
	require.NoError(t, Buffer{Bytes: []byte{0x05}, Bits: 3}.Validate())
	require.ErrorIs(t, Buffer{Bytes: []byte{0x0d}, Bits: 3}.Validate(), ErrInvalidData)
	require.ErrorIs(t, Buffer{Bytes: []byte{1, 0}, Bits: 3}.Validate(), ErrInvalidData)
	require.ErrorIs(t, Buffer{Bytes: nil, Bits: 1}.Validate(), ErrInvalidData)
}

func TestBufferBitString(t *testing.T) {
	b := Buffer{Bytes: []byte{0x01, 0x80}, Bits: 16}
	require.Equal(t, "10000000 00000001", b.BitString())
}

type write struct {
	v     uint64
	width int
}

func randomWrites(seed int64, n int) []write {
	rng := rand.New(rand.NewSource(seed))
	out := make([]write, n)
	for i := range out {
		w := rng.Intn(65)
		out[i] = write{v: rng.Uint64() & bitops.Mask(w), width: w}
	}
	return out
}

func TestPortableMatchesNative(t *testing.T) {
	writes := randomWrites(7, 3000)
	native, portable := NewWriter(0), NewPortableWriter()
	for _, w := range writes {
		native.WriteBits(w.v, w.width)
		portable.WriteBits(w.v, w.width)
	}
	require.Equal(t, native.Len(), portable.Len())
	nb, pb := native.Finish(), portable.Finish()
	require.Equal(t, nb, pb)

	r, err := NewBitReader(nb.Bytes, nb.Bits)
	require.NoError(t, err)
	pr, err := NewPortableReader(pb.Bytes, pb.Bits)
	require.NoError(t, err)
	for _, src := range []Source{r, pr} {
		for i, w := range writes {
			if i%3 == 0 {
				peek, err := src.PeekBits(w.width)
				require.NoError(t, err)
				require.Equal(t, w.v, peek, "peek %d", i)
			}
			got, err := src.ReadBits(w.width)
			require.NoError(t, err)
			require.Equal(t, w.v, got, "read %d width %d", i, w.width)
		}
		require.Zero(t, src.Remaining())
		_, err := src.ReadBits(1)
		require.ErrorIs(t, err, ErrTruncated)
	}
}

func TestPortableWriterReuse(t *testing.T) {
	p := NewPortableWriter()
	p.WriteBits(1, 1)
	p.WriteBits(0, 1)
	p.WriteBits(1, 1)
	require.Equal(t, Buffer{Bytes: []byte{0x05}, Bits: 3}, p.Finish())
	require.Equal(t, Buffer{Bytes: []byte{}, Bits: 0}, p.Finish())
}

func TestPortableReaderLeavesInputAlone(t *testing.T) {
	data := []byte{0x01, 0x02}
	pr, err := NewPortableReader(data, 12)
	require.NoError(t, err)
	v, err := pr.ReadBits(12)
	require.NoError(t, err)
	require.Equal(t, uint64(0x201), v)
	require.Equal(t, []byte{0x01, 0x02}, data)

	_, err = NewPortableReader(data, 17)
	require.ErrorIs(t, err, ErrInvalidData)
}
