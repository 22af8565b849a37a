package bitcode

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// hostLittleEndian is read once at startup. The wire is LSB first, so a
// byte-aligned run of fixed-width numbers has exactly the little-endian memory
// layout of those numbers.
var hostLittleEndian = !cpu.IsBigEndian

// Fixed lists the element types whose runs can move as raw memory.
type Fixed interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// transcoder decides between copying memory and the per-element bit path.
// native is fixed when the Codec is built.
type transcoder struct {
	native bool
}

func newTranscoder(enabled bool) transcoder {
	return transcoder{native: enabled && hostLittleEndian}
}

// canCopy is the single gate in front of every memory reinterpretation.
func (t transcoder) canCopy(aligned bool, elemBits int) bool {
	return t.native && aligned && elemBits%8 == 0
}

// copyOut writes raw, the host-memory image of a run of elemBits-wide
// elements, when the gate allows it. It reports whether it did.
func (t transcoder) copyOut(s Sink, raw []byte, elemBits int) bool {
	w, ok := s.(*Writer)
	if !ok || !t.canCopy(w.Aligned(), elemBits) {
		return false
	}
	w.WriteBytes(raw)
	return true
}

// copyIn fills dst, the host-memory image of a run of elements, straight from
// the input when the gate allows it and the input holds every byte. Nothing
// is consumed when it reports false.
func (t transcoder) copyIn(s Source, dst []byte, elemBits int) bool {
	r, ok := s.(*Reader)
	if !ok || !t.canCopy(r.Aligned(), elemBits) {
		return false
	}
	view, ok := r.aligned(len(dst))
	if !ok {
		return false
	}
	// Copy rather than alias: caller bytes carry no alignment guarantee.
	copy(dst, view)
	return true
}

// memory returns the bytes backing s.
func memory[T Fixed](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

// toBits reads the value of v as an unsigned integer of the same size.
// Same-size reinterpretation does not depend on byte order.
func toBits[T Fixed](v T) uint64 {
	p := unsafe.Pointer(&v)
	switch unsafe.Sizeof(v) {
	case 1:
		return uint64(*(*uint8)(p))
	case 2:
		return uint64(*(*uint16)(p))
	case 4:
		return uint64(*(*uint32)(p))
	default:
		return *(*uint64)(p)
	}
}

func fromBits[T Fixed](u uint64) T {
	var v T
	p := unsafe.Pointer(&v)
	switch unsafe.Sizeof(v) {
	case 1:
		*(*uint8)(p) = uint8(u)
	case 2:
		*(*uint16)(p) = uint16(u)
	case 4:
		*(*uint32)(p) = uint32(u)
	default:
		*(*uint64)(p) = u
	}
	return v
}

func bitsOf[T Fixed]() int {
	var zero T
	return int(unsafe.Sizeof(zero)) * 8
}

// EncodeFixed writes every element of s at its full width, with no length
// prefix. Byte-aligned runs on little-endian hosts are a single copy.
func EncodeFixed[T Fixed](e Encoder, s []T) {
	width := bitsOf[T]()
	if enc, ok := e.(*encoder); ok && enc.t.copyOut(enc.s, memory(s), width) {
		return
	}
	for _, v := range s {
		e.EncodeBits(toBits(v), width)
	}
}

// DecodeFixed fills dst with len(dst) elements written by EncodeFixed.
func DecodeFixed[T Fixed](d Decoder, dst []T) error {
	width := bitsOf[T]()
	if dec, ok := d.(*decoder); ok && dec.t.copyIn(dec.s, memory(dst), width) {
		return nil
	}
	for i := range dst {
		u, err := d.DecodeBits(width)
		if err != nil {
			return err
		}
		dst[i] = fromBits[T](u)
	}
	return nil
}

// EncodeSlice writes a length prefix followed by EncodeFixed(s).
func EncodeSlice[T Fixed](e Encoder, s []T) {
	e.EncodeLen(len(s))
	EncodeFixed(e, s)
}

// DecodeSlice reads a slice written by EncodeSlice.
func DecodeSlice[T Fixed](d Decoder) ([]T, error) {
	n, err := d.DecodeLen(bitsOf[T]())
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	if err := DecodeFixed(d, out); err != nil {
		return nil, err
	}
	return out, nil
}
