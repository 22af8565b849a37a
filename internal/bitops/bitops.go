// Package bitops holds the pure bit-cursor arithmetic shared by every bit
// container in the module.
//
// Bit order is least-significant-bit first: stream bit i lives in byte i/8 at
// position i%8. Writers and readers both go through Pack and Unpack so the
// convention exists in exactly one place.
package bitops

import (
	"math/bits"
	"reflect"
)

// BitOrder names a bit numbering convention inside a byte.
type BitOrder uint8

const (
	// LSBFirst places the first stream bit in bit 0 of each byte.
	LSBFirst BitOrder = iota
	// MSBFirst places the first stream bit in bit 7 of each byte.
	MSBFirst
)

// Order is the wire convention. It is not derived from host endianness.
const Order = LSBFirst

// MaxWidth is the widest single read or write.
const MaxWidth = 64

// Split maps a bit offset to its byte index and the bit position inside that byte.
func Split(off int) (byteIndex, bitInByte int) {
	return off >> 3, off & 7
}

// BytesFor returns the number of bytes needed to hold n bits.
func BytesFor(n int) int {
	return (n + 7) >> 3
}

// Mask returns a value with the low width bits set.
func Mask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<uint(width) - 1
}

// Pack ORs the low width bits of v into dst starting at bit off. Bits of dst
// at and after off must be zero; dst must hold off+width bits.
func Pack(dst []byte, off int, v uint64, width int) {
	if width == 0 {
		return
	}
	v &= Mask(width)
	i, shift := Split(off)
	dst[i] |= byte(v << uint(shift))
	done := 8 - shift
	for done < width {
		i++
		dst[i] |= byte(v >> uint(done))
		done += 8
	}
}

// Unpack returns width bits of src starting at bit off, zero-extended.
// Only the bytes that hold those bits are touched.
func Unpack(src []byte, off, width int) uint64 {
	if width == 0 {
		return 0
	}
	i, shift := Split(off)
	v := uint64(src[i]) >> uint(shift)
	done := 8 - shift
	for done < width {
		i++
		v |= uint64(src[i]) << uint(done)
		done += 8
	}
	return v & Mask(width)
}

// WidthFor returns ceil(log2(n)): the bits needed to tell n values apart.
// One or zero values need no bits.
func WidthFor(n uint64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(n - 1)
}

// RangeWidth returns the bits needed for every value in [min, max].
func RangeWidth(min, max int64) int {
	return bits.Len64(uint64(max) - uint64(min))
}

// ZigZag maps signed values onto unsigned ones so that small magnitudes stay small.
func ZigZag(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// UnZigZag reverses ZigZag.
func UnZigZag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// IsFixedKind reports whether k is a fixed-size primitive kind.
func IsFixedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// FixedSize returns the in-memory byte width for fixed-size primitive kinds.
func FixedSize(k reflect.Kind) int {
	switch k {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 8
	default:
		return -1
	}
}

// WireBits returns how many bits a fixed-size kind occupies on the wire.
// A bool is one bit even though it is a byte in memory.
func WireBits(k reflect.Kind) int {
	if k == reflect.Bool {
		return 1
	}
	if n := FixedSize(k); n > 0 {
		return n * 8
	}
	return -1
}

// Copyable reports whether a run of k can be moved as raw memory: the wire
// width must equal the memory width and be whole bytes.
func Copyable(k reflect.Kind) bool {
	return k != reflect.Bool && IsFixedKind(k)
}
