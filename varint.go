package bitcode

import (
	"fmt"
	"math/bits"

	"github.com/rawbytedev/bitcode/internal/bitops"
)

// Unbounded integers and lengths use a bucket prefix code: k one-bits, a zero
// bit (omitted for the last bucket), then the value in bucketWidths[k] bits,
// LSB first.
//
//	k  prefix    payload  values         total
//	0  0         0        0              1
//	1  10        2        1..3           4
//	2  110       4        4..15          7
//	3  1110      8        16..255        12
//	4  11110     16       ..65535        21
//	5  111110    32       ..2^32-1       38
//	6  1111110   48       ..2^48-1       55
//	7  1111111   64       ..2^64-1       71
//
// Encoders always choose the smallest bucket. Decoders reject overlong forms.
var bucketWidths = [8]int{0, 2, 4, 8, 16, 32, 48, 64}

const lastBucket = len(bucketWidths) - 1

func bucketOf(v uint64) int {
	for k, w := range bucketWidths {
		if v <= bitops.Mask(w) {
			return k
		}
	}
	return lastBucket
}

func prefixWidth(k int) int {
	if k == lastBucket {
		return lastBucket
	}
	return k + 1
}

// UvarintBits returns the encoded size of v in bits.
func UvarintBits(v uint64) int {
	k := bucketOf(v)
	return prefixWidth(k) + bucketWidths[k]
}

// VarintBits returns the encoded size of the zig-zag form of v in bits.
func VarintBits(v int64) int {
	return UvarintBits(bitops.ZigZag(v))
}

func writeUvarint(s Sink, v uint64) {
	k := bucketOf(v)
	s.WriteBits(bitops.Mask(k), prefixWidth(k))
	s.WriteBits(v, bucketWidths[k])
}

func readUvarint(s Source) (uint64, error) {
	n := min(lastBucket, s.Remaining())
	if n == 0 {
		_, err := s.ReadBits(1)
		return 0, err
	}
	p, err := s.PeekBits(n)
	if err != nil {
		return 0, err
	}
	k := min(bits.TrailingZeros64(^p), lastBucket)
	if k < lastBucket && k >= n {
		// Prefix runs off the end of the input.
		_, err := s.ReadBits(n + 1)
		return 0, err
	}
	if _, err := s.ReadBits(prefixWidth(k)); err != nil {
		return 0, err
	}
	v, err := s.ReadBits(bucketWidths[k])
	if err != nil {
		return 0, err
	}
	if k > 0 && v <= bitops.Mask(bucketWidths[k-1]) {
		return 0, invalidf("overlong varint %d in bucket %d", v, k)
	}
	return v, nil
}

func writeVarint(s Sink, v int64) {
	writeUvarint(s, bitops.ZigZag(v))
}

func readVarint(s Source) (int64, error) {
	u, err := readUvarint(s)
	return bitops.UnZigZag(u), err
}

// readLen decodes a count. Elements of at least minElemBits bits must fit the
// remaining input; the error then matches both ErrInvalidData and
// ErrTruncated, because a cut-off input is the usual cause. Elements that may
// take no bits at all are bounded by zeroLimit instead.
func readLen(s Source, minElemBits, zeroLimit int) (int, error) {
	v, err := readUvarint(s)
	if err != nil {
		return 0, err
	}
	if minElemBits <= 0 {
		if v > uint64(zeroLimit) {
			return 0, invalidf("length %d of zero-width elements exceeds %d", v, zeroLimit)
		}
		return int(v), nil
	}
	if limit := uint64(s.Remaining() / minElemBits); v > limit {
		return 0, fmt.Errorf("%w: %w: length %d exceeds the %d elements the remaining %d bits can hold",
			ErrInvalidData, ErrTruncated, v, limit, s.Remaining())
	}
	return int(v), nil
}
