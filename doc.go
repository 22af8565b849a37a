/*
Package bitcode is a compact binary codec that packs values at bit
granularity: a bool costs one bit, an enum of five variants costs three bits, and
an absent optional value costs one.

Bits are numbered least significant first. The first bit of a stream is bit
0 of byte 0, the ninth is bit 0 of byte 1:

	byte 0:  b7 b6 b5 b4 b3 b2 b1 b0     stream bits 7..0
	byte 1:  b7 b6 b5 b4 b3 b2 b1 b0     stream bits 15..8

A value wider than one bit occupies consecutive stream bits, its least
significant bit first, and may straddle byte boundaries. The final byte is
padded with zero bits. Encoding [true, false, true] yields the single byte
0x05 and a bit length of 3.

Values are laid out with no headers and no alignment:

	bool                 1 bit
	int8 .. uint64       the type's width
	int, uint, uintptr   bucket varint, zig-zag for signed types
	float32, float64     IEEE 754 bits
	string, []byte       varint length, then the bytes
	*T                   1 presence bit, then T when present
	[]T, map[K]V         varint length, then the elements
	[N]T                 N elements, no length
	struct               exported fields in declaration order

Struct tags narrow integer encodings:

	type Packet struct {
		Kind  uint8  `bitcode:"enum=5"`        // 3 bits
		Level int16  `bitcode:"min=-8,max=7"`  // 4 bits
		Seq   uint64 `bitcode:"varint"`
		Mark  rune   `bitcode:"char"`          // 21 bits
		Cache []byte `bitcode:"-"`
	}

Types that need a different layout, such as enums carrying payloads,
implement Marshaler and Unmarshaler and drive the Encoder and Decoder
directly.

Decoding never trusts a length: a count is rejected unless the remaining input
could hold that many elements. Elements that may encode to no bits, such as
struct{}, cannot be bounded that way; their counts are limited by
Options.MaxZeroWidthLen on both sides. Malformed input yields ErrTruncated or
ErrInvalidData, never a panic.
*/
package bitcode
