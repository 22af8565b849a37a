// Package frame wraps a bitcode.Buffer in a self-describing byte envelope
// so it can be stored in a file or sent over a byte stream without losing
// its bit length.
//
// Layout, all integers little-endian:
//
//	"BF" | version | flags | uvarint bits | uvarint stored | payload | crc32
//
// The CRC-32 (IEEE) covers everything from version through payload. With
// FlagZstd the payload is zstd-compressed and stored is its compressed size.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/rawbytedev/bitcode"
	"github.com/rawbytedev/bitcode/internal/bitops"
)

const (
	// Version is the only envelope version written and accepted.
	Version = 1
	// MaxPayload bounds the decoded payload size in bytes.
	MaxPayload = 64 << 20

	crcSize = 4
)

var magic = [2]byte{'B', 'F'}

// Flags select optional envelope features.
type Flags uint8

const (
	// FlagZstd compresses the payload. It is dropped when compression does
	// not make the payload smaller.
	FlagZstd Flags = 1 << iota

	knownFlags = FlagZstd
)

var (
	ErrBadMagic       = errors.New("frame: bad magic")
	ErrVersion        = errors.New("frame: unsupported version")
	ErrChecksum       = errors.New("frame: checksum mismatch")
	ErrFrameTruncated = errors.New("frame: truncated")
	ErrFrameTooLarge  = errors.New("frame: payload too large")
	ErrCorrupt        = errors.New("frame: corrupt header")
)

// Info describes a frame header.
type Info struct {
	Version uint8
	Flags   Flags
	// Bits is the bit length of the carried buffer.
	Bits int
	// Stored is the payload size as written, after compression.
	Stored int
	// Size is the full frame length in bytes, CRC included.
	Size int
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxPayload), zstd.WithDecoderConcurrency(0))
	})
	return zstdEnc, zstdDec, zstdErr
}

// Encode wraps b. The buffer must be well formed (see bitcode.Buffer.Validate).
func Encode(b bitcode.Buffer, flags Flags) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if len(b.Bytes) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(b.Bytes))
	}
	if flags&^knownFlags != 0 {
		return nil, fmt.Errorf("frame: unknown flags %#02x", uint8(flags&^knownFlags))
	}

	payload := b.Bytes
	if flags&FlagZstd != 0 {
		enc, _, err := codecs()
		if err != nil {
			return nil, err
		}
		packed := enc.EncodeAll(b.Bytes, nil)
		if len(packed) < len(b.Bytes) {
			payload = packed
		} else {
			flags &^= FlagZstd
		}
	}

	out := make([]byte, 0, 4+2*binary.MaxVarintLen64+len(payload)+crcSize)
	out = append(out, magic[0], magic[1], Version, byte(flags))
	out = binary.AppendUvarint(out, uint64(b.Bits))
	out = binary.AppendUvarint(out, uint64(len(payload)))
	out = append(out, payload...)
	return binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(out[2:])), nil
}

// Inspect parses and checks the header and checksum of the frame at the
// start of data without decompressing it.
func Inspect(data []byte) (Info, error) {
	info, _, err := parse(data)
	return info, err
}

// Decode unwraps the frame at the start of data. Bytes after the frame are
// left alone; Info.Size says where the next frame begins.
func Decode(data []byte) (bitcode.Buffer, Info, error) {
	info, payload, err := parse(data)
	if err != nil {
		return bitcode.Buffer{}, info, err
	}
	want := bitops.BytesFor(info.Bits)
	var raw []byte
	if info.Flags&FlagZstd != 0 {
		_, dec, err := codecs()
		if err != nil {
			return bitcode.Buffer{}, info, err
		}
		raw, err = dec.DecodeAll(payload, make([]byte, 0, want))
		if err != nil {
			return bitcode.Buffer{}, info, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	} else {
		raw = append([]byte(nil), payload...)
	}
	if len(raw) != want {
		return bitcode.Buffer{}, info, fmt.Errorf("%w: %d payload bytes for %d bits", ErrCorrupt, len(raw), info.Bits)
	}
	b := bitcode.Buffer{Bytes: raw, Bits: info.Bits}
	if err := b.Validate(); err != nil {
		return bitcode.Buffer{}, info, err
	}
	return b, info, nil
}

func parse(data []byte) (Info, []byte, error) {
	var info Info
	for i := 0; i < len(magic) && i < len(data); i++ {
		if data[i] != magic[i] {
			return info, nil, ErrBadMagic
		}
	}
	if len(data) < 4 {
		return info, nil, ErrFrameTruncated
	}
	info.Version, info.Flags = data[2], Flags(data[3])
	if info.Version != Version {
		return info, nil, fmt.Errorf("%w: %d", ErrVersion, info.Version)
	}
	if info.Flags&^knownFlags != 0 {
		return info, nil, fmt.Errorf("%w: unknown flags %#02x", ErrCorrupt, uint8(info.Flags))
	}

	pos := 4
	bits, err := uvarint(data, &pos)
	if err != nil {
		return info, nil, err
	}
	stored, err := uvarint(data, &pos)
	if err != nil {
		return info, nil, err
	}
	if bits > MaxPayload*8 || stored > MaxPayload {
		return info, nil, fmt.Errorf("%w: %d bits, %d stored bytes", ErrFrameTooLarge, bits, stored)
	}
	info.Bits, info.Stored = int(bits), int(stored)
	if info.Flags&FlagZstd == 0 && info.Stored != bitops.BytesFor(info.Bits) {
		return info, nil, fmt.Errorf("%w: %d bytes for %d bits", ErrCorrupt, info.Stored, info.Bits)
	}

	end := pos + info.Stored
	if len(data) < end+crcSize {
		return info, nil, ErrFrameTruncated
	}
	info.Size = end + crcSize
	if crc32.ChecksumIEEE(data[2:end]) != binary.LittleEndian.Uint32(data[end:]) {
		return info, nil, ErrChecksum
	}
	return info, data[pos:end], nil
}

func uvarint(data []byte, pos *int) (uint64, error) {
	v, n := binary.Uvarint(data[*pos:])
	switch {
	case n == 0:
		return 0, ErrFrameTruncated
	case n < 0:
		return 0, fmt.Errorf("%w: length overflows 64 bits", ErrCorrupt)
	}
	*pos += n
	return v, nil
}
