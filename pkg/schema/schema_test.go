package schema

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/bitcode"
	"github.com/rawbytedev/bitcode/internal/bitops"
)

var codecs = []*bitcode.Codec{
	bitcode.NewCodec(bitcode.DefaultOptions()),
	bitcode.NewCodec(bitcode.Options{Portable: true}),
}

func mustParse(t *testing.T, src string) *Descriptor {
	t.Helper()
	d, err := Parse([]byte(src))
	require.NoError(t, err)
	return d
}

func TestLoadAndSizes(t *testing.T) {
	d, err := Load("testdata/reading.yaml")
	require.NoError(t, err)

	got := map[string][2]int{}
	d.Walk(func(path string, n *Descriptor) {
		got[path] = [2]int{n.MinBits(), n.TagBits()}
	})
	want := map[string][2]int{
		"$":              {1 + 4 + 1 + 2 + 1 + 1 + 21 + 1, 0},
		"$.id":           {1, 0},
		"$.level":        {4, 0},
		"$.ok":           {1, 0},
		"$.shape":        {2, 2},
		"$.shape.circle": {32, 0},
		"$.shape.rect":   {32, 0},
		"$.shape.rect[]": {16, 0},
		"$.tags":         {1, 0},
		"$.tags[]":       {1, 0},
		"$.note":         {1, 0},
		"$.note[]":       {1, 0},
		"$.mark":         {21, 0},
		"$.counts":       {1, 0},
		"$.counts.key":   {1, 0},
		"$.counts.value": {1, 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sizes mismatch (-want +got):\n%s", diff)
	}
}

func TestYAMLValueRoundTrip(t *testing.T) {
	d, err := Load("testdata/reading.yaml")
	require.NoError(t, err)
	var in any
	require.NoError(t, yaml.Unmarshal(readFile(t, "testdata/reading_value.yaml"), &in))

	for _, c := range codecs {
		b, err := Marshal(c, d, in)
		require.NoError(t, err)

		out, err := Unmarshal(c, d, b)
		require.NoError(t, err)
		want := map[string]any{
			"id":    uint64(300),
			"level": int64(-3),
			"ok":    true,
			"shape": EnumValue{Index: 2, Name: "rect", Value: []any{uint64(640), uint64(480)}},
			"tags":  []any{"red", "", "größe"},
			"note":  nil,
			"mark":  '→',
			"counts": []MapEntry{
				{Key: "a", Value: int64(-1)},
				{Key: "b", Value: int64(70000)},
			},
		}
		if diff := cmp.Diff(want, out); diff != "" {
			t.Errorf("decoded mismatch (-want +got):\n%s", diff)
		}

		// Plain output encodes back to the same bits.
		again, err := Marshal(c, d, d.Plain(out))
		require.NoError(t, err)
		require.Equal(t, b, again)
	}
}

func TestMatchesReflectionLayout(t *testing.T) {
	type goShape struct {
		A uint8
		B int16 `bitcode:"min=-8,max=7"`
		C []string
		D *uint32
		E [3]bool
		F uint `bitcode:"varint"`
	}
	d := mustParse(t, `
kind: struct
fields:
  - {name: a, type: u8}
  - {name: b, type: {kind: range, min: -8, max: 7}}
  - {name: c, type: {kind: seq, elem: string}}
  - {name: d, type: {kind: option, elem: u32}}
  - {name: e, type: {kind: array, len: 3, elem: bool}}
  - {name: f, type: uvarint}
`)
	seven := uint32(7)
	native, err := bitcode.MarshalBits(goShape{A: 200, B: -8, C: []string{"x", "yz"}, D: &seven, E: [3]bool{true, false, true}, F: 1 << 40})
	require.NoError(t, err)
	dynamic, err := Marshal(codecs[0], d, map[string]any{
		"a": 200, "b": -8, "c": []string{"x", "yz"}, "d": 7, "e": []bool{true, false, true}, "f": uint64(1 << 40),
	})
	require.NoError(t, err)
	require.Equal(t, native, dynamic)
}

func TestCompactSizes(t *testing.T) {
	c := codecs[0]
	opt := mustParse(t, "{kind: option, elem: u8}")
	b, err := Marshal(c, opt, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Bits)
	b, err = Marshal(c, opt, 5)
	require.NoError(t, err)
	assert.Equal(t, 9, b.Bits)

	seq := mustParse(t, "{kind: seq, elem: u64}")
	b, err = Marshal(c, seq, []any{})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Bits)

	tuple := mustParse(t, "{kind: array, len: 3, elem: bool}")
	b, err = Marshal(c, tuple, []any{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, bitcode.Buffer{Bytes: []byte{0x05}, Bits: 3}, b)

	for n, width := range map[int]int{1: 0, 2: 1, 3: 2, 5: 3, 8: 3, 9: 4} {
		variants := make([]Variant, n)
		for i := range variants {
			variants[i].Name = string(rune('a' + i))
		}
		e := &Descriptor{Kind: Enum, Variants: variants}
		require.NoError(t, e.Compile())
		assert.Equal(t, width, e.TagBits(), "%d variants", n)
		b, err := Marshal(c, e, EnumValue{Index: n - 1})
		require.NoError(t, err)
		assert.Equal(t, width, b.Bits)
	}
}

func TestNestedOptions(t *testing.T) {
	d := mustParse(t, "{kind: option, elem: {kind: option, elem: bool}}")
	for _, v := range []any{nil, Some{Value: nil}, Some{Value: Some{Value: true}}} {
		b, err := Marshal(codecs[0], d, v)
		require.NoError(t, err)
		out, err := Unmarshal(codecs[0], d, b)
		require.NoError(t, err)
		if diff := cmp.Diff(v, out); diff != "" {
			t.Errorf("option mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestMapKeepsDuplicates(t *testing.T) {
	d := mustParse(t, "{kind: map, key: u8, value: bool}")
	in := []MapEntry{{Key: 1, Value: true}, {Key: 1, Value: false}}
	b, err := Marshal(codecs[0], d, in)
	require.NoError(t, err)
	out, err := Unmarshal(codecs[0], d, b)
	require.NoError(t, err)
	want := []MapEntry{{Key: uint64(1), Value: true}, {Key: uint64(1), Value: false}}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("map mismatch (-want +got):\n%s", diff)
	}
}

func TestIntegerKinds(t *testing.T) {
	c := codecs[0]
	cases := []struct {
		kind Kind
		in   any
		want any
	}{
		{U8, 255, uint64(255)},
		{U64, uint64(math.MaxUint64), uint64(math.MaxUint64)},
		{I8, -128, int64(-128)},
		{I16, int16(-300), int64(-300)},
		{I64, int64(math.MinInt64), int64(math.MinInt64)},
		{Varint, -5, int64(-5)},
		{F32, 1.5, float32(1.5)},
		{F64, 3, float64(3)},
		{Char, "é", 'é'},
		{Bytes, "ab", []byte("ab")},
	}
	for _, tc := range cases {
		d := &Descriptor{Kind: tc.kind}
		require.NoError(t, d.Compile())
		b, err := Marshal(c, d, tc.in)
		require.NoError(t, err, tc.kind)
		out, err := Unmarshal(c, d, b)
		require.NoError(t, err, tc.kind)
		assert.Equal(t, tc.want, out, tc.kind)
	}
}

func TestValueErrors(t *testing.T) {
	d, err := Load("testdata/reading.yaml")
	require.NoError(t, err)
	small := func(kind Kind) *Descriptor {
		s := &Descriptor{Kind: kind}
		require.NoError(t, s.Compile())
		return s
	}
	cases := []struct {
		d *Descriptor
		v any
	}{
		{small(U8), 256},
		{small(U8), -1},
		{small(I8), 128},
		{small(Bool), 1},
		{small(String), 3},
		{small(Char), "ab"},
		{small(Unit), 0},
		{small(Uvarint), 1.5},
		{mustParse(t, "{kind: range, min: 0, max: 10}"), 11},
		{mustParse(t, "{kind: array, len: 2, elem: u8}"), []any{1}},
		{d, map[string]any{"id": 1}},
		{d, map[string]any{"id": 1, "level": 0, "ok": true, "shape": "hexagon", "tags": []any{}, "mark": "x", "counts": map[string]any{}}},
		{d, map[string]any{"id": 1, "level": 0, "ok": true, "shape": "point", "tags": []any{}, "mark": "x", "counts": map[string]any{}, "extra": 1}},
		{d, map[string]any{"id": 1, "level": 0, "ok": true, "shape": map[string]any{"point": 1}, "tags": []any{}, "mark": "x", "counts": map[string]any{}}},
	}
	for i, tc := range cases {
		_, err := Marshal(codecs[0], tc.d, tc.v)
		require.ErrorIs(t, err, ErrValue, "case %d", i)
	}

	_, err = Marshal(codecs[0], small(String), "\xff")
	require.ErrorIs(t, err, bitcode.ErrInvalidData)
	_, err = Marshal(codecs[0], small(Char), 0xd800)
	require.ErrorIs(t, err, bitcode.ErrInvalidData)
}

func TestDescriptorErrors(t *testing.T) {
	for _, src := range []string{
		"kind: nope",
		"{}",
		"{kind: range, min: 5, max: 1}",
		"{kind: enum}",
		"{kind: enum, variants: [{name: a}, {name: a}]}",
		"{kind: struct, fields: [{name: x}]}",
		"{kind: struct, fields: [{type: u8}]}",
		"{kind: seq}",
		"{kind: map, key: u8}",
		"{kind: array, len: -1, elem: u8}",
		"[not, a, descriptor]",
	} {
		_, err := Parse([]byte(src))
		require.ErrorIs(t, err, ErrSchema, src)
	}

	raw := &Descriptor{Kind: U8}
	_, err := Marshal(codecs[0], raw, 1)
	require.ErrorIs(t, err, ErrNotCompiled)
	_, err = Unmarshal(codecs[0], raw, bitcode.Buffer{Bytes: []byte{1}, Bits: 8})
	require.ErrorIs(t, err, ErrNotCompiled)

	_, err = Load("testdata/missing.yaml")
	require.Error(t, err)
}

func TestDecodeRejectsBadData(t *testing.T) {
	c := codecs[0]
	enum := mustParse(t, "{kind: enum, variants: [{name: a}, {name: b}, {name: c}]}")
	_, err := Unmarshal(c, enum, bitcode.Buffer{Bytes: []byte{0x03}, Bits: 2})
	require.ErrorIs(t, err, bitcode.ErrInvalidData)

	rng := mustParse(t, "{kind: range, min: 0, max: 10}")
	_, err = Unmarshal(c, rng, bitcode.Buffer{Bytes: []byte{0x0f}, Bits: 4})
	require.ErrorIs(t, err, bitcode.ErrInvalidData)

	seq := mustParse(t, "{kind: seq, elem: u32}")
	_, err = Unmarshal(c, seq, bitcode.Buffer{Bytes: []byte{0xff, 0xff}, Bits: 16})
	require.Error(t, err)
}

func TestTruncationAtEveryBit(t *testing.T) {
	d, err := Load("testdata/reading.yaml")
	require.NoError(t, err)
	var in any
	require.NoError(t, yaml.Unmarshal(readFile(t, "testdata/reading_value.yaml"), &in))
	for _, c := range codecs {
		b, err := Marshal(c, d, in)
		require.NoError(t, err)
		for n := 0; n < b.Bits; n++ {
			_, err := Unmarshal(c, d, bitcode.Buffer{Bytes: b.Bytes[:bitops.BytesFor(n)], Bits: n})
			require.True(t, errors.Is(err, bitcode.ErrTruncated), "cut at %d: %v", n, err)
		}
	}
}

func TestUnmarshalBytesPadding(t *testing.T) {
	d := mustParse(t, "{kind: array, len: 3, elem: bool}")
	out, err := UnmarshalBytes(codecs[0], d, []byte{0x05})
	require.NoError(t, err)
	assert.Equal(t, []any{true, false, true}, out)

	strict := bitcode.NewCodec(bitcode.Options{Strict: true})
	_, err = UnmarshalBytes(strict, d, []byte{0x05, 0x00})
	require.ErrorIs(t, err, bitcode.ErrTrailingData)
}

func TestZeroWidthSequences(t *testing.T) {
	units := mustParse(t, "{kind: seq, elem: unit}")
	single := mustParse(t, "{kind: seq, elem: {kind: enum, variants: [{name: only}]}}")
	set := mustParse(t, "{kind: map, key: unit, value: unit}")
	for _, c := range codecs {
		b, err := Marshal(c, units, []any{nil, nil, nil, nil, nil})
		require.NoError(t, err)
		assert.Equal(t, bitcode.UvarintBits(5), b.Bits)
		out, err := Unmarshal(c, units, b)
		require.NoError(t, err)
		assert.Equal(t, []any{nil, nil, nil, nil, nil}, out)

		b, err = Marshal(c, single, []any{"only", "only"})
		require.NoError(t, err)
		out, err = Unmarshal(c, single, b)
		require.NoError(t, err)
		want := []any{EnumValue{Index: 0, Name: "only"}, EnumValue{Index: 0, Name: "only"}}
		if diff := cmp.Diff(want, out); diff != "" {
			t.Errorf("enum seq mismatch (-want +got):\n%s", diff)
		}

		b, err = Marshal(c, set, []MapEntry{{}, {}})
		require.NoError(t, err)
		out, err = Unmarshal(c, set, b)
		require.NoError(t, err)
		assert.Equal(t, []MapEntry{{}, {}}, out)
	}

	limited := bitcode.NewCodec(bitcode.Options{MaxZeroWidthLen: 3})
	_, err := Marshal(limited, units, make([]any, 4))
	require.ErrorIs(t, err, bitcode.ErrInvalidData)
}
