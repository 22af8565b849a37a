package schema

import (
	"fmt"
	"strconv"

	"github.com/rawbytedev/bitcode"
	"github.com/rawbytedev/bitcode/internal/bitops"
)

// Encode writes v according to d. Accepted forms:
//
//	unit              nil
//	bool              bool
//	integers, range   any Go integer, or an integral float64
//	f32, f64          any Go number
//	char              rune, or a one-rune string
//	string            string
//	bytes             []byte or string
//	option            nil for absent, Some{v} or any other value for present
//	enum              EnumValue, a variant name, or a one-entry map {name: payload}
//	seq, array        any slice or array
//	map               []MapEntry or any Go map
//	struct            map[string]any holding every field
func (d *Descriptor) Encode(e bitcode.Encoder, v any) error {
	if !d.compiled {
		return ErrNotCompiled
	}
	return d.encode(e, "$", v)
}

func (d *Descriptor) encode(e bitcode.Encoder, path string, v any) error {
	switch d.Kind {
	case Unit:
		if v != nil {
			return valueErr(path, "unit takes no value, got %T", v)
		}
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return valueErr(path, "want bool, got %T", v)
		}
		e.EncodeBool(b)
	case U8, U16, U32, U64:
		u, ok := toUint64(v)
		if !ok || u > bitops.Mask(d.width) {
			return valueErr(path, "%v does not fit %s", v, d.Kind)
		}
		e.EncodeBits(u, d.width)
	case I8, I16, I32, I64:
		i, ok := toInt64(v)
		limit := int64(1) << (d.width - 1)
		if !ok || (d.width < 64 && (i < -limit || i >= limit)) {
			return valueErr(path, "%v does not fit %s", v, d.Kind)
		}
		e.EncodeBits(uint64(i), d.width)
	case Uvarint:
		u, ok := toUint64(v)
		if !ok {
			return valueErr(path, "want unsigned integer, got %v", v)
		}
		e.EncodeUvarint(u)
	case Varint:
		i, ok := toInt64(v)
		if !ok {
			return valueErr(path, "want integer, got %v", v)
		}
		e.EncodeVarint(i)
	case Range:
		i, ok := toInt64(v)
		if !ok || i < d.Min || i > d.Max {
			return valueErr(path, "%v outside [%d, %d]", v, d.Min, d.Max)
		}
		e.EncodeBits(uint64(i)-uint64(d.Min), d.width)
	case F32:
		f, ok := toFloat64(v)
		if !ok {
			return valueErr(path, "want number, got %T", v)
		}
		if x, is32 := v.(float32); is32 {
			e.EncodeFloat32(x)
		} else {
			e.EncodeFloat32(float32(f))
		}
	case F64:
		f, ok := toFloat64(v)
		if !ok {
			return valueErr(path, "want number, got %T", v)
		}
		e.EncodeFloat64(f)
	case Char:
		r, ok := toRune(v)
		if !ok {
			return valueErr(path, "want a single character, got %v", v)
		}
		return e.EncodeChar(r)
	case String:
		s, ok := v.(string)
		if !ok {
			return valueErr(path, "want string, got %T", v)
		}
		return e.EncodeString(s)
	case Bytes:
		switch b := v.(type) {
		case []byte:
			e.EncodeBytes(b)
		case string:
			e.EncodeBytes([]byte(b))
		default:
			return valueErr(path, "want bytes, got %T", v)
		}
	case Option:
		if v == nil {
			e.EncodeOption(false)
			return nil
		}
		if s, ok := v.(Some); ok {
			v = s.Value
		}
		e.EncodeOption(true)
		return d.Elem.encode(e, path+"[]", v)
	case Enum:
		return d.encodeEnum(e, path, v)
	case Seq:
		xs, ok := elements(v)
		if !ok {
			return valueErr(path, "want a list, got %T", v)
		}
		if err := e.EncodeSeqLen(len(xs), d.Elem.minBits); err != nil {
			return err
		}
		return d.encodeElems(e, path, xs)
	case Array:
		xs, ok := elements(v)
		if !ok || len(xs) != d.Len {
			return valueErr(path, "want a list of %d items, got %v", d.Len, v)
		}
		return d.encodeElems(e, path, xs)
	case Map:
		es, ok := entries(v)
		if !ok {
			return valueErr(path, "want a map, got %T", v)
		}
		if err := e.EncodeSeqLen(len(es), d.Key.minBits+d.Value.minBits); err != nil {
			return err
		}
		for _, kv := range es {
			if err := d.Key.encode(e, path+".key", kv.Key); err != nil {
				return err
			}
			if err := d.Value.encode(e, path+".value", kv.Value); err != nil {
				return err
			}
		}
	case Struct:
		m, ok := fields(v)
		if !ok {
			return valueErr(path, "want a mapping of fields, got %T", v)
		}
		for name := range m {
			if _, known := d.index[name]; !known {
				return valueErr(path, "unknown field %q", name)
			}
		}
		for _, f := range d.Fields {
			x, present := m[f.Name]
			if !present && f.Type.Kind != Option && f.Type.Kind != Unit {
				return valueErr(path, "missing field %q", f.Name)
			}
			if err := f.Type.encode(e, path+"."+f.Name, x); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Descriptor) encodeElems(e bitcode.Encoder, path string, xs []any) error {
	for i, x := range xs {
		if err := d.Elem.encode(e, path+"["+strconv.Itoa(i)+"]", x); err != nil {
			return err
		}
	}
	return nil
}

func (d *Descriptor) encodeEnum(e bitcode.Encoder, path string, v any) error {
	var (
		index   = -1
		payload any
	)
	switch x := v.(type) {
	case EnumValue:
		index, payload = x.Index, x.Value
		if x.Name != "" {
			i, ok := d.index[x.Name]
			if !ok {
				return valueErr(path, "unknown variant %q", x.Name)
			}
			index = i
		}
	case string:
		i, ok := d.index[x]
		if !ok {
			return valueErr(path, "unknown variant %q", x)
		}
		index = i
	default:
		m, ok := fields(v)
		if !ok || len(m) != 1 {
			return valueErr(path, "want a variant name or {name: payload}, got %v", v)
		}
		for name, p := range m {
			i, known := d.index[name]
			if !known {
				return valueErr(path, "unknown variant %q", name)
			}
			index, payload = i, p
		}
	}
	if err := e.EncodeVariant(index, len(d.Variants)); err != nil {
		return err
	}
	variant := d.Variants[index]
	if variant.Payload == nil {
		if payload != nil {
			return valueErr(path, "variant %q carries no payload", variant.Name)
		}
		return nil
	}
	return variant.Payload.encode(e, path+"."+variant.Name, payload)
}

// Decode reads one value of d. Produced forms:
//
//	unit nil, bool bool, u8..u64 and uvarint uint64, i8..i64, varint and
//	range int64, f32 float32, f64 float64, char rune, string string,
//	bytes []byte, option nil or Some, enum EnumValue, seq and array []any,
//	map []MapEntry, struct map[string]any.
func (d *Descriptor) Decode(dec bitcode.Decoder) (any, error) {
	if !d.compiled {
		return nil, ErrNotCompiled
	}
	return d.decode(dec)
}

func (d *Descriptor) decode(dec bitcode.Decoder) (any, error) {
	switch d.Kind {
	case Unit:
		return nil, nil
	case Bool:
		return dec.DecodeBool()
	case U8, U16, U32, U64:
		return dec.DecodeBits(d.width)
	case I8, I16, I32, I64:
		u, err := dec.DecodeBits(d.width)
		if err != nil {
			return nil, err
		}
		shift := uint(64 - d.width)
		return int64(u<<shift) >> shift, nil
	case Uvarint:
		return dec.DecodeUvarint()
	case Varint:
		return dec.DecodeVarint()
	case Range:
		u, err := dec.DecodeBits(d.width)
		if err != nil {
			return nil, err
		}
		if u > uint64(d.Max)-uint64(d.Min) {
			return nil, fmt.Errorf("%w: range offset %d above %d", bitcode.ErrInvalidData, u, uint64(d.Max)-uint64(d.Min))
		}
		return int64(uint64(d.Min) + u), nil
	case F32:
		return dec.DecodeFloat32()
	case F64:
		return dec.DecodeFloat64()
	case Char:
		return dec.DecodeChar()
	case String:
		return dec.DecodeString()
	case Bytes:
		return dec.DecodeBytes()
	case Option:
		present, err := dec.DecodeOption()
		if err != nil || !present {
			return nil, err
		}
		x, err := d.Elem.decode(dec)
		if err != nil {
			return nil, err
		}
		return Some{Value: x}, nil
	case Enum:
		i, err := dec.DecodeVariant(len(d.Variants))
		if err != nil {
			return nil, err
		}
		ev := EnumValue{Index: i, Name: d.Variants[i].Name}
		if p := d.Variants[i].Payload; p != nil {
			if ev.Value, err = p.decode(dec); err != nil {
				return nil, err
			}
		}
		return ev, nil
	case Seq:
		n, err := dec.DecodeLen(d.Elem.minBits)
		if err != nil {
			return nil, err
		}
		return d.decodeElems(dec, n)
	case Array:
		return d.decodeElems(dec, d.Len)
	case Map:
		n, err := dec.DecodeLen(d.Key.minBits + d.Value.minBits)
		if err != nil {
			return nil, err
		}
		out := make([]MapEntry, 0, min(n, 64))
		for i := 0; i < n; i++ {
			k, err := d.Key.decode(dec)
			if err != nil {
				return nil, err
			}
			v, err := d.Value.decode(dec)
			if err != nil {
				return nil, err
			}
			out = append(out, MapEntry{Key: k, Value: v})
		}
		return out, nil
	case Struct:
		out := make(map[string]any, len(d.Fields))
		for _, f := range d.Fields {
			x, err := f.Type.decode(dec)
			if err != nil {
				return nil, err
			}
			out[f.Name] = x
		}
		return out, nil
	}
	return nil, ErrNotCompiled
}

func (d *Descriptor) decodeElems(dec bitcode.Decoder, n int) ([]any, error) {
	out := make([]any, 0, min(n, 64))
	for i := 0; i < n; i++ {
		x, err := d.Elem.decode(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// Marshal encodes v as d with codec c.
func Marshal(c *bitcode.Codec, d *Descriptor, v any) (bitcode.Buffer, error) {
	return c.EncodeWith(func(e bitcode.Encoder) error { return d.Encode(e, v) })
}

// Unmarshal decodes one value of d from b with codec c. Trailing data is
// handled as the codec's options say.
func Unmarshal(c *bitcode.Codec, d *Descriptor, b bitcode.Buffer) (any, error) {
	var out any
	err := c.DecodeWith(b, func(dec bitcode.Decoder) error {
		var err error
		out, err = d.Decode(dec)
		return err
	})
	return out, err
}

// UnmarshalBytes is Unmarshal over padded bytes whose exact bit length is
// unknown. Up to seven zero padding bits are accepted.
func UnmarshalBytes(c *bitcode.Codec, d *Descriptor, data []byte) (any, error) {
	var out any
	err := c.DecodeBytesWith(data, func(dec bitcode.Decoder) error {
		var err error
		out, err = d.Decode(dec)
		return err
	})
	return out, err
}
