package schema

import (
	"cmp"
	"fmt"
	"math"
	"reflect"
	"slices"
	"unicode/utf8"
)

// Some marks a present optional value. It is only needed to tell a present
// nil (an inner None) apart from an absent value.
type Some struct {
	Value any
}

// EnumValue is a decoded enum variant. When encoding, Name wins over Index
// if both are set.
type EnumValue struct {
	Index int
	Name  string
	Value any
}

// MapEntry is one decoded key/value pair. Decoded maps keep duplicates and
// wire order.
type MapEntry struct {
	Key   any
	Value any
}

func valueErr(path string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrValue, path, fmt.Sprintf(format, args...))
}

// toInt64 accepts any Go integer and integral floats, as produced by YAML
// and JSON decoders.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), uint64(x) <= math.MaxInt64
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), x <= math.MaxInt64
	case float64:
		if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	case float64:
		if x != math.Trunc(x) || x < 0 || x >= math.MaxUint64 {
			return 0, false
		}
		return uint64(x), true
	}
	i, ok := toInt64(v)
	return uint64(i), ok && i >= 0
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	if u, ok := toUint64(v); ok {
		return float64(u), true
	}
	return 0, false
}

func toRune(v any) (rune, bool) {
	if s, ok := v.(string); ok {
		r, size := utf8.DecodeRuneInString(s)
		return r, size == len(s) && size > 0 && r != utf8.RuneError
	}
	i, ok := toInt64(v)
	return rune(i), ok && i >= 0 && i <= utf8.MaxRune
}

// elements returns the items of any slice or array value.
func elements(v any) ([]any, bool) {
	if xs, ok := v.([]any); ok {
		return xs, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// entries returns the pairs of a []MapEntry or any Go map. Go maps are
// ordered by key so encoding is deterministic.
func entries(v any) ([]MapEntry, bool) {
	if es, ok := v.([]MapEntry); ok {
		return es, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return nil, false
	}
	out := make([]MapEntry, 0, rv.Len())
	for it := rv.MapRange(); it.Next(); {
		out = append(out, MapEntry{Key: it.Key().Interface(), Value: it.Value().Interface()})
	}
	slices.SortFunc(out, func(a, b MapEntry) int {
		return cmp.Compare(fmt.Sprint(a.Key), fmt.Sprint(b.Key))
	})
	return out, true
}

// fields returns the members of a struct value given as a string-keyed map.
func fields(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, x := range m {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[s] = x
		}
		return out, true
	}
	return nil, false
}

// Plain converts a decoded value into data that marshals naturally as YAML
// or JSON: options collapse to their value or nil, chars become strings,
// enums become their name or a one-entry {name: payload} map, and maps with
// string keys become Go maps.
func (d *Descriptor) Plain(v any) any {
	switch d.Kind {
	case Char:
		if r, ok := v.(rune); ok {
			return string(r)
		}
	case Option:
		if s, ok := v.(Some); ok {
			return d.Elem.Plain(s.Value)
		}
	case Enum:
		if ev, ok := v.(EnumValue); ok && ev.Index >= 0 && ev.Index < len(d.Variants) {
			if p := d.Variants[ev.Index].Payload; p != nil {
				return map[string]any{ev.Name: p.Plain(ev.Value)}
			}
			return ev.Name
		}
	case Seq, Array:
		if xs, ok := v.([]any); ok {
			out := make([]any, len(xs))
			for i, x := range xs {
				out[i] = d.Elem.Plain(x)
			}
			return out
		}
	case Map:
		if es, ok := v.([]MapEntry); ok {
			if d.Key.Kind == String {
				m := make(map[string]any, len(es))
				for _, e := range es {
					m[e.Key.(string)] = d.Value.Plain(e.Value)
				}
				return m
			}
			out := make([]any, len(es))
			for i, e := range es {
				out[i] = map[string]any{"key": d.Key.Plain(e.Key), "value": d.Value.Plain(e.Value)}
			}
			return out
		}
	case Struct:
		if m, ok := v.(map[string]any); ok {
			out := make(map[string]any, len(m))
			for _, f := range d.Fields {
				out[f.Name] = f.Type.Plain(m[f.Name])
			}
			return out
		}
	}
	return v
}
