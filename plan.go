package bitcode

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/rawbytedev/bitcode/internal/bitops"
)

type opcode uint8

const (
	opBool opcode = iota
	opInt
	opUint
	opFloat32
	opFloat64
	opComplex64
	opComplex128
	opVarint
	opUvarint
	opRange
	opEnum
	opChar
	opString
	opBytes
	opSlice
	opArray
	opMap
	opPtr
	opStruct
	opCustom
)

// plan is the compiled encoding of one Go type. Plans form a graph: a
// recursive type points back at its own plan.
type plan struct {
	op     opcode
	typ    reflect.Type
	width  int
	signed bool
	// lo and hi bound opRange values; they hold int64 bit patterns when signed.
	lo, hi uint64
	count  uint64
	length int
	elem   *plan
	key    *plan
	fields []fieldPlan
	// raw marks slices and arrays whose elements may move as memory.
	raw bool
	// minBits is a lower bound on the encoded size, used to cap lengths.
	minBits int
}

type fieldPlan struct {
	index int
	name  string
	plan  *plan
}

var (
	marshalerType   = reflect.TypeOf((*Marshaler)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
	enumeratedType  = reflect.TypeOf((*Enumerated)(nil)).Elem()
)

func (c *Codec) planFor(t reflect.Type) (*plan, error) {
	c.mu.RLock()
	if p, ok := c.plans[t]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check
	if p, ok := c.plans[t]; ok {
		return p, nil
	}
	b := &planBuilder{plans: c.plans}
	p, err := b.build(t)
	if err != nil {
		// Drop everything this build touched: some entries may point at a
		// plan that never finished.
		for _, added := range b.added {
			delete(c.plans, added)
		}
		return nil, err
	}
	return p, nil
}

type planBuilder struct {
	plans map[reflect.Type]*plan
	added []reflect.Type
}

func (b *planBuilder) build(t reflect.Type) (*plan, error) {
	if p, ok := b.plans[t]; ok {
		return p, nil
	}
	p := &plan{typ: t}
	// Registered before filling so that recursive references resolve.
	b.plans[t] = p
	b.added = append(b.added, t)
	if err := b.fill(p, t); err != nil {
		return nil, err
	}
	return p, nil
}

func (b *planBuilder) fill(p *plan, t reflect.Type) error {
	k := t.Kind()
	if k == reflect.Interface {
		return unsupported(t)
	}
	if k != reflect.Pointer && isCustom(t) {
		p.op = opCustom
		return nil
	}
	if isInteger(k) {
		if n, ok := variantCount(t); ok {
			return setEnum(p, t, n)
		}
	}
	p.minBits = 1
	switch k {
	case reflect.Bool:
		p.op, p.width = opBool, 1
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		p.op, p.width, p.signed = opInt, bitops.WireBits(k), true
		p.minBits = p.width
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		p.op, p.width = opUint, bitops.WireBits(k)
		p.minBits = p.width
	case reflect.Int:
		p.op, p.signed = opVarint, true
	case reflect.Uint, reflect.Uintptr:
		p.op = opUvarint
	case reflect.Float32:
		p.op, p.width, p.minBits = opFloat32, 32, 32
	case reflect.Float64:
		p.op, p.width, p.minBits = opFloat64, 64, 64
	case reflect.Complex64:
		p.op, p.minBits = opComplex64, 64
	case reflect.Complex128:
		p.op, p.minBits = opComplex128, 128
	case reflect.String:
		p.op = opString
	case reflect.Slice:
		elem, err := b.build(t.Elem())
		if err != nil {
			return err
		}
		p.elem = elem
		if elem.op == opUint && elem.width == 8 {
			p.op = opBytes
		} else {
			p.op, p.raw = opSlice, isRaw(elem)
		}
	case reflect.Array:
		elem, err := b.build(t.Elem())
		if err != nil {
			return err
		}
		p.op, p.elem, p.length, p.raw = opArray, elem, t.Len(), isRaw(elem)
		p.minBits = t.Len() * elem.minBits
	case reflect.Map:
		key, err := b.build(t.Key())
		if err != nil {
			return err
		}
		elem, err := b.build(t.Elem())
		if err != nil {
			return err
		}
		p.op, p.key, p.elem = opMap, key, elem
	case reflect.Pointer:
		elem, err := b.build(t.Elem())
		if err != nil {
			return err
		}
		p.op, p.elem = opPtr, elem
	case reflect.Struct:
		p.op, p.minBits = opStruct, 0
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			opts, err := parseTag(sf.Tag.Get("bitcode"))
			if err != nil {
				return fmt.Errorf("%s.%s: %w", t, sf.Name, err)
			}
			if opts.skip {
				continue
			}
			var fp *plan
			if opts.active() {
				fp, err = b.tagged(sf.Type, opts)
			} else {
				fp, err = b.build(sf.Type)
			}
			if err != nil {
				return fmt.Errorf("%s.%s: %w", t, sf.Name, err)
			}
			p.fields = append(p.fields, fieldPlan{index: i, name: sf.Name, plan: fp})
			p.minBits += fp.minBits
		}
	default:
		return unsupported(t)
	}
	return nil
}

// tagged builds an uncached plan for a field carrying bitcode options. The
// options pass through pointers, slices and arrays to the integer leaf.
func (b *planBuilder) tagged(t reflect.Type, o tagOptions) (*plan, error) {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice:
		elem, err := b.tagged(t.Elem(), o)
		if err != nil {
			return nil, err
		}
		op := opPtr
		if t.Kind() == reflect.Slice {
			op = opSlice
		}
		return &plan{op: op, typ: t, elem: elem, minBits: 1}, nil
	case reflect.Array:
		elem, err := b.tagged(t.Elem(), o)
		if err != nil {
			return nil, err
		}
		return &plan{op: opArray, typ: t, elem: elem, length: t.Len(), minBits: t.Len() * elem.minBits}, nil
	}
	if !isInteger(t.Kind()) {
		return nil, fmt.Errorf("%w: bitcode tag on %s", ErrUnsupported, t)
	}
	p := &plan{typ: t, signed: isSigned(t.Kind())}
	switch {
	case o.varint:
		p.op, p.minBits = opUvarint, 1
		if p.signed {
			p.op = opVarint
		}
		return p, nil
	case o.char:
		p.op, p.width = opChar, CharBits
	case o.enum > 0:
		if err := setEnum(p, t, o.enum); err != nil {
			return nil, err
		}
	default:
		if err := setRange(p, t, o.min, o.max); err != nil {
			return nil, err
		}
	}
	p.minBits = p.width
	return p, nil
}

func setEnum(p *plan, t reflect.Type, n uint64) error {
	if n == 0 {
		return fmt.Errorf("%w: %s declares no variants", ErrUnsupported, t)
	}
	if overflows(t, n-1) {
		return fmt.Errorf("%w: %d variants do not fit %s", ErrUnsupported, n, t)
	}
	p.op, p.count, p.width, p.signed = opEnum, n, bitops.WidthFor(n), isSigned(t.Kind())
	p.minBits = p.width
	return nil
}

func setRange(p *plan, t reflect.Type, min, max string) error {
	zero := reflect.New(t).Elem()
	if p.signed {
		lo, err := strconv.ParseInt(min, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: min=%q: %v", ErrUnsupported, min, err)
		}
		hi, err := strconv.ParseInt(max, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: max=%q: %v", ErrUnsupported, max, err)
		}
		if lo > hi || zero.OverflowInt(lo) || zero.OverflowInt(hi) {
			return fmt.Errorf("%w: range [%d, %d] for %s", ErrUnsupported, lo, hi, t)
		}
		p.lo, p.hi = uint64(lo), uint64(hi)
	} else {
		lo, err := strconv.ParseUint(min, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: min=%q: %v", ErrUnsupported, min, err)
		}
		hi, err := strconv.ParseUint(max, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: max=%q: %v", ErrUnsupported, max, err)
		}
		if lo > hi || zero.OverflowUint(hi) {
			return fmt.Errorf("%w: range [%d, %d] for %s", ErrUnsupported, lo, hi, t)
		}
		p.lo, p.hi = lo, hi
	}
	p.op = opRange
	p.width = bitops.RangeWidth(int64(p.lo), int64(p.hi))
	return nil
}

func isCustom(t reflect.Type) bool {
	pt := reflect.PointerTo(t)
	return t.Implements(marshalerType) || pt.Implements(marshalerType) || pt.Implements(unmarshalerType)
}

func variantCount(t reflect.Type) (uint64, bool) {
	var v reflect.Value
	switch {
	case t.Implements(enumeratedType):
		v = reflect.New(t).Elem()
	case reflect.PointerTo(t).Implements(enumeratedType):
		v = reflect.New(t)
	default:
		return 0, false
	}
	n := v.Interface().(Enumerated).VariantCount()
	if n < 0 {
		n = 0
	}
	return uint64(n), true
}

func isRaw(p *plan) bool {
	switch p.op {
	case opInt, opUint, opFloat32, opFloat64:
		return int(p.typ.Size())*8 == p.width
	}
	return false
}

func isInteger(k reflect.Kind) bool {
	return isSigned(k) || (k >= reflect.Uint && k <= reflect.Uintptr)
}

func isSigned(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func overflows(t reflect.Type, v uint64) bool {
	zero := reflect.New(t).Elem()
	if isSigned(t.Kind()) {
		return v > 1<<63-1 || zero.OverflowInt(int64(v))
	}
	return zero.OverflowUint(v)
}

// tagOptions are the parsed contents of a `bitcode:"..."` struct tag:
//
//	-            skip the field
//	varint       bucket varint instead of the fixed width
//	char         21-bit Unicode scalar value
//	enum=N       variant index in the minimal width for N variants
//	min=A,max=B  bounded integer stored as v-A
type tagOptions struct {
	skip, varint, char bool
	enum               uint64
	min, max           string
}

func (o tagOptions) active() bool {
	return o.varint || o.char || o.enum > 0 || o.min != ""
}

func parseTag(tag string) (tagOptions, error) {
	var o tagOptions
	if tag == "" {
		return o, nil
	}
	if tag == "-" {
		o.skip = true
		return o, nil
	}
	set := 0
	for _, part := range strings.Split(tag, ",") {
		name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch name {
		case "varint":
			o.varint = true
			set++
		case "char":
			o.char = true
			set++
		case "enum":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil || n == 0 {
				return o, fmt.Errorf("%w: bad tag option %q", ErrUnsupported, part)
			}
			o.enum = n
			set++
		case "min":
			o.min = value
		case "max":
			o.max = value
		default:
			return o, fmt.Errorf("%w: unknown tag option %q", ErrUnsupported, part)
		}
	}
	if (o.min == "") != (o.max == "") {
		return o, fmt.Errorf("%w: tag %q needs both min and max", ErrUnsupported, tag)
	}
	if o.min != "" {
		set++
	}
	if set > 1 {
		return o, fmt.Errorf("%w: tag %q mixes encodings", ErrUnsupported, tag)
	}
	return o, nil
}
