package bitcode

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"slices"
	"sync"
	"unsafe"
)

// DefaultMaxDepth bounds nesting of pointers, sequences, maps and custom
// codecs. Decoding recursive types from hostile input stops here instead of
// exhausting the stack.
const DefaultMaxDepth = 10000

// DefaultMaxZeroWidthLen bounds sequences and maps whose elements may
// encode to no bits at all, such as []struct{}. The input cannot bound them.
const DefaultMaxZeroWidthLen = 1 << 20

// initialCap bounds the first allocation for a decoded sequence or map.
const initialCap = 64

// Options configures a Codec. The zero value is valid: no fast path, the
// native container, lenient trailing data.
type Options struct {
	// FastPath copies byte-aligned runs of fixed-width numbers as memory when
	// the host is little-endian. Output is identical either way.
	FastPath bool
	// Portable forces the bitio-backed containers. They are always used on
	// big-endian hosts.
	Portable bool
	// Strict turns trailing data after a top-level value into ErrTrailingData.
	Strict bool
	// MaxDepth overrides DefaultMaxDepth when positive.
	MaxDepth int
	// MaxZeroWidthLen overrides DefaultMaxZeroWidthLen when positive. Encode
	// and decode apply the same limit.
	MaxZeroWidthLen int
	// Logger receives trailing-data warnings. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOptions enables the fast path.
func DefaultOptions() Options {
	return Options{FastPath: true}
}

// Codec encodes Go values with cached per-type plans. It is safe for
// concurrent use.
type Codec struct {
	opts     Options
	t        transcoder
	portable bool
	maxDepth int
	maxZero  int
	mu       sync.RWMutex
	plans    map[reflect.Type]*plan
}

func NewCodec(opts Options) *Codec {
	c := &Codec{
		opts:     opts,
		t:        newTranscoder(opts.FastPath),
		portable: opts.Portable || !hostLittleEndian,
		maxDepth: opts.MaxDepth,
		maxZero:  opts.MaxZeroWidthLen,
		plans:    make(map[reflect.Type]*plan),
	}
	if c.maxDepth <= 0 {
		c.maxDepth = DefaultMaxDepth
	}
	if c.maxZero <= 0 {
		c.maxZero = DefaultMaxZeroWidthLen
	}
	return c
}

// Options returns the options the codec was built with.
func (c *Codec) Options() Options { return c.opts }

// FastPath reports whether raw memory copies are enabled on this host.
func (c *Codec) FastPath() bool { return c.t.native }

func (c *Codec) logger() *slog.Logger {
	if c.opts.Logger != nil {
		return c.opts.Logger
	}
	return slog.Default()
}

func (c *Codec) newSink() Sink {
	if c.portable {
		return NewPortableWriter()
	}
	return NewWriter(64)
}

func (c *Codec) newSource(data []byte, bits int) (Source, error) {
	if c.portable {
		return NewPortableReader(data, bits)
	}
	return NewBitReader(data, bits)
}

// Marshal encodes v and returns the padded bytes. A pointer argument is
// followed rather than encoded as an option.
func (c *Codec) Marshal(v any) ([]byte, error) {
	b, err := c.MarshalBits(v)
	return b.Bytes, err
}

// MarshalBits encodes v and returns the buffer with its exact bit length.
func (c *Codec) MarshalBits(v any) (Buffer, error) {
	return c.EncodeWith(func(e Encoder) error { return e.EncodeValue(v) })
}

// EncodeWith runs fn against a fresh encoder and returns what it wrote.
func (c *Codec) EncodeWith(fn func(Encoder) error) (Buffer, error) {
	e := &encoder{s: c.newSink(), t: c.t, c: c}
	if err := fn(e); err != nil {
		return Buffer{}, err
	}
	return e.s.Finish(), nil
}

// EncodeTo appends v to s at its current cursor.
func (c *Codec) EncodeTo(s Sink, v any) error {
	return c.encodeAny(&encoder{s: s, t: c.t, c: c}, v)
}

// Unmarshal decodes one value from data into ptr. Up to seven zero padding
// bits at the end are expected; anything more is trailing data.
func (c *Codec) Unmarshal(data []byte, ptr any) error {
	return c.DecodeBytesWith(data, func(d Decoder) error { return d.DecodeValue(ptr) })
}

// UnmarshalBits decodes one value that must span exactly b.Bits bits.
func (c *Codec) UnmarshalBits(b Buffer, ptr any) error {
	return c.DecodeWith(b, func(d Decoder) error { return d.DecodeValue(ptr) })
}

// DecodeWith runs fn against a decoder over b and then checks that b was
// consumed.
func (c *Codec) DecodeWith(b Buffer, fn func(Decoder) error) error {
	return c.decodeTop(b.Bytes, b.Bits, false, fn)
}

// DecodeBytesWith is DecodeWith over padded bytes, with the trailing data
// rule of Unmarshal.
func (c *Codec) DecodeBytesWith(data []byte, fn func(Decoder) error) error {
	return c.decodeTop(data, len(data)*8, true, fn)
}

// DecodeFrom decodes one value at the cursor of s and leaves the cursor
// after it, so several values can be read from one stream.
func (c *Codec) DecodeFrom(s Source, ptr any) error {
	return c.decodeAny(&decoder{s: s, t: c.t, c: c}, ptr)
}

func (c *Codec) decodeTop(data []byte, bits int, padded bool, fn func(Decoder) error) error {
	s, err := c.newSource(data, bits)
	if err != nil {
		return err
	}
	if err := fn(&decoder{s: s, t: c.t, c: c}); err != nil {
		return err
	}
	return c.checkTrailing(s, padded)
}

func (c *Codec) checkTrailing(s Source, padded bool) error {
	rem := s.Remaining()
	if rem == 0 {
		return nil
	}
	if padded && rem < 8 {
		if v, err := s.PeekBits(rem); err == nil && v == 0 {
			return nil
		}
	}
	if c.opts.Strict {
		return fmt.Errorf("%w: %d bits", ErrTrailingData, rem)
	}
	c.logger().Warn("bitcode: trailing data after value", "bits", rem)
	return nil
}

func (c *Codec) encodeAny(e *encoder, x any) error {
	v := reflect.ValueOf(x)
	if !v.IsValid() {
		return fmt.Errorf("%w: nil value", ErrUnsupported)
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return fmt.Errorf("%w: nil %s", ErrUnsupported, v.Type())
		}
		v = v.Elem()
	} else {
		v = addressable(v)
	}
	p, err := c.planFor(v.Type())
	if err != nil {
		return err
	}
	return c.encode(e, p, v)
}

func (c *Codec) decodeAny(d *decoder, ptr any) error {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return ErrNotPointer
	}
	v = v.Elem()
	p, err := c.planFor(v.Type())
	if err != nil {
		return err
	}
	return c.decode(d, p, v)
}

func (c *Codec) errDepth() error {
	return fmt.Errorf("%w: nesting deeper than %d", ErrInvalidData, c.maxDepth)
}

func (c *Codec) encode(e *encoder, p *plan, v reflect.Value) error {
	switch p.op {
	case opBool:
		e.EncodeBool(v.Bool())
	case opInt:
		e.s.WriteBits(uint64(v.Int()), p.width)
	case opUint:
		e.s.WriteBits(v.Uint(), p.width)
	case opFloat32:
		e.s.WriteBits(uint64(float32Bits(v)), 32)
	case opFloat64:
		e.EncodeFloat64(v.Float())
	case opComplex64:
		re, im := complex64Bits(v)
		e.s.WriteBits(uint64(re), 32)
		e.s.WriteBits(uint64(im), 32)
	case opComplex128:
		x := v.Complex()
		e.EncodeFloat64(real(x))
		e.EncodeFloat64(imag(x))
	case opVarint:
		e.EncodeVarint(v.Int())
	case opUvarint:
		e.EncodeUvarint(v.Uint())
	case opRange:
		u, err := p.offset(v)
		if err != nil {
			return err
		}
		e.s.WriteBits(u, p.width)
	case opEnum:
		u, ok := integerValue(v)
		if !ok || u >= p.count {
			return invalidf("%s value %v out of range for %d variants", p.typ, v, p.count)
		}
		e.s.WriteBits(u, p.width)
	case opChar:
		u, ok := integerValue(v)
		if !ok || u > math.MaxInt32 {
			return invalidf("%s value %v is not a Unicode scalar value", p.typ, v)
		}
		return e.EncodeChar(rune(u))
	case opString:
		return e.EncodeString(v.String())
	case opBytes:
		e.EncodeBytes(v.Bytes())
	case opSlice:
		if e.depth++; e.depth > c.maxDepth {
			return c.errDepth()
		}
		defer func() { e.depth-- }()
		n := v.Len()
		if err := e.EncodeSeqLen(n, p.elem.minBits); err != nil {
			return err
		}
		return c.encodeElems(e, p, v, n)
	case opArray:
		return c.encodeElems(e, p, v, p.length)
	case opMap:
		if e.depth++; e.depth > c.maxDepth {
			return c.errDepth()
		}
		defer func() { e.depth-- }()
		return c.encodeMap(e, p, v)
	case opPtr:
		if v.IsNil() {
			e.EncodeOption(false)
			return nil
		}
		if e.depth++; e.depth > c.maxDepth {
			return c.errDepth()
		}
		defer func() { e.depth-- }()
		e.EncodeOption(true)
		return c.encode(e, p.elem, v.Elem())
	case opStruct:
		for _, f := range p.fields {
			if err := c.encode(e, f.plan, v.Field(f.index)); err != nil {
				return err
			}
		}
	case opCustom:
		if e.depth++; e.depth > c.maxDepth {
			return c.errDepth()
		}
		defer func() { e.depth-- }()
		return encodeCustom(e, v)
	}
	return nil
}

func (c *Codec) encodeElems(e *encoder, p *plan, v reflect.Value, n int) error {
	if n == 0 {
		return nil
	}
	if p.raw {
		if raw, ok := rawMemory(v, n, p.elem.width/8); ok && e.t.copyOut(e.s, raw, p.elem.width) {
			return nil
		}
	}
	for i := 0; i < n; i++ {
		if err := c.encode(e, p.elem, v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) encodeMap(e *encoder, p *plan, v reflect.Value) error {
	type pair struct{ k, v reflect.Value }
	pairs := make([]pair, 0, v.Len())
	for it := v.MapRange(); it.Next(); {
		pairs = append(pairs, pair{addressable(it.Key()), addressable(it.Value())})
	}
	if ordered(p.key.typ.Kind()) {
		slices.SortStableFunc(pairs, func(a, b pair) int { return compareKeys(a.k, b.k) })
	}
	if err := e.EncodeSeqLen(len(pairs), p.key.minBits+p.elem.minBits); err != nil {
		return err
	}
	for _, kv := range pairs {
		if err := c.encode(e, p.key, kv.k); err != nil {
			return err
		}
		if err := c.encode(e, p.elem, kv.v); err != nil {
			return err
		}
	}
	return nil
}

func encodeCustom(e *encoder, v reflect.Value) error {
	if m, ok := v.Interface().(Marshaler); ok {
		return m.MarshalBits(e)
	}
	if v.CanAddr() {
		if m, ok := v.Addr().Interface().(Marshaler); ok {
			return m.MarshalBits(e)
		}
	}
	return fmt.Errorf("%w: %s has no MarshalBits method", ErrUnsupported, v.Type())
}

func (c *Codec) decode(d *decoder, p *plan, v reflect.Value) error {
	switch p.op {
	case opBool:
		b, err := d.DecodeBool()
		if err != nil {
			return err
		}
		v.SetBool(b)
	case opInt:
		u, err := d.s.ReadBits(p.width)
		if err != nil {
			return err
		}
		v.SetInt(signExtend(u, p.width))
	case opUint:
		u, err := d.s.ReadBits(p.width)
		if err != nil {
			return err
		}
		v.SetUint(u)
	case opFloat32:
		u, err := d.s.ReadBits(32)
		if err != nil {
			return err
		}
		setFloat32Bits(v, uint32(u))
	case opFloat64:
		f, err := d.DecodeFloat64()
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case opComplex64:
		re, err := d.s.ReadBits(32)
		if err != nil {
			return err
		}
		im, err := d.s.ReadBits(32)
		if err != nil {
			return err
		}
		setComplex64Bits(v, uint32(re), uint32(im))
	case opComplex128:
		re, err := d.DecodeFloat64()
		if err != nil {
			return err
		}
		im, err := d.DecodeFloat64()
		if err != nil {
			return err
		}
		v.SetComplex(complex(re, im))
	case opVarint:
		x, err := d.DecodeVarint()
		if err != nil {
			return err
		}
		if v.OverflowInt(x) {
			return invalidf("varint %d overflows %s", x, p.typ)
		}
		v.SetInt(x)
	case opUvarint:
		x, err := d.DecodeUvarint()
		if err != nil {
			return err
		}
		if v.OverflowUint(x) {
			return invalidf("varint %d overflows %s", x, p.typ)
		}
		v.SetUint(x)
	case opRange:
		u, err := d.s.ReadBits(p.width)
		if err != nil {
			return err
		}
		if u > p.hi-p.lo {
			return invalidf("offset %d outside range of %s", u, p.typ)
		}
		setInteger(v, p.lo+u)
	case opEnum:
		u, err := d.s.ReadBits(p.width)
		if err != nil {
			return err
		}
		if u >= p.count {
			return invalidf("variant tag %d out of range for %d variants", u, p.count)
		}
		setInteger(v, u)
	case opChar:
		r, err := d.DecodeChar()
		if err != nil {
			return err
		}
		if overflows(p.typ, uint64(r)) {
			return invalidf("%U overflows %s", r, p.typ)
		}
		setInteger(v, uint64(r))
	case opString:
		s, err := d.DecodeString()
		if err != nil {
			return err
		}
		v.SetString(s)
	case opBytes:
		b, err := d.DecodeBytes()
		if err != nil {
			return err
		}
		v.SetBytes(b)
	case opSlice:
		if d.depth++; d.depth > c.maxDepth {
			return c.errDepth()
		}
		defer func() { d.depth-- }()
		return c.decodeSlice(d, p, v)
	case opArray:
		return c.decodeElems(d, p, v, p.length)
	case opMap:
		if d.depth++; d.depth > c.maxDepth {
			return c.errDepth()
		}
		defer func() { d.depth-- }()
		return c.decodeMap(d, p, v)
	case opPtr:
		present, err := d.DecodeOption()
		if err != nil {
			return err
		}
		if !present {
			v.SetZero()
			return nil
		}
		if d.depth++; d.depth > c.maxDepth {
			return c.errDepth()
		}
		defer func() { d.depth-- }()
		nv := reflect.New(p.elem.typ)
		if err := c.decode(d, p.elem, nv.Elem()); err != nil {
			return err
		}
		v.Set(nv)
	case opStruct:
		for _, f := range p.fields {
			if err := c.decode(d, f.plan, v.Field(f.index)); err != nil {
				return err
			}
		}
	case opCustom:
		if d.depth++; d.depth > c.maxDepth {
			return c.errDepth()
		}
		defer func() { d.depth-- }()
		u, ok := v.Addr().Interface().(Unmarshaler)
		if !ok {
			return fmt.Errorf("%w: %s has no UnmarshalBits method", ErrUnsupported, p.typ)
		}
		return u.UnmarshalBits(d)
	}
	return nil
}

func (c *Codec) decodeSlice(d *decoder, p *plan, v reflect.Value) error {
	n, err := d.DecodeLen(p.elem.minBits)
	if err != nil {
		return err
	}
	if p.raw {
		// The length cap keeps n*size within the input size.
		s := reflect.MakeSlice(p.typ, n, n)
		if err := c.decodeElems(d, p, s, n); err != nil {
			return err
		}
		v.Set(s)
		return nil
	}
	if p.elem.typ.Size() == 0 {
		s := reflect.MakeSlice(p.typ, n, n)
		if err := c.decodeElems(d, p, s, n); err != nil {
			return err
		}
		v.Set(s)
		return nil
	}
	s := reflect.MakeSlice(p.typ, 0, min(n, initialCap))
	zero := reflect.Zero(p.elem.typ)
	for i := 0; i < n; i++ {
		s = reflect.Append(s, zero)
		if err := c.decode(d, p.elem, s.Index(i)); err != nil {
			return err
		}
	}
	v.Set(s)
	return nil
}

func (c *Codec) decodeElems(d *decoder, p *plan, v reflect.Value, n int) error {
	if n == 0 {
		return nil
	}
	if p.raw {
		if raw, ok := rawMemory(v, n, p.elem.width/8); ok && d.t.copyIn(d.s, raw, p.elem.width) {
			return nil
		}
	}
	for i := 0; i < n; i++ {
		if err := c.decode(d, p.elem, v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) decodeMap(d *decoder, p *plan, v reflect.Value) error {
	n, err := d.DecodeLen(p.key.minBits + p.elem.minBits)
	if err != nil {
		return err
	}
	m := reflect.MakeMapWithSize(p.typ, min(n, initialCap))
	for i := 0; i < n; i++ {
		k := reflect.New(p.key.typ).Elem()
		if err := c.decode(d, p.key, k); err != nil {
			return err
		}
		val := reflect.New(p.elem.typ).Elem()
		if err := c.decode(d, p.elem, val); err != nil {
			return err
		}
		m.SetMapIndex(k, val)
	}
	v.Set(m)
	return nil
}

// offset maps a bounded integer onto 0..hi-lo.
func (p *plan) offset(v reflect.Value) (uint64, error) {
	if p.signed {
		x := v.Int()
		if x < int64(p.lo) || x > int64(p.hi) {
			return 0, invalidf("%d outside [%d, %d]", x, int64(p.lo), int64(p.hi))
		}
		return uint64(x) - p.lo, nil
	}
	x := v.Uint()
	if x < p.lo || x > p.hi {
		return 0, invalidf("%d outside [%d, %d]", x, p.lo, p.hi)
	}
	return x - p.lo, nil
}

// integerValue returns v as an unsigned value; negative values report false.
func integerValue(v reflect.Value) (uint64, bool) {
	if isSigned(v.Kind()) {
		x := v.Int()
		return uint64(x), x >= 0
	}
	return v.Uint(), true
}

func setInteger(v reflect.Value, u uint64) {
	if isSigned(v.Kind()) {
		v.SetInt(int64(u))
		return
	}
	v.SetUint(u)
}

func signExtend(u uint64, width int) int64 {
	shift := uint(64 - width)
	return int64(u<<shift) >> shift
}

// addressable returns v itself when it can be addressed, otherwise a copy
// that can. Float32 values and arrays are read through memory, which needs
// an address.
func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v
	}
	cp := reflect.New(v.Type()).Elem()
	cp.Set(v)
	return cp
}

// float32Bits reads the stored bits. Going through float64 would quiet a
// signalling NaN on some hardware.
func float32Bits(v reflect.Value) uint32 {
	if v.CanAddr() {
		return *(*uint32)(v.Addr().UnsafePointer())
	}
	return math.Float32bits(float32(v.Float()))
}

func setFloat32Bits(v reflect.Value, u uint32) {
	*(*uint32)(v.Addr().UnsafePointer()) = u
}

func complex64Bits(v reflect.Value) (re, im uint32) {
	if v.CanAddr() {
		p := (*[2]uint32)(v.Addr().UnsafePointer())
		return p[0], p[1]
	}
	x := complex64(v.Complex())
	return math.Float32bits(real(x)), math.Float32bits(imag(x))
}

func setComplex64Bits(v reflect.Value, re, im uint32) {
	p := (*[2]uint32)(v.Addr().UnsafePointer())
	p[0], p[1] = re, im
}

func rawMemory(v reflect.Value, n, size int) ([]byte, bool) {
	var ptr unsafe.Pointer
	switch v.Kind() {
	case reflect.Slice:
		ptr = v.UnsafePointer()
	case reflect.Array:
		if !v.CanAddr() {
			return nil, false
		}
		ptr = v.Addr().UnsafePointer()
	default:
		return nil, false
	}
	return unsafe.Slice((*byte)(ptr), n*size), true
}

func ordered(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String, reflect.Float32, reflect.Float64:
		return true
	}
	return isInteger(k)
}

func compareKeys(a, b reflect.Value) int {
	switch k := a.Kind(); {
	case k == reflect.Bool:
		x, y := a.Bool(), b.Bool()
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case k == reflect.String:
		return cmp.Compare(a.String(), b.String())
	case k == reflect.Float32 || k == reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	case isSigned(k):
		return cmp.Compare(a.Int(), b.Int())
	default:
		return cmp.Compare(a.Uint(), b.Uint())
	}
}

var defaultCodec = NewCodec(DefaultOptions())

// Marshal encodes v with the default codec.
func Marshal(v any) ([]byte, error) { return defaultCodec.Marshal(v) }

// MarshalBits encodes v with the default codec.
func MarshalBits(v any) (Buffer, error) { return defaultCodec.MarshalBits(v) }

// Unmarshal decodes data into ptr with the default codec.
func Unmarshal(data []byte, ptr any) error { return defaultCodec.Unmarshal(data, ptr) }

// UnmarshalBits decodes b into ptr with the default codec.
func UnmarshalBits(b Buffer, ptr any) error { return defaultCodec.UnmarshalBits(b, ptr) }
