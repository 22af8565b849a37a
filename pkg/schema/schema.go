// Package schema describes bitcode layouts by hand, without Go types. A
// Descriptor is usually loaded from YAML:
//
//	kind: struct
//	fields:
//	  - name: id
//	    type: uvarint
//	  - name: level
//	    type: {kind: range, min: -8, max: 7}
//	  - name: shape
//	    type:
//	      kind: enum
//	      variants:
//	        - name: point
//	        - name: circle
//	          payload: f32
//	  - name: tags
//	    type: {kind: seq, elem: string}
//
// A bare scalar such as "u8" is shorthand for {kind: u8}. Values are plain Go
// data; see Encode for the accepted forms and Decode for the produced ones.
package schema

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/bitcode"
	"github.com/rawbytedev/bitcode/internal/bitops"
)

var (
	// ErrSchema reports a malformed descriptor.
	ErrSchema = errors.New("schema: invalid descriptor")
	// ErrValue reports a value that does not fit its descriptor.
	ErrValue       = errors.New("schema: value does not match descriptor")
	ErrNotCompiled = errors.New("schema: descriptor not compiled")
)

// Kind names a descriptor shape.
type Kind string

const (
	Unit    Kind = "unit"
	Bool    Kind = "bool"
	U8      Kind = "u8"
	U16     Kind = "u16"
	U32     Kind = "u32"
	U64     Kind = "u64"
	I8      Kind = "i8"
	I16     Kind = "i16"
	I32     Kind = "i32"
	I64     Kind = "i64"
	Uvarint Kind = "uvarint"
	Varint  Kind = "varint"
	Range   Kind = "range"
	F32     Kind = "f32"
	F64     Kind = "f64"
	Char    Kind = "char"
	String  Kind = "string"
	Bytes   Kind = "bytes"
	Option  Kind = "option"
	Enum    Kind = "enum"
	Seq     Kind = "seq"
	Array   Kind = "array"
	Map     Kind = "map"
	Struct  Kind = "struct"
)

var fixedWidths = map[Kind]int{
	Unit: 0, Bool: 1,
	U8: 8, U16: 16, U32: 32, U64: 64,
	I8: 8, I16: 16, I32: 32, I64: 64,
	F32: 32, F64: 64, Char: bitcode.CharBits,
}

// Descriptor is one node of a layout tree.
type Descriptor struct {
	Kind     Kind        `yaml:"kind"`
	Min      int64       `yaml:"min,omitempty"`
	Max      int64       `yaml:"max,omitempty"`
	Len      int         `yaml:"len,omitempty"`
	Elem     *Descriptor `yaml:"elem,omitempty"`
	Key      *Descriptor `yaml:"key,omitempty"`
	Value    *Descriptor `yaml:"value,omitempty"`
	Variants []Variant   `yaml:"variants,omitempty"`
	Fields   []Field     `yaml:"fields,omitempty"`

	compiled bool
	width    int
	minBits  int
	index    map[string]int
}

// Variant is one alternative of an enum. A nil Payload carries no data.
type Variant struct {
	Name    string      `yaml:"name"`
	Payload *Descriptor `yaml:"payload,omitempty"`
}

// Field is one named member of a struct.
type Field struct {
	Name string      `yaml:"name"`
	Type *Descriptor `yaml:"type"`
}

type plainDescriptor Descriptor

// UnmarshalYAML accepts either a mapping or a bare kind name.
func (d *Descriptor) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*d = Descriptor{Kind: Kind(node.Value)}
		return nil
	}
	var p plainDescriptor
	if err := node.Decode(&p); err != nil {
		return err
	}
	*d = Descriptor(p)
	return nil
}

// Parse reads and compiles a YAML descriptor.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := d.Compile(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load parses the descriptor stored at path.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Compile validates the tree and caches widths. It must succeed before the
// descriptor is used to encode or decode.
func (d *Descriptor) Compile() error {
	return d.compile("$")
}

func (d *Descriptor) compile(path string) error {
	if d == nil {
		return fmt.Errorf("%w: %s: missing type", ErrSchema, path)
	}
	d.compiled = false
	if w, ok := fixedWidths[d.Kind]; ok {
		d.width, d.minBits = w, w
		d.compiled = true
		return nil
	}
	switch d.Kind {
	case Uvarint, Varint, String, Bytes:
		d.minBits = 1
	case Range:
		if d.Min > d.Max {
			return fmt.Errorf("%w: %s: range min %d above max %d", ErrSchema, path, d.Min, d.Max)
		}
		d.width = bitops.RangeWidth(d.Min, d.Max)
		d.minBits = d.width
	case Option, Seq:
		if err := d.Elem.compile(path + "[]"); err != nil {
			return err
		}
		d.minBits = 1
	case Array:
		if d.Len < 0 {
			return fmt.Errorf("%w: %s: negative array length", ErrSchema, path)
		}
		if err := d.Elem.compile(path + "[]"); err != nil {
			return err
		}
		d.minBits = d.Len * d.Elem.minBits
	case Map:
		if err := d.Key.compile(path + ".key"); err != nil {
			return err
		}
		if err := d.Value.compile(path + ".value"); err != nil {
			return err
		}
		d.minBits = 1
	case Enum:
		if len(d.Variants) == 0 {
			return fmt.Errorf("%w: %s: enum without variants", ErrSchema, path)
		}
		d.index = make(map[string]int, len(d.Variants))
		least := -1
		for i, v := range d.Variants {
			if err := d.addName(path, v.Name, i); err != nil {
				return err
			}
			bits := 0
			if v.Payload != nil {
				if err := v.Payload.compile(path + "." + v.Name); err != nil {
					return err
				}
				bits = v.Payload.minBits
			}
			if least < 0 || bits < least {
				least = bits
			}
		}
		d.width = bitops.WidthFor(uint64(len(d.Variants)))
		d.minBits = d.width + least
	case Struct:
		d.index = make(map[string]int, len(d.Fields))
		d.minBits = 0
		for i, f := range d.Fields {
			if err := d.addName(path, f.Name, i); err != nil {
				return err
			}
			if err := f.Type.compile(path + "." + f.Name); err != nil {
				return err
			}
			d.minBits += f.Type.minBits
		}
	case "":
		return fmt.Errorf("%w: %s: missing kind", ErrSchema, path)
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrSchema, path, d.Kind)
	}
	d.compiled = true
	return nil
}

func (d *Descriptor) addName(path, name string, i int) error {
	if name == "" {
		return fmt.Errorf("%w: %s: %s member %d has no name", ErrSchema, path, d.Kind, i)
	}
	if _, dup := d.index[name]; dup {
		return fmt.Errorf("%w: %s: duplicate name %q", ErrSchema, path, name)
	}
	d.index[name] = i
	return nil
}

// MinBits is the smallest encoded size of any value of d.
func (d *Descriptor) MinBits() int { return d.minBits }

// TagBits is the width of an enum tag, or zero for other kinds.
func (d *Descriptor) TagBits() int {
	if d.Kind == Enum {
		return d.width
	}
	return 0
}

// Walk calls fn for d and every descendant, depth first, with a path such as
// "$.shape.circle" or "$.tags[]".
func (d *Descriptor) Walk(fn func(path string, d *Descriptor)) {
	d.walk("$", fn)
}

func (d *Descriptor) walk(path string, fn func(string, *Descriptor)) {
	if d == nil {
		return
	}
	fn(path, d)
	switch d.Kind {
	case Option, Seq, Array:
		d.Elem.walk(path+"[]", fn)
	case Map:
		d.Key.walk(path+".key", fn)
		d.Value.walk(path+".value", fn)
	case Enum:
		for _, v := range d.Variants {
			v.Payload.walk(path+"."+v.Name, fn)
		}
	case Struct:
		for _, f := range d.Fields {
			f.Type.walk(path+"."+f.Name, fn)
		}
	}
}
