// Package object defines the raw PDF object model used by the structural
// decoder. The set of kinds is closed: every object carries a Kind tag so
// consumers can switch exhaustively instead of probing with open-ended type
// assertions.
package object

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies one of the closed set of PDF object variants.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInteger
	KindReal
	KindString
	KindName
	KindArray
	KindDict
	KindStream
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindString:
		return "string"
	case KindName:
		return "name"
	case KindArray:
		return "array"
	case KindDict:
		return "dict"
	case KindStream:
		return "stream"
	case KindRef:
		return "ref"
	}
	return "unknown"
}

// Object is implemented by every raw PDF value.
type Object interface {
	Kind() Kind
}

// Null is the PDF null object.
type Null struct{}

func (Null) Kind() Kind { return KindNull }

// Bool is a PDF boolean.
type Bool bool

func (Bool) Kind() Kind { return KindBool }

// Integer is a PDF integer.
type Integer int64

func (Integer) Kind() Kind { return KindInteger }

// Real is a PDF real number.
type Real float64

func (Real) Kind() Kind { return KindReal }

// String is a PDF string. Hex records whether the source spelled it in
// angle-bracket hex notation; the payload is stored decoded either way.
type String struct {
	Data []byte
	Hex  bool
}

func (String) Kind() Kind { return KindString }

// Name is a PDF name with the leading solidus stripped and #xx escapes
// already decoded.
type Name string

func (Name) Kind() Kind { return KindName }

// Ref identifies an indirect object.
type Ref struct {
	Num int
	Gen int
}

func (Ref) Kind() Kind       { return KindRef }
func (r Ref) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Array is a PDF array.
type Array struct {
	Items []Object
}

func (*Array) Kind() Kind { return KindArray }

// Len returns the number of elements.
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Items)
}

// At returns the element at index i, or nil when out of range.
func (a *Array) At(i int) Object {
	if a == nil || i < 0 || i >= len(a.Items) {
		return nil
	}
	return a.Items[i]
}

// Dict is a PDF dictionary.
type Dict struct {
	KV map[Name]Object
}

func (*Dict) Kind() Kind { return KindDict }

// NewDict returns an empty dictionary.
func NewDict() *Dict { return &Dict{KV: make(map[Name]Object)} }

// Get returns the value stored under key.
func (d *Dict) Get(key Name) (Object, bool) {
	if d == nil || d.KV == nil {
		return nil, false
	}
	v, ok := d.KV[key]
	return v, ok
}

// Set stores value under key.
func (d *Dict) Set(key Name, value Object) {
	if d.KV == nil {
		d.KV = make(map[Name]Object)
	}
	d.KV[key] = value
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.KV)
}

// Keys returns the dictionary keys in sorted order for deterministic
// iteration.
func (d *Dict) Keys() []Name {
	if d == nil {
		return nil
	}
	keys := make([]Name, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Int returns the integer stored under key.
func (d *Dict) Int(key Name) (int64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case Integer:
		return int64(n), true
	case Real:
		return int64(n), true
	}
	return 0, false
}

// Name returns the name stored under key.
func (d *Dict) Name(key Name) (Name, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	n, ok := v.(Name)
	return n, ok
}

// StringBytes returns the string payload stored under key.
func (d *Dict) StringBytes(key Name) ([]byte, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	s, ok := v.(String)
	if !ok {
		return nil, false
	}
	return s.Data, true
}

// Bool returns the boolean stored under key.
func (d *Dict) Bool(key Name) (bool, bool) {
	v, ok := d.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(Bool)
	return bool(b), ok
}

// Stream is a PDF stream: a dictionary plus its raw, still-encoded payload.
type Stream struct {
	Dict *Dict
	Raw  []byte
}

func (*Stream) Kind() Kind { return KindStream }

// Length returns the raw payload length.
func (s *Stream) Length() int64 {
	if s == nil {
		return 0
	}
	return int64(len(s.Raw))
}

// Format renders an object for diagnostics. Strings are truncated so log
// lines stay bounded.
func Format(o Object) string {
	switch v := o.(type) {
	case nil:
		return "<nil>"
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(bool(v))
	case Integer:
		return strconv.FormatInt(int64(v), 10)
	case Real:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case Name:
		return "/" + string(v)
	case Ref:
		return v.String()
	case String:
		data := v.Data
		if len(data) > 32 {
			data = data[:32]
		}
		return fmt.Sprintf("(%q)", data)
	case *Array:
		return fmt.Sprintf("array[%d]", v.Len())
	case *Dict:
		return fmt.Sprintf("dict[%d]", v.Len())
	case *Stream:
		return fmt.Sprintf("stream[%d]", v.Length())
	}
	return "unknown"
}
