// Package typeinfo describes the shape of native types as reported by a
// symbol provider: field names, byte offsets, sizes, element types and
// template arguments. Descriptors are read-only; nothing in stdview creates
// them except the builders in this package and the DWARF adapter.
package typeinfo

import (
	"fmt"
	"strings"

	"stdview/errors"
)

type Kind int

const (
	Basic Kind = iota
	Pointer
	Array
	Struct
	Union
	Enum
	Func
)

func (k Kind) String() string {
	switch k {
	case Basic:
		return "basic"
	case Pointer:
		return "pointer"
	case Array:
		return "array"
	case Struct:
		return "struct"
	case Union:
		return "union"
	case Enum:
		return "enum"
	case Func:
		return "func"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Field is a data member of an aggregate type. Offset is relative to the
// start of the aggregate that was queried, so members reached through an
// anonymous union or a base class report their flattened offset.
type Field struct {
	Name   string
	Offset int64
	Type   Type
}

// TemplateArg is one template argument of a class template instance. It is
// either a type or a compile time constant.
type TemplateArg struct {
	Type    Type
	Value   int64
	IsValue bool
}

// Type is a read-only view of a native type.
//
// Implementations must be comparable: selectors memoize their results keyed
// by the descriptor value.
type Type interface {
	Name() string
	Size() int64
	Kind() Kind

	// Field looks up a data member by name. Anonymous members and base
	// classes are searched after the direct members.
	Field(name string) (Field, bool)

	// Elem returns the pointee of a pointer or the element of an array, nil
	// for every other kind.
	Elem() Type

	// Len returns the element count of an array type.
	Len() int64

	TemplateArgs() []TemplateArg
}

// MissingFieldError reports the first segment of a field path that a type
// does not have.
type MissingFieldError struct {
	Type string
	Path []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s has no field %s", e.Type, strings.Join(e.Path, "."))
}

// Lookup walks a chain of nested fields starting at t and returns the last
// one with its offset accumulated from t. It stops at the first missing
// segment.
func Lookup(t Type, path ...string) (Field, error) {
	if t == nil {
		return Field{}, &MissingFieldError{Type: "<nil>", Path: path}
	}
	cur := Field{Type: t}
	for i, name := range path {
		if cur.Type == nil {
			return Field{}, &MissingFieldError{Type: t.Name(), Path: path[:i+1]}
		}
		f, ok := cur.Type.Field(name)
		if !ok {
			return Field{}, &MissingFieldError{Type: t.Name(), Path: path[:i+1]}
		}
		cur = Field{Name: f.Name, Offset: cur.Offset + f.Offset, Type: f.Type}
	}
	return cur, nil
}

// LookupAny tries each path in order and returns the first that resolves.
// Toolchain revisions rename members; this keeps verification tolerant of
// that without a separate candidate per revision.
func LookupAny(t Type, paths ...[]string) (Field, error) {
	var first error
	for _, p := range paths {
		f, err := Lookup(t, p...)
		if err == nil {
			return f, nil
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		first = &MissingFieldError{Type: t.Name()}
	}
	return Field{}, first
}

// Pointee returns the element type of a pointer field or an error naming
// the field when it is not a pointer.
func Pointee(f Field) (Type, error) {
	if f.Type == nil || f.Type.Kind() != Pointer || f.Type.Elem() == nil {
		return nil, errors.Newf("field %s is not a typed pointer", f.Name)
	}
	return f.Type.Elem(), nil
}

// TypeArg returns the i-th template argument when it is a type.
func TypeArg(t Type, i int) (Type, error) {
	args := t.TemplateArgs()
	if i >= len(args) || args[i].IsValue || args[i].Type == nil {
		return nil, errors.Newf("%s has no type template argument %d", t.Name(), i)
	}
	return args[i].Type, nil
}

// ValueArg returns the i-th template argument when it is a constant.
func ValueArg(t Type, i int) (int64, error) {
	args := t.TemplateArgs()
	if i >= len(args) || !args[i].IsValue {
		return 0, errors.Newf("%s has no constant template argument %d", t.Name(), i)
	}
	return args[i].Value, nil
}

// Aligner is implemented by descriptors that know their own alignment.
type Aligner interface {
	Align() int64
}

// Align returns the alignment of t. Descriptors that implement Aligner
// answer for themselves; otherwise arrays take their element's alignment and
// everything else is aligned to its size, rounded up to a power of two and
// capped at 16.
func Align(t Type) int64 {
	if t == nil {
		return 1
	}
	if a, ok := t.(Aligner); ok {
		if n := a.Align(); n > 0 {
			return n
		}
	}
	if t.Kind() == Array {
		return Align(t.Elem())
	}
	return ScalarAlign(t.Size())
}

// ScalarAlign is the natural alignment of a scalar of the given size.
func ScalarAlign(size int64) int64 {
	n := int64(1)
	for n < size && n < 16 {
		n <<= 1
	}
	return n
}

// AlignUp rounds off up to a multiple of align.
func AlignUp(off, align int64) int64 {
	if align <= 1 {
		return off
	}
	return (off + align - 1) / align * align
}

// MaxAlign is the largest alignment among fields, at least 1.
func MaxAlign(fields ...[]Field) int64 {
	n := int64(1)
	for _, fs := range fields {
		for _, f := range fs {
			n = max(n, Align(f.Type))
		}
	}
	return n
}

// FindField searches direct members first, then recurses into members that
// have no name (anonymous unions and structs) and into base classes.
func FindField(fields []Field, bases []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name && name != "" {
			return f, true
		}
	}
	for _, f := range fields {
		if f.Name != "" || f.Type == nil {
			continue
		}
		if inner, ok := f.Type.Field(name); ok {
			inner.Offset += f.Offset
			return inner, true
		}
	}
	for _, b := range bases {
		if b.Type == nil {
			continue
		}
		if inner, ok := b.Type.Field(name); ok {
			inner.Offset += b.Offset
			return inner, true
		}
	}
	return Field{}, false
}
