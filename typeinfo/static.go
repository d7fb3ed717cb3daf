package typeinfo

// Static is a descriptor assembled in memory. It backs tests and callers
// that describe a type by hand instead of reading debug information.
type Static struct {
	name   string
	size   int64
	kind   Kind
	fields []Field
	bases  []Field
	elem   Type
	length int64
	args   []TemplateArg
	align  int64
}

func NewStruct(name string, size int64) *Static {
	return &Static{name: name, size: size, kind: Struct}
}

func NewUnion(name string, size int64) *Static {
	return &Static{name: name, size: size, kind: Union}
}

func NewBasic(name string, size int64) *Static {
	return &Static{name: name, size: size, kind: Basic}
}

func NewPointer(elem Type, size int64) *Static {
	name := "void*"
	if elem != nil {
		name = elem.Name() + "*"
	}
	return &Static{name: name, size: size, kind: Pointer, elem: elem}
}

func NewArray(elem Type, n int64) *Static {
	name := "[]"
	var size int64
	if elem != nil {
		name = elem.Name() + "[]"
		size = elem.Size() * n
	}
	return &Static{name: name, size: size, kind: Array, elem: elem, length: n}
}

// With appends a data member. An empty name adds an anonymous member whose
// fields are visible through the outer type.
func (s *Static) With(name string, offset int64, t Type) *Static {
	s.fields = append(s.fields, Field{Name: name, Offset: offset, Type: t})
	return s
}

// Inherit appends a base class subobject at offset.
func (s *Static) Inherit(offset int64, base Type) *Static {
	s.bases = append(s.bases, Field{Name: base.Name(), Offset: offset, Type: base})
	return s
}

func (s *Static) WithArgs(args ...TemplateArg) *Static {
	s.args = append(s.args, args...)
	return s
}

// Aligned overrides the alignment derived from the members, as alignas does.
func (s *Static) Aligned(n int64) *Static {
	s.align = n
	return s
}

func TypeParam(t Type) TemplateArg {
	return TemplateArg{Type: t}
}

func ValueParam(v int64) TemplateArg {
	return TemplateArg{Value: v, IsValue: true}
}

func (s *Static) Name() string   { return s.name }
func (s *Static) Size() int64    { return s.size }
func (s *Static) Kind() Kind     { return s.kind }
func (s *Static) Elem() Type     { return s.elem }
func (s *Static) Len() int64     { return s.length }
func (s *Static) String() string { return s.name }

func (s *Static) Align() int64 {
	if s.align > 0 {
		return s.align
	}
	switch s.kind {
	case Struct, Union:
		return MaxAlign(s.fields, s.bases)
	case Array:
		return Align(s.elem)
	}
	return ScalarAlign(s.size)
}

func (s *Static) TemplateArgs() []TemplateArg {
	return s.args
}

func (s *Static) Field(name string) (Field, bool) {
	return FindField(s.fields, s.bases, name)
}
