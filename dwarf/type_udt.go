package dwarfhelper

import (
	"debug/dwarf"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"stdview/errors"
	"stdview/typeinfo"
)

// maxResolveDepth bounds typedef and qualifier chains.
const maxResolveDepth = 64

// Type is a typeinfo.Type backed by a DWARF entry. Members, bases and
// template arguments of aggregates are decoded on first use.
type Type struct {
	info   *DwarfInfo
	offset dwarf.Offset
	name   string
	size   int64
	kind   typeinfo.Kind
	elem   typeinfo.Type
	length int64
	align  int64

	loaded bool
	fields []typeinfo.Field
	bases  []typeinfo.Field
	args   []typeinfo.TemplateArg
}

func (t *Type) Name() string        { return t.name }
func (t *Type) Size() int64         { return t.size }
func (t *Type) Kind() typeinfo.Kind { return t.kind }
func (t *Type) Elem() typeinfo.Type { return t.elem }
func (t *Type) Len() int64          { return t.length }
func (t *Type) String() string      { return t.name }

func (t *Type) Field(name string) (typeinfo.Field, bool) {
	t.load()
	return typeinfo.FindField(t.fields, t.bases, name)
}

// Align is DW_AT_alignment when the producer recorded one, otherwise the
// natural alignment of the members.
func (t *Type) Align() int64 {
	if t.align > 0 {
		return t.align
	}
	switch t.kind {
	case typeinfo.Struct, typeinfo.Union:
		t.load()
		return typeinfo.MaxAlign(t.fields, t.bases)
	case typeinfo.Array:
		return typeinfo.Align(t.elem)
	}
	return typeinfo.ScalarAlign(t.size)
}

func (t *Type) TemplateArgs() []typeinfo.TemplateArg {
	t.load()
	return t.args
}

// resolve follows typedefs, cv-qualifiers and declarations to the entry
// that defines a type. A nil entry with no error means void.
func (d *DwarfInfo) resolve(offset dwarf.Offset) (*dwarf.Entry, error) {
	for range maxResolveDepth {
		entry, err := d.getEntryByOffset(offset)
		if err != nil {
			return nil, err
		}
		switch entry.Tag {
		case dwarf.TagTypedef, dwarf.TagConstType, dwarf.TagVolatileType, dwarf.TagRestrictType:
			next, ok := attrType(entry)
			if !ok {
				return nil, nil
			}
			offset = next
			continue
		}
		if isDeclaration(entry) {
			if def, ok := d.names[d.qualified[entry.Offset]]; ok && def != entry.Offset {
				offset = def
				continue
			}
		}
		return entry, nil
	}
	return nil, errors.Newf("type chain at %#x too deep", offset)
}

// typeOf is the descriptor named by an entry's DW_AT_type, void when the
// attribute is absent. Callers hold d.mu.
func (d *DwarfInfo) typeOf(entry *dwarf.Entry) (*Type, error) {
	off, ok := attrType(entry)
	if !ok {
		return d.void, nil
	}
	return d.typeAt(off)
}

// typeAt returns the cached descriptor for offset, creating it if needed.
// Aggregates are registered before anything they refer to is built, which
// is what lets self-referential node types terminate. Callers hold d.mu.
func (d *DwarfInfo) typeAt(offset dwarf.Offset) (*Type, error) {
	entry, err := d.resolve(offset)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return d.void, nil
	}
	if t, ok := d.types[entry.Offset]; ok {
		return t, nil
	}
	t := &Type{info: d, offset: entry.Offset, name: d.typeName(entry)}
	t.size, _ = entry.Val(dwarf.AttrByteSize).(int64)
	d.types[entry.Offset] = t

	if err := d.build(t, entry); err != nil {
		delete(d.types, entry.Offset)
		return nil, err
	}
	return t, nil
}

func (d *DwarfInfo) build(t *Type, entry *dwarf.Entry) error {
	if a, ok := entry.Val(dwarf.AttrAlignment).(int64); ok {
		t.align = a
	}
	switch entry.Tag {
	case dwarf.TagBaseType, dwarf.TagUnspecifiedType:
		t.kind = typeinfo.Basic
	case dwarf.TagEnumerationType:
		t.kind = typeinfo.Enum
	case dwarf.TagClassType, dwarf.TagStructType:
		t.kind = typeinfo.Struct
	case dwarf.TagUnionType:
		t.kind = typeinfo.Union
	case dwarf.TagSubroutineType:
		t.kind = typeinfo.Func
	case dwarf.TagPointerType, dwarf.TagReferenceType, dwarf.TagRvalueReferenceType, dwarf.TagPtrToMemberType:
		t.kind = typeinfo.Pointer
		if t.size == 0 {
			t.size = int64(d.ptrSize)
		}
		elem, err := d.typeOf(entry)
		if err != nil {
			return err
		}
		t.elem = elem
		t.name = elem.Name() + "*"
	case dwarf.TagArrayType:
		return d.buildArray(t, entry)
	default:
		return errors.Newf("unsupported type entry %s at %#x", entry.Tag, entry.Offset)
	}
	return nil
}

// buildArray nests multi-dimensional arrays innermost first, so int[2][3]
// has element type int[3].
func (d *DwarfInfo) buildArray(t *Type, entry *dwarf.Entry) error {
	elem, err := d.typeOf(entry)
	if err != nil {
		return err
	}
	var dims []int64
	for _, kid := range d.children[entry.Offset] {
		if kid.Tag == dwarf.TagSubrangeType {
			dims = append(dims, subrangeLen(kid))
		}
	}
	if len(dims) == 0 {
		dims = []int64{0}
	}
	suffix := func(from int) string {
		var b strings.Builder
		for _, n := range dims[from:] {
			fmt.Fprintf(&b, "[%d]", n)
		}
		return b.String()
	}
	inner := typeinfo.Type(elem)
	for i := len(dims) - 1; i >= 1; i-- {
		inner = &Type{
			info:   d,
			name:   elem.Name() + suffix(i),
			size:   dims[i] * inner.Size(),
			kind:   typeinfo.Array,
			elem:   inner,
			length: dims[i],
		}
	}
	t.kind = typeinfo.Array
	t.elem = inner
	t.length = dims[0]
	t.name = elem.Name() + suffix(0)
	if t.size == 0 {
		t.size = t.length * inner.Size()
	}
	return nil
}

func (d *DwarfInfo) typeName(entry *dwarf.Entry) string {
	if q, ok := d.qualified[entry.Offset]; ok {
		return q
	}
	switch entry.Tag {
	case dwarf.TagSubroutineType:
		return "func"
	case dwarf.TagClassType, dwarf.TagStructType, dwarf.TagUnionType, dwarf.TagEnumerationType:
		return fmt.Sprintf("(anonymous %s at %#x)", entry.Tag, entry.Offset)
	}
	return ""
}

// load decodes the children of an aggregate. Members whose type cannot be
// built are left out and logged; lookups then report them as missing.
func (t *Type) load() {
	if t.kind != typeinfo.Struct && t.kind != typeinfo.Union {
		return
	}
	d := t.info
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.loaded {
		return
	}
	t.loaded = true

	for _, kid := range d.children[t.offset] {
		var err error
		switch kid.Tag {
		case dwarf.TagMember:
			err = t.addMember(kid)
		case dwarf.TagInheritance:
			err = t.addBase(kid)
		case dwarf.TagTemplateTypeParameter:
			var arg *Type
			if arg, err = d.typeOf(kid); err == nil {
				t.args = append(t.args, typeinfo.TypeParam(arg))
			}
		case dwarf.TagTemplateValueParameter:
			v, _ := kid.Val(dwarf.AttrConstValue).(int64)
			t.args = append(t.args, typeinfo.ValueParam(v))
		}
		if err != nil {
			d.log.Debug("skipping member",
				zap.String("type", t.name),
				zap.Stringer("tag", kid.Tag),
				zap.Error(err))
		}
	}
}

func (t *Type) addMember(kid *dwarf.Entry) error {
	d := t.info
	if !hasDataMemberLoc(kid) && (t.kind != typeinfo.Union || isDeclaration(kid)) {
		return nil
	}
	off, err := memberOffset(kid, d.ptrSize)
	if err != nil {
		return err
	}
	typ, err := d.typeOf(kid)
	if err != nil {
		return err
	}
	name, _ := kid.Val(dwarf.AttrName).(string)
	t.fields = append(t.fields, typeinfo.Field{Name: name, Offset: off, Type: typ})
	return nil
}

func (t *Type) addBase(kid *dwarf.Entry) error {
	d := t.info
	off, err := memberOffset(kid, d.ptrSize)
	if err != nil {
		return err
	}
	base, err := d.typeOf(kid)
	if err != nil {
		return err
	}
	t.bases = append(t.bases, typeinfo.Field{Name: base.Name(), Offset: off, Type: base})
	return nil
}
