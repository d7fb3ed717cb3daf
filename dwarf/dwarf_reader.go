package dwarfhelper

import (
	"debug/dwarf"

	mapset "github.com/deckarep/golang-set"

	"stdview/errors"
)

// entryReader is the part of *dwarf.Reader the indexer needs.
type entryReader interface {
	Next() (*dwarf.Entry, error)
}

// typeTags are the entries a descriptor can be built from or resolved
// through.
var typeTags = mapset.NewSet(
	dwarf.TagBaseType,
	dwarf.TagUnspecifiedType,
	dwarf.TagEnumerationType,
	dwarf.TagClassType,
	dwarf.TagStructType,
	dwarf.TagUnionType,
	dwarf.TagPointerType,
	dwarf.TagReferenceType,
	dwarf.TagRvalueReferenceType,
	dwarf.TagPtrToMemberType,
	dwarf.TagArrayType,
	dwarf.TagSubroutineType,
	dwarf.TagTypedef,
	dwarf.TagConstType,
	dwarf.TagVolatileType,
	dwarf.TagRestrictType,
)

// memberTags are the children kept under their parent type.
var memberTags = mapset.NewSet(
	dwarf.TagMember,
	dwarf.TagInheritance,
	dwarf.TagTemplateTypeParameter,
	dwarf.TagTemplateValueParameter,
	dwarf.TagSubrangeType,
)

// scopeTags add a component to the qualified name of what they contain.
var scopeTags = mapset.NewSet(
	dwarf.TagNamespace,
	dwarf.TagClassType,
	dwarf.TagStructType,
	dwarf.TagUnionType,
)

type scope struct {
	name   string
	offset dwarf.Offset
	// members is set for type entries whose children are recorded.
	members bool
	// local is set inside functions; types there stay out of the name
	// index.
	local bool
}

// index makes one pass over the entry stream. Nesting is tracked with a
// stack of open entries; a null entry closes the innermost one.
func (d *DwarfInfo) index(r entryReader) error {
	var stack []scope
	for {
		entry, err := r.Next()
		if err != nil {
			return errors.Wrap(err, "read DWARF entries")
		}
		if entry == nil {
			break
		}
		if entry.Tag == 0 {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		var parent scope
		if len(stack) > 0 {
			parent = stack[len(stack)-1]
		}
		if parent.members && memberTags.Contains(entry.Tag) {
			d.children[parent.offset] = append(d.children[parent.offset], entry)
		}
		if typeTags.Contains(entry.Tag) {
			d.offset2entry[entry.Offset] = entry
			if name, ok := entry.Val(dwarf.AttrName).(string); ok && name != "" {
				q := qualify(stack, name)
				d.qualified[entry.Offset] = q
				if !parent.local && !isDeclaration(entry) {
					if _, seen := d.names[q]; !seen {
						d.names[q] = entry.Offset
					}
				}
			}
		}
		if !entry.Children {
			continue
		}
		s := scope{
			offset:  entry.Offset,
			members: typeTags.Contains(entry.Tag),
			local:   parent.local || entry.Tag == dwarf.TagSubprogram || entry.Tag == dwarf.TagLexDwarfBlock,
		}
		if scopeTags.Contains(entry.Tag) {
			s.name, _ = entry.Val(dwarf.AttrName).(string)
			if s.name == "" && entry.Tag == dwarf.TagNamespace {
				s.name = "(anonymous namespace)"
			}
		}
		stack = append(stack, s)
	}
	return nil
}
