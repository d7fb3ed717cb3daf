package dwarfhelper

import (
	"debug/dwarf"
	"strings"

	"github.com/go-delve/delve/pkg/dwarf/op"

	"stdview/errors"
)

func qualify(stack []scope, name string) string {
	var b strings.Builder
	for _, s := range stack {
		if s.name == "" {
			continue
		}
		b.WriteString(s.name)
		b.WriteString("::")
	}
	b.WriteString(name)
	return b.String()
}

func isDeclaration(entry *dwarf.Entry) bool {
	decl, _ := entry.Val(dwarf.AttrDeclaration).(bool)
	return decl
}

// hasDataMemberLoc is false for static data members, which DWARF 4 lists
// as members without a location.
func hasDataMemberLoc(entry *dwarf.Entry) bool {
	return entry.Val(dwarf.AttrDataMemberLoc) != nil || entry.Val(dwarf.AttrDataBitOffset) != nil
}

// memberOffset decodes DW_AT_data_member_location. Producers emit either a
// constant or a location expression evaluated with the address of the
// enclosing object on the stack; the object is taken to sit at zero.
func memberOffset(entry *dwarf.Entry, ptrSize int) (int64, error) {
	switch loc := entry.Val(dwarf.AttrDataMemberLoc).(type) {
	case nil:
		bits, _ := entry.Val(dwarf.AttrDataBitOffset).(int64)
		return bits / 8, nil
	case int64:
		return loc, nil
	case []byte:
		if len(loc) == 0 {
			return 0, nil
		}
		prog := append([]byte{byte(op.DW_OP_lit0)}, loc...)
		off, _, err := op.ExecuteStackProgram(op.DwarfRegisters{}, prog, ptrSize, nil)
		if err != nil {
			return 0, errors.Wrap(err, "member location")
		}
		return off, nil
	default:
		return 0, errors.Newf("unsupported member location %T", loc)
	}
}

func attrType(entry *dwarf.Entry) (dwarf.Offset, bool) {
	off, ok := entry.Val(dwarf.AttrType).(dwarf.Offset)
	return off, ok
}

// subrangeLen is the element count of one array dimension; zero for a
// flexible or unknown bound.
func subrangeLen(entry *dwarf.Entry) int64 {
	if n, ok := entry.Val(dwarf.AttrCount).(int64); ok {
		return n
	}
	if ub, ok := entry.Val(dwarf.AttrUpperBound).(int64); ok {
		lb, _ := entry.Val(dwarf.AttrLowerBound).(int64)
		return ub - lb + 1
	}
	return 0
}
