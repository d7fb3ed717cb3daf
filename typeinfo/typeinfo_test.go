package typeinfo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupAccumulatesOffsets(t *testing.T) {
	intT := NewBasic("int", 4)
	inner := NewStruct("inner", 16).With("_Myfirst", 8, NewPointer(intT, 8))
	outer := NewStruct("outer", 24).With("_Mypair", 8, inner)

	f, err := Lookup(outer, "_Mypair", "_Myfirst")
	require.NoError(t, err)
	require.Equal(t, int64(16), f.Offset)
	require.Equal(t, "_Myfirst", f.Name)

	elem, err := Pointee(f)
	require.NoError(t, err)
	require.Equal(t, "int", elem.Name())
}

func TestLookupStopsAtFirstMissingSegment(t *testing.T) {
	outer := NewStruct("outer", 8).With("a", 0, NewBasic("long", 8))

	_, err := Lookup(outer, "b", "c")
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []string{"b"}, missing.Path)

	_, err = Lookup(outer, "a", "c")
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []string{"a", "c"}, missing.Path)
}

func TestAnonymousMembersAndBasesAreFlattened(t *testing.T) {
	ptr := NewPointer(NewBasic("char", 1), 8)
	union := NewUnion("", 16).With("_Buf", 0, NewArray(NewBasic("char", 1), 16)).With("_Ptr", 0, ptr)
	base := NewStruct("base", 8).With("_Mysize", 0, NewBasic("unsigned long", 8))
	s := NewStruct("derived", 32).Inherit(0, base).With("", 8, union)

	f, ok := s.Field("_Ptr")
	require.True(t, ok)
	require.Equal(t, int64(8), f.Offset)

	f, ok = s.Field("_Mysize")
	require.True(t, ok)
	require.Equal(t, int64(0), f.Offset)

	_, ok = s.Field("")
	require.False(t, ok)
}

func TestLookupAnyReturnsFirstResolvingPath(t *testing.T) {
	s := NewStruct("s", 16).With("__cap_", 8, NewBasic("long", 8))
	f, err := LookupAny(s, []string{"__end_cap_", "__value_"}, []string{"__cap_"})
	require.NoError(t, err)
	require.Equal(t, int64(8), f.Offset)

	_, err = LookupAny(s, []string{"x"}, []string{"y"})
	require.Error(t, err)
}

func TestTemplateArgs(t *testing.T) {
	intT := NewBasic("int", 4)
	arr := NewStruct("std::array<int,3>", 12).WithArgs(TypeParam(intT), ValueParam(3))

	elem, err := TypeArg(arr, 0)
	require.NoError(t, err)
	require.Equal(t, intT, elem)

	n, err := ValueArg(arr, 1)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	_, err = ValueArg(arr, 0)
	require.Error(t, err)
	_, err = TypeArg(arr, 1)
	require.Error(t, err)
}

func TestArgumentErrorsCarryStacks(t *testing.T) {
	arr := NewStruct("std::array<int,3>", 12)
	_, err := TypeArg(arr, 0)
	require.Error(t, err)
	require.Contains(t, fmt.Sprintf("%+v", err), "typeinfo.TypeArg")

	_, err = Pointee(Field{Name: "_M_p", Type: NewBasic("int", 4)})
	require.ErrorContains(t, err, "field _M_p is not a typed pointer")
	require.Contains(t, fmt.Sprintf("%+v", err), "typeinfo.Pointee")
}

func TestAlign(t *testing.T) {
	intT := NewBasic("int", 4)
	longDouble := NewBasic("long double", 16)
	pair := NewStruct("std::pair<int,int>", 8).With("first", 0, intT).With("second", 4, intT)
	nested := NewStruct("Outer", 32).With("ld", 0, longDouble).Inherit(16, pair)

	require.Equal(t, int64(4), Align(intT))
	require.Equal(t, int64(16), Align(longDouble))
	require.Equal(t, int64(8), Align(NewPointer(intT, 8)))
	require.Equal(t, int64(4), Align(pair))
	require.Equal(t, int64(16), Align(nested))
	require.Equal(t, int64(4), Align(NewArray(intT, 3)))
	require.Equal(t, int64(1), Align(NewStruct("Empty", 1)))
	require.Equal(t, int64(64), Align(NewStruct("Line", 64).With("x", 0, intT).Aligned(64)))
	require.Equal(t, int64(1), Align(nil))

	require.Equal(t, int64(16), AlignUp(16, 8))
	require.Equal(t, int64(32), AlignUp(17, 16))
	require.Equal(t, int64(5), AlignUp(5, 1))
}
