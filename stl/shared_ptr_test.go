package stl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stdview/errors"
	"stdview/memory"
	"stdview/typeinfo"
)

var uint32T = typeinfo.NewBasic("unsigned int", 4)

func msvcSmartPtr(name string, elem typeinfo.Type) *typeinfo.Static {
	rep := typeinfo.NewStruct("std::_Ref_count_base", 16).
		With("_Uses", 8, uint32T).
		With("_Weaks", 12, uint32T)
	base := typeinfo.NewStruct("std::_Ptr_base<"+elem.Name()+">", 16).
		With("_Ptr", 0, ptrTo(elem)).
		With("_Rep", 8, ptrTo(rep))
	return typeinfo.NewStruct(name+"<"+elem.Name()+">", 16).Inherit(0, base)
}

func libstdcppSmartPtr(name string, elem typeinfo.Type) *typeinfo.Static {
	block := typeinfo.NewStruct("std::_Sp_counted_base<(__gnu_cxx::_Lock_policy)2>", 16).
		With("_M_use_count", 8, intT).
		With("_M_weak_count", 12, intT)
	count := typeinfo.NewStruct("std::__shared_count<(__gnu_cxx::_Lock_policy)2>", 8).With("_M_pi", 0, ptrTo(block))
	base := typeinfo.NewStruct("std::__shared_ptr<"+elem.Name()+", (__gnu_cxx::_Lock_policy)2>", 16).
		With("_M_ptr", 0, ptrTo(elem)).
		With("_M_refcount", 8, count)
	return typeinfo.NewStruct(name+"<"+elem.Name()+">", 16).Inherit(0, base)
}

func libcppSmartPtr(name string, elem typeinfo.Type) *typeinfo.Static {
	shared := typeinfo.NewStruct("std::__1::__shared_count", 16).With("__shared_owners_", 8, longT)
	block := typeinfo.NewStruct("std::__1::__shared_weak_count", 24).
		Inherit(0, shared).
		With("__shared_weak_owners_", 16, longT)
	return typeinfo.NewStruct(name+"<"+elem.Name()+">", 16).
		With("__ptr_", 0, ptrTo(elem)).
		With("__cntrl_", 8, ptrTo(block))
}

func TestSharedPtrLiveCounts(t *testing.T) {
	img, proc := target()
	img.PutUint64(0x100, 0x4000)
	img.PutUint64(0x108, 0x5000)
	img.PutUint32(0x5008, 2)
	img.PutUint32(0x500c, 1)
	img.PutUint64(0x4000, 77)

	s, err := OpenSharedPtr(memory.Remote{Process: proc, Type: msvcSmartPtr("std::shared_ptr", longT), Address: 0x100})
	require.NoError(t, err)

	empty, err := s.IsEmpty()
	require.NoError(t, err)
	require.False(t, empty)

	uses, err := s.SharedCount()
	require.NoError(t, err)
	require.Equal(t, int64(2), uses)
	weaks, err := s.WeakCount()
	require.NoError(t, err)
	require.Equal(t, int64(1), weaks)

	e, err := s.Element()
	require.NoError(t, err)
	v, err := e.Int()
	require.NoError(t, err)
	require.Equal(t, int64(77), v)
	require.Equal(t, "long", s.ElementType().Name())
}

func TestNullSharedPtrIsEmptyWithoutReadingCounts(t *testing.T) {
	img, proc := target()
	img.PutUint64(0x100, 0)
	// the control block address is unmapped; emptiness must not touch it
	img.PutUint64(0x108, 0x9000)

	s, err := OpenSharedPtr(memory.Remote{Process: proc, Type: libstdcppSmartPtr("std::shared_ptr", longT), Address: 0x100})
	require.NoError(t, err)
	empty, err := s.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)

	_, err = s.Element()
	require.True(t, errors.Is(err, errors.ErrNullPointer))
}

func TestZeroBasedCountsAreCorrected(t *testing.T) {
	img, proc := target()
	img.PutUint64(0x100, 0x4000)
	img.PutUint64(0x108, 0x5000)
	img.PutUint64(0x5008, 2)
	img.PutUint64(0x5010, 0)

	w, err := OpenWeakPtr(memory.Remote{Process: proc, Type: libcppSmartPtr("std::__1::weak_ptr", longT), Address: 0x100})
	require.NoError(t, err)

	uses, err := w.SharedCount()
	require.NoError(t, err)
	require.Equal(t, int64(3), uses)
	weaks, err := w.WeakCount()
	require.NoError(t, err)
	require.Equal(t, int64(1), weaks)

	empty, err := w.IsEmpty()
	require.NoError(t, err)
	require.False(t, empty)
	e, err := w.Element()
	require.NoError(t, err)
	require.Equal(t, uint64(0x4000), e.Address)
}

func TestExpiredWeakPtr(t *testing.T) {
	img, proc := target()
	img.PutUint64(0x100, 0x4000)
	img.PutUint64(0x108, 0x5000)
	// libc++ stores owners minus one: -1 means no owner left
	img.PutUint64(0x5008, 0xffffffffffffffff)
	img.PutUint64(0x5010, 0)
	img.PutUint64(0x4000, 5)

	w, err := OpenWeakPtr(memory.Remote{Process: proc, Type: libcppSmartPtr("std::__1::weak_ptr", longT), Address: 0x100})
	require.NoError(t, err)

	uses, err := w.SharedCount()
	require.NoError(t, err)
	require.Zero(t, uses)

	empty, err := w.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)

	_, err = w.Element()
	require.True(t, errors.Is(err, errors.ErrDanglingAccess))

	e, err := w.UnsafeElement()
	require.NoError(t, err)
	v, err := e.Int()
	require.NoError(t, err)
	require.Equal(t, int64(5), v)
}

func TestWeakPtrWithoutControlBlock(t *testing.T) {
	img, proc := target()
	img.PutUint64(0x100, 0)
	img.PutUint64(0x108, 0)
	w, err := OpenWeakPtr(memory.Remote{Process: proc, Type: msvcSmartPtr("std::weak_ptr", longT), Address: 0x100})
	require.NoError(t, err)

	empty, err := w.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)
	_, err = w.Element()
	require.True(t, errors.Is(err, errors.ErrDanglingAccess))
}

func TestIsEmptyReportsReadFailures(t *testing.T) {
	img, proc := target()
	// nothing mapped at 0x100 for the shared_ptr
	s, err := OpenSharedPtr(memory.Remote{Process: proc, Type: msvcSmartPtr("std::shared_ptr", longT), Address: 0x100})
	require.NoError(t, err)
	empty, err := s.IsEmpty()
	require.True(t, errors.Is(err, memory.ErrAddressNotMapped))
	require.False(t, empty)

	// the weak_ptr payload is readable but its control block is not
	img.PutUint64(0x200, 0x4000)
	img.PutUint64(0x208, 0x9000)
	w, err := OpenWeakPtr(memory.Remote{Process: proc, Type: msvcSmartPtr("std::weak_ptr", longT), Address: 0x200})
	require.NoError(t, err)
	empty, err = w.IsEmpty()
	require.True(t, errors.Is(err, memory.ErrAddressNotMapped))
	require.False(t, empty)
}

func TestMakeSharedDetection(t *testing.T) {
	for _, tc := range []struct {
		name     string
		typ      *typeinfo.Static
		vptr     uint64
		symAddr  uint64
		symbol   string
		embedded bool
	}{
		{
			name:     "msvc make_shared",
			typ:      msvcSmartPtr("std::shared_ptr", longT),
			vptr:     0x7000,
			symAddr:  0x7000,
			symbol:   "const std::_Ref_count_obj2<long>::`vftable'",
			embedded: true,
		},
		{
			name:    "msvc new",
			typ:     msvcSmartPtr("std::shared_ptr", longT),
			vptr:    0x7000,
			symAddr: 0x7000,
			symbol:  "const std::_Ref_count<long>::`vftable'",
		},
		{
			name:     "libstdc++ make_shared",
			typ:      libstdcppSmartPtr("std::shared_ptr", longT),
			vptr:     0x7010,
			symAddr:  0x7000,
			symbol:   "vtable for std::_Sp_counted_ptr_inplace<long, std::allocator<long>, (__gnu_cxx::_Lock_policy)2>",
			embedded: true,
		},
		{
			name:    "libstdc++ new",
			typ:     libstdcppSmartPtr("std::shared_ptr", longT),
			vptr:    0x7010,
			symAddr: 0x7000,
			symbol:  "vtable for std::_Sp_counted_ptr<long*, (__gnu_cxx::_Lock_policy)2>",
		},
		{
			name:     "libc++ make_shared",
			typ:      libcppSmartPtr("std::__1::shared_ptr", longT),
			vptr:     0x7010,
			symAddr:  0x7000,
			symbol:   "vtable for std::__1::__shared_ptr_emplace<long, std::__1::allocator<long> >",
			embedded: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			img, proc := targetWithSymbols(memory.SymbolTable{tc.symAddr: tc.symbol})
			img.PutUint64(0x100, 0x4000)
			img.PutUint64(0x108, 0x5000)
			img.PutUint64(0x5000, tc.vptr)

			s, err := OpenSharedPtr(memory.Remote{Process: proc, Type: tc.typ, Address: 0x100})
			require.NoError(t, err)
			embedded, err := s.IsCreatedWithMakeShared()
			require.NoError(t, err)
			require.Equal(t, tc.embedded, embedded)
		})
	}
}

func TestVtableOwner(t *testing.T) {
	require.Equal(t, "std::_Ref_count_obj2<int>", vtableOwner("const std::_Ref_count_obj2<int>::`vftable'"))
	require.Equal(t, "std::_Sp_counted_ptr_inplace<int>", vtableOwner("vtable for std::_Sp_counted_ptr_inplace<int>"))
	require.True(t, embeddedAllocation(LibCpp, "std::__1::__shared_ptr_emplace<int, std::__1::allocator<int> >"))
	require.False(t, embeddedAllocation(MSVC, "std::__1::__shared_ptr_emplace<int>"))
}
