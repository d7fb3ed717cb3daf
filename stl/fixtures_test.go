package stl

import (
	"stdview/memory"
	"stdview/typeinfo"
)

var (
	intT   = typeinfo.NewBasic("int", 4)
	longT  = typeinfo.NewBasic("long", 8)
	sizeT  = typeinfo.NewBasic("unsigned long", 8)
	charT  = typeinfo.NewBasic("char", 1)
	wcharT = typeinfo.NewBasic("wchar_t", 2)
	boolT  = typeinfo.NewBasic("bool", 1)
)

func ptrTo(t typeinfo.Type) *typeinfo.Static {
	return typeinfo.NewPointer(t, 8)
}

func target() (*memory.Image, *memory.Process) {
	img := memory.NewImage()
	return img, memory.NewProcess(img)
}

func targetWithSymbols(syms memory.SymbolTable) (*memory.Image, *memory.Process) {
	img := memory.NewImage()
	return img, memory.NewProcess(img, memory.WithSymbols(syms))
}

// std::pair<const K, V> with 8-byte members.
func pairOf(k, v typeinfo.Type) *typeinfo.Static {
	return typeinfo.NewStruct("std::pair<const "+k.Name()+", "+v.Name()+">", 16).
		With("first", 0, k).
		With("second", 8, v).
		WithArgs(typeinfo.TypeParam(k), typeinfo.TypeParam(v))
}

func msvcVector(elem typeinfo.Type) *typeinfo.Static {
	val := typeinfo.NewStruct("std::_Vector_val<std::_Simple_types<"+elem.Name()+"> >", 24).
		With("_Myfirst", 0, ptrTo(elem)).
		With("_Mylast", 8, ptrTo(elem)).
		With("_Myend", 16, ptrTo(elem))
	pair := typeinfo.NewStruct("std::_Compressed_pair<std::allocator<"+elem.Name()+">,std::_Vector_val<...>,1>", 24).
		With("_Myval2", 0, val)
	return typeinfo.NewStruct("std::vector<"+elem.Name()+",std::allocator<"+elem.Name()+"> >", 24).
		With("_Mypair", 0, pair).
		WithArgs(typeinfo.TypeParam(elem))
}

func libstdcppVector(elem typeinfo.Type) *typeinfo.Static {
	impl := typeinfo.NewStruct("std::_Vector_base<"+elem.Name()+">::_Vector_impl", 24).
		With("_M_start", 0, ptrTo(elem)).
		With("_M_finish", 8, ptrTo(elem)).
		With("_M_end_of_storage", 16, ptrTo(elem))
	base := typeinfo.NewStruct("std::_Vector_base<"+elem.Name()+", std::allocator<"+elem.Name()+"> >", 24).
		With("_M_impl", 0, impl)
	return typeinfo.NewStruct("std::vector<"+elem.Name()+", std::allocator<"+elem.Name()+"> >", 24).
		Inherit(0, base).
		WithArgs(typeinfo.TypeParam(elem))
}

func libcppVector(elem typeinfo.Type) *typeinfo.Static {
	return typeinfo.NewStruct("std::__1::vector<"+elem.Name()+", std::__1::allocator<"+elem.Name()+"> >", 24).
		With("__begin_", 0, ptrTo(elem)).
		With("__end_", 8, ptrTo(elem)).
		With("__cap_", 16, ptrTo(elem)).
		WithArgs(typeinfo.TypeParam(elem))
}

// putVector writes first/last/end at addr for a vector whose pointers are
// consecutive.
func putVector(img *memory.Image, addr, first, last, end uint64) {
	img.PutUint64(addr, first)
	img.PutUint64(addr+8, last)
	img.PutUint64(addr+16, end)
}
