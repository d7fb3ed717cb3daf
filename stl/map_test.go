package stl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stdview/errors"
	"stdview/memory"
	"stdview/typeinfo"
)

func msvcMap(k, v typeinfo.Type) *typeinfo.Static {
	pair := pairOf(k, v)
	node := typeinfo.NewStruct("std::_Tree_node<"+pair.Name()+",void *>", 48)
	node.With("_Left", 0, ptrTo(node)).
		With("_Parent", 8, ptrTo(node)).
		With("_Right", 16, ptrTo(node)).
		With("_Color", 24, charT).
		With("_Isnil", 25, charT).
		With("_Myval", 32, pair)
	val := typeinfo.NewStruct("std::_Tree_val<...>", 16).
		With("_Myhead", 0, ptrTo(node)).
		With("_Mysize", 8, sizeT)
	inner := typeinfo.NewStruct("std::_Compressed_pair<std::allocator<...>,std::_Tree_val<...>,1>", 16).With("_Myval2", 0, val)
	outer := typeinfo.NewStruct("std::_Compressed_pair<std::less<...>,...>", 16).With("_Myval2", 0, inner)
	tree := typeinfo.NewStruct("std::_Tree<std::_Tmap_traits<...> >", 16).With("_Mypair", 0, outer)
	return typeinfo.NewStruct("std::map<"+k.Name()+","+v.Name()+">", 16).
		Inherit(0, tree).
		WithArgs(typeinfo.TypeParam(k), typeinfo.TypeParam(v))
}

type msvcTreeNode struct {
	addr, left, parent, right uint64
	isNil                     bool
	key, value                uint64
}

func putMSVCTree(img *memory.Image, nodes ...msvcTreeNode) {
	for _, n := range nodes {
		img.PutUint64(n.addr, n.left)
		img.PutUint64(n.addr+8, n.parent)
		img.PutUint64(n.addr+16, n.right)
		img.PutUint8(n.addr+24, 0)
		var flag uint8
		if n.isNil {
			flag = 1
		}
		img.PutUint8(n.addr+25, flag)
		img.PutUint64(n.addr+32, n.key)
		img.PutUint64(n.addr+40, n.value)
	}
}

func libstdcppMap(k, v typeinfo.Type) *typeinfo.Static {
	pair := pairOf(k, v)
	base := typeinfo.NewStruct("std::_Rb_tree_node_base", 32)
	base.With("_M_color", 0, intT).
		With("_M_parent", 8, ptrTo(base)).
		With("_M_left", 16, ptrTo(base)).
		With("_M_right", 24, ptrTo(base))
	header := typeinfo.NewStruct("std::_Rb_tree_header", 40).
		With("_M_header", 0, base).
		With("_M_node_count", 32, sizeT)
	impl := typeinfo.NewStruct("std::_Rb_tree<...>::_Rb_tree_impl<std::less<"+k.Name()+">, true>", 48).
		Inherit(8, header)
	tree := typeinfo.NewStruct("std::_Rb_tree<"+k.Name()+", "+pair.Name()+", ...>", 48).
		With("_M_impl", 0, impl).
		WithArgs(typeinfo.TypeParam(k), typeinfo.TypeParam(pair))
	return typeinfo.NewStruct("std::map<"+k.Name()+", "+v.Name()+">", 48).
		With("_M_t", 0, tree).
		WithArgs(typeinfo.TypeParam(k), typeinfo.TypeParam(v))
}

type rbNode struct {
	addr, parent, left, right uint64
	key, value                uint64
}

func putRbTree(img *memory.Image, nodes ...rbNode) {
	for _, n := range nodes {
		img.PutUint32(n.addr, 0)
		img.PutUint64(n.addr+8, n.parent)
		img.PutUint64(n.addr+16, n.left)
		img.PutUint64(n.addr+24, n.right)
		img.PutUint64(n.addr+32, n.key)
		img.PutUint64(n.addr+40, n.value)
	}
}

func libcppMap(k, v typeinfo.Type) *typeinfo.Static {
	pair := pairOf(k, v)
	end := typeinfo.NewStruct("std::__1::__tree_end_node<std::__1::__tree_node_base<void *> *>", 8)
	base := typeinfo.NewStruct("std::__1::__tree_node_base<void *>", 32)
	end.With("__left_", 0, ptrTo(base))
	base.Inherit(0, end).
		With("__right_", 8, ptrTo(base)).
		With("__parent_", 16, ptrTo(end)).
		With("__is_black_", 24, boolT)
	valueType := typeinfo.NewStruct("std::__1::__value_type<"+k.Name()+", "+v.Name()+">", 16).With("__cc_", 0, pair)
	tree := typeinfo.NewStruct("std::__1::__tree<...>", 24).
		With("__begin_node_", 0, ptrTo(end)).
		With("__pair1_", 8, typeinfo.NewStruct("std::__1::__compressed_pair<...>", 8).With("__value_", 0, end)).
		With("__pair3_", 16, typeinfo.NewStruct("std::__1::__compressed_pair<unsigned long, ...>", 8).With("__value_", 0, sizeT)).
		WithArgs(typeinfo.TypeParam(valueType))
	return typeinfo.NewStruct("std::__1::map<"+k.Name()+", "+v.Name()+">", 24).
		With("__tree_", 0, tree).
		WithArgs(typeinfo.TypeParam(k), typeinfo.TypeParam(v))
}

func mapKeys(t *testing.T, m *Map) []int64 {
	t.Helper()
	var keys []int64
	for k, err := range m.Keys() {
		require.NoError(t, err)
		v, err := k.Int()
		require.NoError(t, err)
		keys = append(keys, v)
	}
	return keys
}

func openMSVCSample(t *testing.T) (*memory.Image, *Map) {
	img, proc := target()
	const head = 0x2000
	img.PutUint64(0x100, head)
	img.PutUint64(0x108, 4)
	putMSVCTree(img,
		msvcTreeNode{addr: head, left: 0x3100, parent: 0x3000, right: 0x3200, isNil: true},
		msvcTreeNode{addr: 0x3000, left: 0x3100, parent: head, right: 0x3200, key: 20, value: 200},
		msvcTreeNode{addr: 0x3100, left: head, parent: 0x3000, right: head, key: 10, value: 100},
		msvcTreeNode{addr: 0x3200, left: 0x3300, parent: 0x3000, right: head, key: 30, value: 300},
		msvcTreeNode{addr: 0x3300, left: head, parent: 0x3200, right: head, key: 25, value: 250},
	)
	m, err := OpenMap(memory.Remote{Process: proc, Type: msvcMap(longT, longT), Address: 0x100})
	require.NoError(t, err)
	return img, m
}

func TestMapEnumeratesPreOrder(t *testing.T) {
	_, m := openMSVCSample(t)

	n, err := m.Len()
	require.NoError(t, err)
	require.Equal(t, 4, n)

	// stack walk pushing right before left: root, left subtree, right subtree
	first := mapKeys(t, m)
	require.Equal(t, []int64{20, 10, 30, 25}, first)
	require.Equal(t, first, mapKeys(t, m))

	var values []int64
	for v, err := range m.Values() {
		require.NoError(t, err)
		x, err := v.Int()
		require.NoError(t, err)
		values = append(values, x)
	}
	require.Equal(t, []int64{200, 100, 300, 250}, values)
}

func TestMapKeyedLookup(t *testing.T) {
	_, m := openMSVCSample(t)

	v, err := m.Get(IntKey(25))
	require.NoError(t, err)
	x, err := v.Int()
	require.NoError(t, err)
	require.Equal(t, int64(250), x)

	e, err := m.Find(UintKey(10))
	require.NoError(t, err)
	require.Equal(t, uint64(0x3100+32), e.Address())

	_, err = m.Get(IntKey(99))
	require.True(t, errors.Is(err, errors.ErrKeyNotFound))

	ok, err := m.ContainsKey(BytesKey([]byte{30, 0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.ContainsKey(IntKey(99))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTwoViewsOverSameMapAgree(t *testing.T) {
	_, m := openMSVCSample(t)
	other, err := OpenMap(m.r)
	require.NoError(t, err)
	require.Equal(t, mapKeys(t, m), mapKeys(t, other))
}

func TestLibStdCppMapNullSentinels(t *testing.T) {
	img, proc := target()
	// header at 0x108, root link at header+8, count at header+32
	img.PutUint64(0x110, 0x3000)
	img.PutUint64(0x128, 3)
	putRbTree(img,
		rbNode{addr: 0x3000, parent: 0x108, left: 0x3100, right: 0x3200, key: 2, value: 20},
		rbNode{addr: 0x3100, parent: 0x3000, key: 1, value: 10},
		rbNode{addr: 0x3200, parent: 0x3000, key: 3, value: 30},
	)
	m, err := OpenMap(memory.Remote{Process: proc, Type: libstdcppMap(longT, longT), Address: 0x100})
	require.NoError(t, err)
	require.Equal(t, []int64{2, 1, 3}, mapKeys(t, m))

	sel, err := trees.Select(libstdcppMap(longT, longT))
	require.NoError(t, err)
	require.Equal(t, LibStdCpp, sel.Toolchain)
	require.Equal(t, int64(32), sel.Facts.value.offset)
}

func TestLibCppMap(t *testing.T) {
	img, proc := target()
	img.PutUint64(0x108, 0x3000)
	img.PutUint64(0x110, 2)
	// node: __left_ 0, __right_ 8, __parent_ 16, __is_black_ 24, pair at 32
	img.PutUint64(0x3000, 0)
	img.PutUint64(0x3008, 0x3100)
	img.PutUint64(0x3020, 7)
	img.PutUint64(0x3100, 0)
	img.PutUint64(0x3108, 0)
	img.PutUint64(0x3120, 8)

	m, err := OpenMap(memory.Remote{Process: proc, Type: libcppMap(longT, longT), Address: 0x100})
	require.NoError(t, err)
	require.Equal(t, []int64{7, 8}, mapKeys(t, m))
}

func TestMapCycleIsReportedAsCorrupt(t *testing.T) {
	img, proc := target()
	img.PutUint64(0x110, 0x3000)
	img.PutUint64(0x128, 2)
	putRbTree(img, rbNode{addr: 0x3000, left: 0x3000, key: 1})

	m, err := OpenMap(memory.Remote{Process: proc, Type: libstdcppMap(longT, longT), Address: 0x100})
	require.NoError(t, err)
	var last error
	count := 0
	for _, err := range m.All() {
		if err != nil {
			last = err
			break
		}
		count++
	}
	require.Equal(t, 2, count)
	require.True(t, errors.Is(last, errors.ErrCorrupt))
}

func TestEmptyMSVCMap(t *testing.T) {
	img, proc := target()
	img.PutUint64(0x100, 0x2000)
	img.PutUint64(0x108, 0)
	putMSVCTree(img, msvcTreeNode{addr: 0x2000, left: 0x2000, parent: 0x2000, right: 0x2000, isNil: true})

	m, err := OpenMap(memory.Remote{Process: proc, Type: msvcMap(longT, longT), Address: 0x100})
	require.NoError(t, err)
	require.Empty(t, mapKeys(t, m))
	ok, err := m.ContainsKey(IntKey(1))
	require.NoError(t, err)
	require.False(t, ok)
}
