package stl

import (
	"iter"

	"stdview/errors"
	"stdview/layout"
	"stdview/memory"
	"stdview/typeinfo"
)

type treeLayout struct {
	size intField
	// root returns the address of the root node. Reaching it costs one
	// extra parent hop from the MSVC head node.
	root  func(r memory.Remote) (uint64, error)
	left  int64
	right int64
	// isNil tells a real node from the end of a branch: MSVC marks its
	// sentinel with a flag byte, the others end branches with null.
	isNil func(p *memory.Process, node uint64) (bool, error)
	value embeddedPair
}

var trees = layout.New("map",
	layout.Candidate[treeLayout, *Map]{Toolchain: MSVC, Verify: verifyMSVCTree, Open: newMap},
	layout.Candidate[treeLayout, *Map]{Toolchain: LibStdCpp, Verify: verifyLibStdCppTree, Open: newMap},
	layout.Candidate[treeLayout, *Map]{Toolchain: LibCpp, Verify: verifyLibCppTree, Open: newMap},
)

func nullIsNil(_ *memory.Process, node uint64) (bool, error) {
	return node == 0, nil
}

func verifyMSVCTree(t typeinfo.Type) (treeLayout, error) {
	head, err := lookupPointer(t, path("_Mypair", "_Myval2", "_Myval2", "_Myhead"))
	if err != nil {
		return treeLayout{}, err
	}
	size, err := lookupInt(t, path("_Mypair", "_Myval2", "_Myval2", "_Mysize"))
	if err != nil {
		return treeLayout{}, err
	}
	node := head.elem
	left, err := typeinfo.Lookup(node, "_Left")
	if err != nil {
		return treeLayout{}, err
	}
	parent, err := typeinfo.Lookup(node, "_Parent")
	if err != nil {
		return treeLayout{}, err
	}
	right, err := typeinfo.Lookup(node, "_Right")
	if err != nil {
		return treeLayout{}, err
	}
	isNil, err := lookupInt(node, path("_Isnil"))
	if err != nil {
		return treeLayout{}, err
	}
	val, err := typeinfo.Lookup(node, "_Myval")
	if err != nil {
		return treeLayout{}, err
	}
	pair, err := newEmbeddedPair(val.Offset, val.Type)
	if err != nil {
		return treeLayout{}, err
	}
	return treeLayout{
		size: size,
		root: func(r memory.Remote) (uint64, error) {
			h, err := head.read(r.Process, r.Address)
			if err != nil {
				return 0, err
			}
			return r.Process.ReadPointer(h + uint64(parent.Offset))
		},
		left:  left.Offset,
		right: right.Offset,
		isNil: func(p *memory.Process, node uint64) (bool, error) {
			if node == 0 {
				return true, nil
			}
			flag, err := isNil.uint(p, node)
			return flag != 0, err
		},
		value: pair,
	}, nil
}

func verifyLibStdCppTree(t typeinfo.Type) (treeLayout, error) {
	impl, err := typeinfo.Lookup(t, "_M_t")
	if err != nil {
		return treeLayout{}, err
	}
	header, err := typeinfo.Lookup(t, "_M_t", "_M_impl", "_M_header")
	if err != nil {
		return treeLayout{}, err
	}
	size, err := lookupInt(t, path("_M_t", "_M_impl", "_M_node_count"))
	if err != nil {
		return treeLayout{}, err
	}
	parent, err := lookupPointer(header.Type, path("_M_parent"))
	if err != nil {
		return treeLayout{}, err
	}
	left, err := lookupPointer(header.Type, path("_M_left"))
	if err != nil {
		return treeLayout{}, err
	}
	right, err := lookupPointer(header.Type, path("_M_right"))
	if err != nil {
		return treeLayout{}, err
	}
	// _Rb_tree<Key, Value, ...>: the node value follows the node base at
	// its own alignment.
	valueType, err := typeinfo.TypeArg(impl.Type, 1)
	if err != nil {
		return treeLayout{}, err
	}
	pair, err := newEmbeddedPair(typeinfo.AlignUp(header.Type.Size(), typeinfo.Align(valueType)), valueType)
	if err != nil {
		return treeLayout{}, err
	}
	rootAt := header.Offset + parent.offset
	return treeLayout{
		size: size,
		root: func(r memory.Remote) (uint64, error) {
			return r.Process.ReadPointer(r.Address + uint64(rootAt))
		},
		left:  left.offset,
		right: right.offset,
		isNil: nullIsNil,
		value: pair,
	}, nil
}

func verifyLibCppTree(t typeinfo.Type) (treeLayout, error) {
	tree, err := typeinfo.Lookup(t, "__tree_")
	if err != nil {
		return treeLayout{}, err
	}
	end, err := typeinfo.LookupAny(tree.Type, path("__pair1_", "__value_"), path("__end_node_"))
	if err != nil {
		return treeLayout{}, err
	}
	size, err := lookupInt(tree.Type, path("__pair3_", "__value_"), path("__size_"))
	if err != nil {
		return treeLayout{}, err
	}
	rootLink, err := lookupPointer(end.Type, path("__left_"))
	if err != nil {
		return treeLayout{}, err
	}
	base := rootLink.elem
	left, err := typeinfo.Lookup(base, "__left_")
	if err != nil {
		return treeLayout{}, err
	}
	right, err := typeinfo.Lookup(base, "__right_")
	if err != nil {
		return treeLayout{}, err
	}
	// __tree<__value_type<Key, T>, ...>; the pair is the __cc member.
	valueType, err := typeinfo.TypeArg(tree.Type, 0)
	if err != nil {
		return treeLayout{}, err
	}
	cc, err := typeinfo.LookupAny(valueType, path("__cc_"), path("__cc"))
	if err != nil {
		return treeLayout{}, err
	}
	pair, err := newEmbeddedPair(typeinfo.AlignUp(base.Size(), typeinfo.Align(valueType))+cc.Offset, cc.Type)
	if err != nil {
		return treeLayout{}, err
	}
	rootAt := tree.Offset + end.Offset + rootLink.offset
	size.offset += tree.Offset
	return treeLayout{
		size: size,
		root: func(r memory.Remote) (uint64, error) {
			return r.Process.ReadPointer(r.Address + uint64(rootAt))
		},
		left:  left.Offset,
		right: right.Offset,
		isNil: nullIsNil,
		value: pair,
	}, nil
}

// Map is a view over a std::map.
//
// Entries come out of All in the order of a stack walk that pushes the
// right child before the left one. That order is deterministic for an
// unchanged tree but it is not ascending key order.
type Map struct {
	r     memory.Remote
	facts treeLayout
}

func OpenMap(r memory.Remote) (*Map, error) {
	return trees.Open(r)
}

func newMap(r memory.Remote, facts treeLayout) *Map {
	return &Map{r: r, facts: facts}
}

func (m *Map) Len() (int, error) {
	return m.facts.size.count(m.r.Process, m.r.Address)
}

func (m *Map) All() iter.Seq2[*Pair, error] {
	return func(yield func(*Pair, error) bool) {
		p := m.r.Process
		n, err := m.Len()
		if err != nil {
			yield(nil, err)
			return
		}
		root, err := m.facts.root(m.r)
		if err != nil {
			yield(nil, err)
			return
		}
		stack := []uint64{root}
		seen := 0
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			isNil, err := m.facts.isNil(p, node)
			if err != nil {
				yield(nil, err)
				return
			}
			if isNil {
				continue
			}
			if seen == n {
				yield(nil, errors.Wrapf(errors.ErrCorrupt, "tree has more than %d nodes", n))
				return
			}
			seen++
			if !yield(m.facts.value.at(m.r, node), nil) {
				return
			}
			right, err := p.ReadPointer(node + uint64(m.facts.right))
			if err != nil {
				yield(nil, err)
				return
			}
			left, err := p.ReadPointer(node + uint64(m.facts.left))
			if err != nil {
				yield(nil, err)
				return
			}
			stack = append(stack, right, left)
		}
	}
}

func (m *Map) Keys() iter.Seq2[memory.Remote, error] {
	return project(m.All(), (*Pair).First)
}

func (m *Map) Values() iter.Seq2[memory.Remote, error] {
	return project(m.All(), (*Pair).Second)
}

// Find scans every entry; there is no comparator to descend the tree with.
func (m *Map) Find(key KeyMatcher) (*Pair, error) {
	return find(m.All(), key)
}

func (m *Map) Get(key KeyMatcher) (memory.Remote, error) {
	e, err := m.Find(key)
	if err != nil {
		return memory.Remote{}, err
	}
	return e.Second(), nil
}

func (m *Map) ContainsKey(key KeyMatcher) (bool, error) {
	return contains(m.All(), key)
}
