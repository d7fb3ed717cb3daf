package stl

import (
	"iter"

	"stdview/errors"
	"stdview/layout"
	"stdview/memory"
	"stdview/typeinfo"
)

type listLayout struct {
	// sentinel returns the address of the list's sentinel node. MSVC
	// allocates it on the heap; GCC and LLVM embed it in the list object.
	sentinel func(r memory.Remote) (uint64, error)
	size     intField
	next     int64
	prev     int64
	value    int64
	elem     typeinfo.Type
}

var lists = layout.New("list",
	layout.Candidate[listLayout, *List]{Toolchain: MSVC, Verify: verifyMSVCList, Open: newList},
	layout.Candidate[listLayout, *List]{
		Toolchain: LibStdCpp,
		Verify: verifyEmbeddedList(
			paths{path("_M_impl", "_M_node")},
			"_M_next", "_M_prev",
			paths{path("_M_impl", "_M_node", "_M_size")}),
		Open: newList,
	},
	layout.Candidate[listLayout, *List]{
		Toolchain: LibCpp,
		Verify: verifyEmbeddedList(
			paths{path("__end_")},
			"__next_", "__prev_",
			paths{path("__size_alloc_", "__value_"), path("__size_")}),
		Open: newList,
	},
)

func verifyMSVCList(t typeinfo.Type) (listLayout, error) {
	head, err := lookupPointer(t, path("_Mypair", "_Myval2", "_Myhead"))
	if err != nil {
		return listLayout{}, err
	}
	size, err := lookupInt(t, path("_Mypair", "_Myval2", "_Mysize"))
	if err != nil {
		return listLayout{}, err
	}
	next, err := typeinfo.Lookup(head.elem, "_Next")
	if err != nil {
		return listLayout{}, err
	}
	prev, err := typeinfo.Lookup(head.elem, "_Prev")
	if err != nil {
		return listLayout{}, err
	}
	val, err := typeinfo.Lookup(head.elem, "_Myval")
	if err != nil {
		return listLayout{}, err
	}
	return listLayout{
		sentinel: func(r memory.Remote) (uint64, error) {
			return head.read(r.Process, r.Address)
		},
		size:  size,
		next:  next.Offset,
		prev:  prev.Offset,
		value: val.Offset,
		elem:  val.Type,
	}, nil
}

// verifyEmbeddedList handles layouts whose nodes are a link base followed by
// the value. The node type holding the value never appears in the list's own
// description, so the value sits after the two links, padded to its own
// alignment, and its type is the first template argument.
func verifyEmbeddedList(node paths, nextName, prevName string, size paths) func(typeinfo.Type) (listLayout, error) {
	return func(t typeinfo.Type) (listLayout, error) {
		sentinel, err := typeinfo.LookupAny(t, node...)
		if err != nil {
			return listLayout{}, err
		}
		next, err := lookupPointer(sentinel.Type, path(nextName))
		if err != nil {
			return listLayout{}, err
		}
		prev, err := lookupPointer(sentinel.Type, path(prevName))
		if err != nil {
			return listLayout{}, err
		}
		sz, err := lookupInt(t, size...)
		if err != nil {
			return listLayout{}, err
		}
		elem, err := typeinfo.TypeArg(t, 0)
		if err != nil {
			return listLayout{}, err
		}
		off := sentinel.Offset
		return listLayout{
			sentinel: func(r memory.Remote) (uint64, error) {
				return r.Address + uint64(off), nil
			},
			size:  sz,
			next:  next.offset,
			prev:  prev.offset,
			value: typeinfo.AlignUp(max(next.offset, prev.offset)+next.width, typeinfo.Align(elem)),
			elem:  elem,
		}, nil
	}
}

// List is a view over a std::list.
type List struct {
	r     memory.Remote
	facts listLayout
}

func OpenList(r memory.Remote) (*List, error) {
	return lists.Open(r)
}

func newList(r memory.Remote, facts listLayout) *List {
	return &List{r: r, facts: facts}
}

func (l *List) ElementType() typeinfo.Type {
	return l.facts.elem
}

// Len reads the stored size; the list is never walked to count it.
func (l *List) Len() (int, error) {
	return l.facts.size.count(l.r.Process, l.r.Address)
}

// All walks forward from the sentinel's next link exactly Len times.
func (l *List) All() iter.Seq2[memory.Remote, error] {
	return l.walk(l.facts.next)
}

// Backward walks the previous links from the sentinel, last element first.
func (l *List) Backward() iter.Seq2[memory.Remote, error] {
	return l.walk(l.facts.prev)
}

func (l *List) walk(link int64) iter.Seq2[memory.Remote, error] {
	return func(yield func(memory.Remote, error) bool) {
		p := l.r.Process
		n, err := l.Len()
		if err != nil {
			yield(memory.Remote{}, err)
			return
		}
		sentinel, err := l.facts.sentinel(l.r)
		if err != nil {
			yield(memory.Remote{}, err)
			return
		}
		node := sentinel
		for i := 0; i < n; i++ {
			if node, err = p.ReadPointer(node + uint64(link)); err != nil {
				yield(memory.Remote{}, err)
				return
			}
			if !yield(l.r.At(l.facts.elem, node+uint64(l.facts.value)), nil) {
				return
			}
		}
	}
}

func (l *List) Front() (memory.Remote, error) {
	return l.end(l.All())
}

func (l *List) Back() (memory.Remote, error) {
	return l.end(l.Backward())
}

func (l *List) end(seq iter.Seq2[memory.Remote, error]) (memory.Remote, error) {
	for v, err := range seq {
		return v, err
	}
	return memory.Remote{}, errors.OutOfRange(0, 0)
}
