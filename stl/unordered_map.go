package stl

import (
	"iter"

	"stdview/errors"
	"stdview/layout"
	"stdview/memory"
	"stdview/typeinfo"
)

// hashLayout describes a hash table whose nodes are threaded on one singly
// linked chain through all buckets, so no per-bucket walk is needed.
type hashLayout struct {
	size intField
	// first returns the first node, stop the address that ends the chain:
	// null for GCC and LLVM, the list sentinel for MSVC.
	first func(r memory.Remote) (uint64, error)
	stop  func(r memory.Remote) (uint64, error)
	next  int64
	value embeddedPair
}

var hashes = layout.New("unordered_map",
	layout.Candidate[hashLayout, *UnorderedMap]{Toolchain: MSVC, Verify: verifyMSVCHash, Open: newUnorderedMap},
	layout.Candidate[hashLayout, *UnorderedMap]{Toolchain: LibStdCpp, Verify: verifyLibStdCppHash, Open: newUnorderedMap},
	layout.Candidate[hashLayout, *UnorderedMap]{Toolchain: LibCpp, Verify: verifyLibCppHash, Open: newUnorderedMap},
)

func nullStop(memory.Remote) (uint64, error) {
	return 0, nil
}

// verifyMSVCHash reuses the list candidates: the MSVC table keeps every
// element in an internal std::list and buckets only index into it.
func verifyMSVCHash(t typeinfo.Type) (hashLayout, error) {
	list, err := typeinfo.Lookup(t, "_List")
	if err != nil {
		return hashLayout{}, err
	}
	m, err := lists.Select(list.Type)
	if err != nil {
		return hashLayout{}, err
	}
	if m.Toolchain != MSVC {
		return hashLayout{}, errors.Newf("_List is a %s list", m.Toolchain)
	}
	facts := m.Facts
	pair, err := newEmbeddedPair(facts.value, facts.elem)
	if err != nil {
		return hashLayout{}, err
	}
	size := facts.size
	size.offset += list.Offset
	sentinel := func(r memory.Remote) (uint64, error) {
		return facts.sentinel(r.At(list.Type, r.Address+uint64(list.Offset)))
	}
	return hashLayout{
		size: size,
		first: func(r memory.Remote) (uint64, error) {
			s, err := sentinel(r)
			if err != nil {
				return 0, err
			}
			return r.Process.ReadPointer(s + uint64(facts.next))
		},
		stop:  sentinel,
		next:  facts.next,
		value: pair,
	}, nil
}

func verifyLibStdCppHash(t typeinfo.Type) (hashLayout, error) {
	table, err := typeinfo.Lookup(t, "_M_h")
	if err != nil {
		return hashLayout{}, err
	}
	before, err := typeinfo.Lookup(t, "_M_h", "_M_before_begin")
	if err != nil {
		return hashLayout{}, err
	}
	next, err := lookupPointer(before.Type, path("_M_nxt"))
	if err != nil {
		return hashLayout{}, err
	}
	size, err := lookupInt(t, path("_M_h", "_M_element_count"))
	if err != nil {
		return hashLayout{}, err
	}
	// _Hashtable<Key, Value, ...>: the value follows the link base.
	valueType, err := typeinfo.TypeArg(table.Type, 1)
	if err != nil {
		return hashLayout{}, err
	}
	pair, err := newEmbeddedPair(typeinfo.AlignUp(before.Type.Size(), typeinfo.Align(valueType)), valueType)
	if err != nil {
		return hashLayout{}, err
	}
	head := before.Offset + next.offset
	return hashLayout{
		size: size,
		first: func(r memory.Remote) (uint64, error) {
			return r.Process.ReadPointer(r.Address + uint64(head))
		},
		stop:  nullStop,
		next:  next.offset,
		value: pair,
	}, nil
}

func verifyLibCppHash(t typeinfo.Type) (hashLayout, error) {
	table, err := typeinfo.Lookup(t, "__table_")
	if err != nil {
		return hashLayout{}, err
	}
	before, err := typeinfo.LookupAny(table.Type, path("__p1_", "__value_"), path("__first_node_"))
	if err != nil {
		return hashLayout{}, err
	}
	next, err := lookupPointer(before.Type, path("__next_"))
	if err != nil {
		return hashLayout{}, err
	}
	size, err := lookupInt(table.Type, path("__p2_", "__value_"), path("__size_"))
	if err != nil {
		return hashLayout{}, err
	}
	// __hash_table<__hash_value_type<Key, T>, ...>; nodes hold the link,
	// the cached hash, then the value.
	valueType, err := typeinfo.TypeArg(table.Type, 0)
	if err != nil {
		return hashLayout{}, err
	}
	cc, err := typeinfo.LookupAny(valueType, path("__cc_"), path("__cc"))
	if err != nil {
		return hashLayout{}, err
	}
	pair, err := newEmbeddedPair(typeinfo.AlignUp(2*next.width, typeinfo.Align(valueType))+cc.Offset, cc.Type)
	if err != nil {
		return hashLayout{}, err
	}
	head := table.Offset + before.Offset + next.offset
	size.offset += table.Offset
	return hashLayout{
		size: size,
		first: func(r memory.Remote) (uint64, error) {
			return r.Process.ReadPointer(r.Address + uint64(head))
		},
		stop:  nullStop,
		next:  next.offset,
		value: pair,
	}, nil
}

// UnorderedMap is a view over a std::unordered_map. Entries come out in
// chain order, which is neither insertion nor key order.
type UnorderedMap struct {
	r     memory.Remote
	facts hashLayout
}

func OpenUnorderedMap(r memory.Remote) (*UnorderedMap, error) {
	return hashes.Open(r)
}

func newUnorderedMap(r memory.Remote, facts hashLayout) *UnorderedMap {
	return &UnorderedMap{r: r, facts: facts}
}

func (m *UnorderedMap) Len() (int, error) {
	return m.facts.size.count(m.r.Process, m.r.Address)
}

func (m *UnorderedMap) All() iter.Seq2[*Pair, error] {
	return func(yield func(*Pair, error) bool) {
		p := m.r.Process
		n, err := m.Len()
		if err != nil {
			yield(nil, err)
			return
		}
		stop, err := m.facts.stop(m.r)
		if err != nil {
			yield(nil, err)
			return
		}
		node, err := m.facts.first(m.r)
		seen := 0
		for ; err == nil && node != 0 && node != stop; node, err = p.ReadPointer(node + uint64(m.facts.next)) {
			if seen == n {
				yield(nil, errors.Wrapf(errors.ErrCorrupt, "chain has more than %d nodes", n))
				return
			}
			seen++
			if !yield(m.facts.value.at(m.r, node), nil) {
				return
			}
		}
		if err != nil {
			yield(nil, err)
		}
	}
}

func (m *UnorderedMap) Keys() iter.Seq2[memory.Remote, error] {
	return project(m.All(), (*Pair).First)
}

func (m *UnorderedMap) Values() iter.Seq2[memory.Remote, error] {
	return project(m.All(), (*Pair).Second)
}

// Find scans the chain; the target's hash function is not available.
func (m *UnorderedMap) Find(key KeyMatcher) (*Pair, error) {
	return find(m.All(), key)
}

func (m *UnorderedMap) Get(key KeyMatcher) (memory.Remote, error) {
	e, err := m.Find(key)
	if err != nil {
		return memory.Remote{}, err
	}
	return e.Second(), nil
}

func (m *UnorderedMap) ContainsKey(key KeyMatcher) (bool, error) {
	return contains(m.All(), key)
}
