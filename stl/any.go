package stl

import (
	"strings"

	"stdview/errors"
	"stdview/layout"
	"stdview/memory"
	"stdview/typeinfo"
)

// Representation is how a std::any stores its value.
type Representation int

const (
	// Trivial values are stored inline and copied bytewise.
	Trivial Representation = iota
	// Big values live in a separate heap allocation.
	Big
	// Small values are stored inline but need their own copy/destroy.
	Small
	// Empty means the any holds no value.
	Empty
)

func (r Representation) String() string {
	switch r {
	case Trivial:
		return "trivial"
	case Big:
		return "big"
	case Small:
		return "small"
	case Empty:
		return "empty"
	}
	return "unknown"
}

const (
	// msvcRepMask selects the representation bits of _TypeData; the
	// complement selects the type_info pointer.
	msvcRepMask = 3

	rttiDescriptorSuffix = " `RTTI Type Descriptor'"
)

// anyState is one decoded reading of an any's metadata.
type anyState struct {
	rep      Representation
	payload  uint64
	typeName func() (string, error)
}

type anyLayout struct {
	decode func(r memory.Remote) (anyState, error)
}

var anys = layout.New("any",
	layout.Candidate[anyLayout, *Any]{Toolchain: MSVC, Verify: verifyMSVCAny, Open: newAny},
	layout.Candidate[anyLayout, *Any]{Toolchain: LibStdCpp, Verify: verifyLibStdCppAny, Open: newAny},
)

func verifyMSVCAny(t typeinfo.Type) (anyLayout, error) {
	tag, err := lookupInt(t, path("_Storage", "_TypeData"))
	if err != nil {
		return anyLayout{}, err
	}
	trivial, err := typeinfo.Lookup(t, "_Storage", "_TrivialData")
	if err != nil {
		return anyLayout{}, err
	}
	small, err := typeinfo.Lookup(t, "_Storage", "_SmallStorage", "_Data")
	if err != nil {
		return anyLayout{}, err
	}
	big, err := lookupPointer(t, path("_Storage", "_BigStorage", "_Ptr"))
	if err != nil {
		return anyLayout{}, err
	}
	return anyLayout{
		decode: func(r memory.Remote) (anyState, error) {
			p := r.Process
			word, err := tag.uint(p, r.Address)
			if err != nil {
				return anyState{}, err
			}
			if word == 0 {
				return anyState{rep: Empty}, nil
			}
			st := anyState{
				rep: Representation(word & msvcRepMask),
				typeName: func() (string, error) {
					name, err := p.SymbolName(word &^ msvcRepMask)
					if err != nil {
						return "", err
					}
					return strings.TrimSuffix(name, rttiDescriptorSuffix), nil
				},
			}
			switch st.rep {
			case Trivial:
				st.payload = r.Address + uint64(trivial.Offset)
			case Small:
				st.payload = r.Address + uint64(small.Offset)
			case Big:
				if st.payload, err = big.read(p, r.Address); err != nil {
					return anyState{}, err
				}
			default:
				return anyState{}, errors.Wrapf(errors.ErrCorrupt, "any representation %d", word&msvcRepMask)
			}
			return st, nil
		},
	}, nil
}

const (
	gccInternalManager = "std::any::_Manager_internal<"
	gccExternalManager = "std::any::_Manager_external<"
	gccManagerSuffix   = ">::_S_manage"
)

// verifyLibStdCppAny reads the representation from the name of the manager
// function: values that fit the buffer use _Manager_internal, the rest
// _Manager_external with a heap pointer.
func verifyLibStdCppAny(t typeinfo.Type) (anyLayout, error) {
	manager, err := typeinfo.Lookup(t, "_M_manager")
	if err != nil {
		return anyLayout{}, err
	}
	if manager.Type == nil || manager.Type.Kind() != typeinfo.Pointer {
		return anyLayout{}, errors.New("_M_manager is not a function pointer")
	}
	buffer, err := typeinfo.Lookup(t, "_M_storage", "_M_buffer")
	if err != nil {
		return anyLayout{}, err
	}
	heap, err := lookupPointer(t, path("_M_storage", "_M_ptr"))
	if err != nil {
		return anyLayout{}, err
	}
	return anyLayout{
		decode: func(r memory.Remote) (anyState, error) {
			p := r.Process
			fn, err := p.ReadPointer(r.Address + uint64(manager.Offset))
			if err != nil {
				return anyState{}, err
			}
			if fn == 0 {
				return anyState{rep: Empty}, nil
			}
			symbol, err := p.SymbolName(fn)
			if err != nil {
				return anyState{}, err
			}
			var st anyState
			var held string
			switch {
			case strings.HasPrefix(symbol, gccInternalManager):
				st.rep = Small
				st.payload = r.Address + uint64(buffer.Offset)
				held = strings.TrimPrefix(symbol, gccInternalManager)
			case strings.HasPrefix(symbol, gccExternalManager):
				st.rep = Big
				if st.payload, err = heap.read(p, r.Address); err != nil {
					return anyState{}, err
				}
				held = strings.TrimPrefix(symbol, gccExternalManager)
			default:
				return anyState{}, errors.Newf("unrecognized any manager %q", symbol)
			}
			if i := strings.LastIndex(held, gccManagerSuffix); i >= 0 {
				held = held[:i]
			}
			st.typeName = func() (string, error) { return held, nil }
			return st, nil
		},
	}, nil
}

// Any is a view over a std::any.
type Any struct {
	r     memory.Remote
	facts anyLayout
}

func OpenAny(r memory.Remote) (*Any, error) {
	return anys.Open(r)
}

func newAny(r memory.Remote, facts anyLayout) *Any {
	return &Any{r: r, facts: facts}
}

func (a *Any) HasValue() (bool, error) {
	st, err := a.facts.decode(a.r)
	return err == nil && st.rep != Empty, err
}

func (a *Any) Representation() (Representation, error) {
	st, err := a.facts.decode(a.r)
	if err != nil {
		return Empty, err
	}
	return st.rep, nil
}

// TypeName is the dynamic type of the held value as the symbol table names
// its type information.
func (a *Any) TypeName() (string, error) {
	st, err := a.facts.decode(a.r)
	if err != nil {
		return "", err
	}
	if st.rep == Empty {
		return "", errors.ErrNullPointer
	}
	return st.typeName()
}

// ValueAddress is where the held value lives, inline or on the heap.
func (a *Any) ValueAddress() (uint64, error) {
	st, err := a.facts.decode(a.r)
	if err != nil {
		return 0, err
	}
	if st.rep == Empty {
		return 0, errors.ErrNullPointer
	}
	return st.payload, nil
}

// Value returns the held value viewed as t. The any itself carries no
// descriptor for it; resolve TypeName with a symbol provider to get one.
func (a *Any) Value(t typeinfo.Type) (memory.Remote, error) {
	addr, err := a.ValueAddress()
	if err != nil {
		return memory.Remote{}, err
	}
	return a.r.At(t, addr), nil
}
