package stl

import (
	"iter"

	"stdview/errors"
	"stdview/layout"
	"stdview/memory"
	"stdview/typeinfo"
)

type arrayLayout struct {
	elems    int64
	elem     typeinfo.Type
	elemSize int64
	length   int
}

var arrays = layout.New("array",
	layout.Candidate[arrayLayout, *Array]{Toolchain: MSVC, Verify: verifyArray("_Elems"), Open: newArray},
	layout.Candidate[arrayLayout, *Array]{Toolchain: LibStdCpp, Verify: verifyArray("_M_elems"), Open: newArray},
	layout.Candidate[arrayLayout, *Array]{Toolchain: LibCpp, Verify: verifyArray("__elems_"), Open: newArray},
)

// verifyArray takes the element count from the second template argument;
// std::array stores no size at run time.
func verifyArray(buffer string) func(typeinfo.Type) (arrayLayout, error) {
	return func(t typeinfo.Type) (arrayLayout, error) {
		f, err := typeinfo.Lookup(t, buffer)
		if err != nil {
			return arrayLayout{}, err
		}
		elem, err := typeinfo.TypeArg(t, 0)
		if err != nil {
			if f.Type == nil || f.Type.Elem() == nil {
				return arrayLayout{}, err
			}
			elem = f.Type.Elem()
		}
		n, err := typeinfo.ValueArg(t, 1)
		if err != nil {
			return arrayLayout{}, err
		}
		if n < 0 {
			return arrayLayout{}, errors.Newf("negative array length %d", n)
		}
		length, err := toInt(uint64(n))
		if err != nil {
			return arrayLayout{}, err
		}
		if elem.Size() <= 0 && length > 0 {
			return arrayLayout{}, errors.Newf("element type %s has no size", elem.Name())
		}
		return arrayLayout{elems: f.Offset, elem: elem, elemSize: elem.Size(), length: length}, nil
	}
}

// Array is a view over a std::array.
type Array struct {
	r     memory.Remote
	facts arrayLayout
}

func OpenArray(r memory.Remote) (*Array, error) {
	return arrays.Open(r)
}

func newArray(r memory.Remote, facts arrayLayout) *Array {
	return &Array{r: r, facts: facts}
}

func (a *Array) ElementType() typeinfo.Type {
	return a.facts.elem
}

// Len never touches target memory.
func (a *Array) Len() int {
	return a.facts.length
}

func (a *Array) At(i int) (memory.Remote, error) {
	if i < 0 || i >= a.facts.length {
		return memory.Remote{}, errors.OutOfRange(i, a.facts.length)
	}
	return a.element(i), nil
}

func (a *Array) element(i int) memory.Remote {
	addr := a.r.Address + uint64(a.facts.elems) + uint64(i)*uint64(a.facts.elemSize)
	return a.r.At(a.facts.elem, addr)
}

func (a *Array) All() iter.Seq2[memory.Remote, error] {
	return func(yield func(memory.Remote, error) bool) {
		for i := 0; i < a.facts.length; i++ {
			if !yield(a.element(i), nil) {
				return
			}
		}
	}
}
