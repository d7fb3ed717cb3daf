package stl

import (
	"iter"

	"stdview/errors"
	"stdview/layout"
	"stdview/memory"
	"stdview/typeinfo"
)

type vectorLayout struct {
	first    int64
	last     int64
	end      int64
	elem     typeinfo.Type
	elemSize int64
}

var vectors = layout.New("vector",
	layout.Candidate[vectorLayout, *Vector]{
		Toolchain: MSVC,
		Verify: verifyVector(
			paths{path("_Mypair", "_Myval2", "_Myfirst")},
			paths{path("_Mypair", "_Myval2", "_Mylast")},
			paths{path("_Mypair", "_Myval2", "_Myend")}),
		Open: newVector,
	},
	layout.Candidate[vectorLayout, *Vector]{
		Toolchain: LibStdCpp,
		Verify: verifyVector(
			paths{path("_M_impl", "_M_start")},
			paths{path("_M_impl", "_M_finish")},
			paths{path("_M_impl", "_M_end_of_storage")}),
		Open: newVector,
	},
	layout.Candidate[vectorLayout, *Vector]{
		Toolchain: LibCpp,
		Verify: verifyVector(
			paths{path("__begin_")},
			paths{path("__end_")},
			paths{path("__end_cap_", "__value_"), path("__cap_")}),
		Open: newVector,
	},
)

func verifyVector(first, last, end paths) func(typeinfo.Type) (vectorLayout, error) {
	return func(t typeinfo.Type) (vectorLayout, error) {
		f, err := lookupPointer(t, first...)
		if err != nil {
			return vectorLayout{}, err
		}
		l, err := lookupPointer(t, last...)
		if err != nil {
			return vectorLayout{}, err
		}
		e, err := lookupPointer(t, end...)
		if err != nil {
			return vectorLayout{}, err
		}
		if f.elem.Size() <= 0 {
			return vectorLayout{}, errors.Newf("element type %s has no size", f.elem.Name())
		}
		return vectorLayout{
			first:    f.offset,
			last:     l.offset,
			end:      e.offset,
			elem:     f.elem,
			elemSize: f.elem.Size(),
		}, nil
	}
}

// Vector is a view over a std::vector.
type Vector struct {
	r     memory.Remote
	facts vectorLayout
}

func OpenVector(r memory.Remote) (*Vector, error) {
	return vectors.Open(r)
}

func newVector(r memory.Remote, facts vectorLayout) *Vector {
	return &Vector{r: r, facts: facts}
}

func (v *Vector) ElementType() typeinfo.Type {
	return v.facts.elem
}

func (v *Vector) pointers() (first, last, end uint64, err error) {
	p, base := v.r.Process, v.r.Address
	if first, err = p.ReadPointer(base + uint64(v.facts.first)); err != nil {
		return
	}
	if last, err = p.ReadPointer(base + uint64(v.facts.last)); err != nil {
		return
	}
	end, err = p.ReadPointer(base + uint64(v.facts.end))
	return
}

// span returns how many whole elements fit between two addresses, zero when
// hi is not above lo.
func (v *Vector) span(lo, hi uint64) (int, error) {
	if hi <= lo {
		return 0, nil
	}
	return toInt((hi - lo) / uint64(v.facts.elemSize))
}

// Len is the number of constructed elements.
func (v *Vector) Len() (int, error) {
	first, last, _, err := v.pointers()
	if err != nil {
		return 0, err
	}
	return v.span(first, last)
}

// Cap is the number of elements the current allocation can hold.
func (v *Vector) Cap() (int, error) {
	first, _, end, err := v.pointers()
	if err != nil {
		return 0, err
	}
	return v.span(first, end)
}

// At returns element i. The bound is the capacity, not the length: slots
// reserved but not yet constructed can be read.
func (v *Vector) At(i int) (memory.Remote, error) {
	first, _, end, err := v.pointers()
	if err != nil {
		return memory.Remote{}, err
	}
	capacity, err := v.span(first, end)
	if err != nil {
		return memory.Remote{}, err
	}
	if i < 0 || i >= capacity {
		return memory.Remote{}, errors.OutOfRange(i, capacity)
	}
	return v.element(first, i), nil
}

func (v *Vector) element(first uint64, i int) memory.Remote {
	return v.r.At(v.facts.elem, first+uint64(i)*uint64(v.facts.elemSize))
}

// All yields the constructed elements in order.
func (v *Vector) All() iter.Seq2[memory.Remote, error] {
	return func(yield func(memory.Remote, error) bool) {
		first, last, _, err := v.pointers()
		if err != nil {
			yield(memory.Remote{}, err)
			return
		}
		n, err := v.span(first, last)
		if err != nil {
			yield(memory.Remote{}, err)
			return
		}
		for i := 0; i < n; i++ {
			if !yield(v.element(first, i), nil) {
				return
			}
		}
	}
}

// Bytes reads the constructed elements of a vector of single-byte elements
// with one memory read.
func (v *Vector) Bytes() ([]byte, error) {
	if v.facts.elemSize != 1 {
		return nil, errors.Newf("element type %s is %d bytes wide", v.facts.elem.Name(), v.facts.elemSize)
	}
	first, last, _, err := v.pointers()
	if err != nil {
		return nil, err
	}
	n, err := v.span(first, last)
	if err != nil {
		return nil, err
	}
	return v.r.Process.ReadBytes(first, n)
}
