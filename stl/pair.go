package stl

import (
	"stdview/layout"
	"stdview/memory"
	"stdview/typeinfo"
)

type pairLayout struct {
	first  typeinfo.Field
	second typeinfo.Field
}

// Every supported toolchain names the members of std::pair the same way.
var pairs = layout.New("pair",
	layout.Candidate[pairLayout, *Pair]{
		Toolchain: Common,
		Verify: func(t typeinfo.Type) (pairLayout, error) {
			first, err := typeinfo.Lookup(t, "first")
			if err != nil {
				return pairLayout{}, err
			}
			second, err := typeinfo.Lookup(t, "second")
			if err != nil {
				return pairLayout{}, err
			}
			return pairLayout{first: first, second: second}, nil
		},
		Open: newPair,
	},
)

// Pair is a view over a std::pair. Map readers hand out one per entry.
type Pair struct {
	r     memory.Remote
	facts pairLayout
}

func OpenPair(r memory.Remote) (*Pair, error) {
	return pairs.Open(r)
}

func newPair(r memory.Remote, facts pairLayout) *Pair {
	return &Pair{r: r, facts: facts}
}

func (p *Pair) Address() uint64 {
	return p.r.Address
}

func (p *Pair) First() memory.Remote {
	return p.r.At(p.facts.first.Type, p.r.Address+uint64(p.facts.first.Offset))
}

func (p *Pair) Second() memory.Remote {
	return p.r.At(p.facts.second.Type, p.r.Address+uint64(p.facts.second.Offset))
}

// embeddedPair is the value slot of a map node, verified once as a pair.
type embeddedPair struct {
	offset int64
	typ    typeinfo.Type
	facts  pairLayout
}

func newEmbeddedPair(offset int64, t typeinfo.Type) (embeddedPair, error) {
	m, err := pairs.Select(t)
	if err != nil {
		return embeddedPair{}, err
	}
	return embeddedPair{offset: offset, typ: t, facts: m.Facts}, nil
}

func (e embeddedPair) at(r memory.Remote, node uint64) *Pair {
	return newPair(r.At(e.typ, node+uint64(e.offset)), e.facts)
}
