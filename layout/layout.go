// Package layout picks, among competing hypotheses about how a container is
// laid out in memory, the one a given type actually matches.
//
// A Candidate describes one toolchain's layout of one container kind. Its
// Verify function inspects only the type descriptor, never target memory,
// so selection is a pure function of the descriptor and is memoized.
package layout

import (
	"sync"

	"go.uber.org/zap"

	"stdview/errors"
	"stdview/memory"
	"stdview/typeinfo"
)

// Candidate is one layout hypothesis. Verify extracts the layout facts F
// from a descriptor or reports the first structural mismatch; Open builds a
// live view V over a remote object using those facts.
type Candidate[F, V any] struct {
	Toolchain string
	Verify    func(t typeinfo.Type) (F, error)
	Open      func(r memory.Remote, facts F) V
}

// Match is a verified candidate together with the facts it extracted.
// Matches are immutable and shared by every view over the same type.
type Match[F, V any] struct {
	Toolchain string
	Facts     F
	open      func(r memory.Remote, facts F) V
}

func (m *Match[F, V]) Open(r memory.Remote) V {
	return m.open(r, m.Facts)
}

type selection[F, V any] struct {
	match *Match[F, V]
	err   error
}

// Selector holds the candidates of one container kind in priority order.
type Selector[F, V any] struct {
	kind       string
	candidates []Candidate[F, V]
	cache      sync.Map
}

func New[F, V any](kind string, candidates ...Candidate[F, V]) *Selector[F, V] {
	return &Selector[F, V]{kind: kind, candidates: candidates}
}

func (s *Selector[F, V]) Kind() string {
	return s.kind
}

func (s *Selector[F, V]) Toolchains() []string {
	names := make([]string, 0, len(s.candidates))
	for _, c := range s.candidates {
		names = append(names, c.Toolchain)
	}
	return names
}

// Select returns the first candidate, in priority order, whose verification
// succeeds for t. Later candidates are not tried. When none succeeds the
// error is ErrUnsupportedLayout with every rejection attached as detail.
func (s *Selector[F, V]) Select(t typeinfo.Type) (*Match[F, V], error) {
	if t == nil {
		return nil, errors.Wrapf(errors.ErrUnsupportedLayout, "%s: no type", s.kind)
	}
	if cached, ok := s.cache.Load(t); ok {
		sel := cached.(*selection[F, V])
		return sel.match, sel.err
	}
	sel := s.selectUncached(t)
	actual, _ := s.cache.LoadOrStore(t, sel)
	sel = actual.(*selection[F, V])
	return sel.match, sel.err
}

func (s *Selector[F, V]) selectUncached(t typeinfo.Type) *selection[F, V] {
	log := zap.L().Named("layout")
	err := errors.Wrapf(errors.ErrUnsupportedLayout, "%s: %s", s.kind, t.Name())
	for i := range s.candidates {
		c := &s.candidates[i]
		facts, verr := c.Verify(t)
		if verr == nil {
			log.Debug("layout selected",
				zap.String("kind", s.kind),
				zap.String("toolchain", c.Toolchain),
				zap.String("type", t.Name()))
			return &selection[F, V]{match: &Match[F, V]{Toolchain: c.Toolchain, Facts: facts, open: c.Open}}
		}
		log.Debug("layout rejected",
			zap.String("kind", s.kind),
			zap.String("toolchain", c.Toolchain),
			zap.String("type", t.Name()),
			zap.Error(verr))
		err = errors.WithDetailf(err, "%s: %v", c.Toolchain, verr)
	}
	return &selection[F, V]{err: err}
}

// Open selects a layout for r.Type and builds a view over r.
func (s *Selector[F, V]) Open(r memory.Remote) (V, error) {
	m, err := s.Select(r.Type)
	if err != nil {
		var zero V
		return zero, err
	}
	return m.Open(r), nil
}

// Toolchain is the name of the candidate Select picks for t.
func (s *Selector[F, V]) Toolchain(t typeinfo.Type) (string, error) {
	m, err := s.Select(t)
	if err != nil {
		return "", err
	}
	return m.Toolchain, nil
}
