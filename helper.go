package main

import (
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"stdview/errors"
	"stdview/memory"
	"stdview/stl"
	"stdview/typeinfo"
	"stdview/utils"
)

// typeResolver finds a descriptor by name; the DWARF index is one.
type typeResolver interface {
	Type(name string) (typeinfo.Type, error)
}

// printer writes a value and everything it contains as an indented tree.
type printer struct {
	out         io.Writer
	types       typeResolver
	maxDepth    int
	maxElements int
}

// print writes r. An error opening r itself is returned; errors further
// down are written inline so one bad element does not hide the rest.
func (p *printer) print(r memory.Remote) error {
	return p.node(r, r.TypeName(), 0)
}

func (p *printer) line(depth int, format string, args ...any) {
	fmt.Fprintf(p.out, "%s%s\n", strings.Repeat("  ", depth), fmt.Sprintf(format, args...))
}

func (p *printer) child(r memory.Remote, label string, depth int) {
	if err := p.node(r, label, depth); err != nil {
		p.line(depth, "%s: <%v>", label, err)
	}
}

func (p *printer) node(r memory.Remote, label string, depth int) error {
	switch utils.ContainerOf(r.TypeName()) {
	case utils.Vector:
		v, err := stl.OpenVector(r)
		if err != nil {
			return err
		}
		n, err := v.Len()
		if err != nil {
			return err
		}
		c, err := v.Cap()
		if err != nil {
			return err
		}
		p.line(depth, "%s: len=%d cap=%d", label, n, c)
		p.elements(v.All(), depth+1)
	case utils.Array:
		a, err := stl.OpenArray(r)
		if err != nil {
			return err
		}
		p.line(depth, "%s: len=%d", label, a.Len())
		p.elements(a.All(), depth+1)
	case utils.List:
		l, err := stl.OpenList(r)
		if err != nil {
			return err
		}
		n, err := l.Len()
		if err != nil {
			return err
		}
		p.line(depth, "%s: len=%d", label, n)
		p.elements(l.All(), depth+1)
	case utils.Pair:
		pair, err := stl.OpenPair(r)
		if err != nil {
			return err
		}
		p.line(depth, "%s:", label)
		p.pair(pair, depth+1)
	case utils.Map:
		m, err := stl.OpenMap(r)
		if err != nil {
			return err
		}
		n, err := m.Len()
		if err != nil {
			return err
		}
		p.line(depth, "%s: len=%d", label, n)
		p.entries(m.All(), depth+1)
	case utils.UnorderedMap:
		m, err := stl.OpenUnorderedMap(r)
		if err != nil {
			return err
		}
		n, err := m.Len()
		if err != nil {
			return err
		}
		p.line(depth, "%s: len=%d", label, n)
		p.entries(m.All(), depth+1)
	case utils.SharedPtr:
		s, err := stl.OpenSharedPtr(r)
		if err != nil {
			return err
		}
		empty, err := s.IsEmpty()
		if err != nil {
			return err
		}
		if empty {
			p.line(depth, "%s: empty", label)
			return nil
		}
		p.line(depth, "%s: %s", label, p.counts(s.SharedCount, s.WeakCount, s.IsCreatedWithMakeShared))
		if e, err := s.Element(); err == nil {
			p.nested(e, "*", depth+1)
		}
	case utils.WeakPtr:
		w, err := stl.OpenWeakPtr(r)
		if err != nil {
			return err
		}
		empty, err := w.IsEmpty()
		if err != nil {
			return err
		}
		if empty {
			p.line(depth, "%s: expired", label)
			return nil
		}
		p.line(depth, "%s: %s", label, p.counts(w.SharedCount, w.WeakCount, w.IsCreatedWithMakeShared))
		if e, err := w.Element(); err == nil {
			p.nested(e, "*", depth+1)
		}
	case utils.Any:
		return p.any(r, label, depth)
	case utils.String:
		s, err := stl.OpenString(r)
		if err != nil {
			return err
		}
		text, err := s.String()
		if err != nil {
			return err
		}
		p.line(depth, "%s: %s", label, strconv.Quote(text))
	default:
		return p.plain(r, label, depth)
	}
	return nil
}

// nested prints a child unless the depth limit is reached.
func (p *printer) nested(r memory.Remote, label string, depth int) {
	if depth > p.maxDepth {
		p.line(depth, "%s: ...", label)
		return
	}
	p.child(r, label, depth)
}

func (p *printer) elements(all iter.Seq2[memory.Remote, error], depth int) {
	i := 0
	for e, err := range all {
		if err != nil {
			p.line(depth, "<%v>", err)
			return
		}
		if i == p.maxElements {
			p.line(depth, "...")
			return
		}
		p.nested(e, fmt.Sprintf("[%d]", i), depth)
		i++
	}
}

func (p *printer) entries(all iter.Seq2[*stl.Pair, error], depth int) {
	i := 0
	for e, err := range all {
		if err != nil {
			p.line(depth, "<%v>", err)
			return
		}
		if i == p.maxElements {
			p.line(depth, "...")
			return
		}
		p.line(depth, "[%d]:", i)
		p.pair(e, depth+1)
		i++
	}
}

func (p *printer) pair(pair *stl.Pair, depth int) {
	p.nested(pair.First(), "first", depth)
	p.nested(pair.Second(), "second", depth)
}

func (p *printer) counts(uses, weaks func() (int64, error), embedded func() (bool, error)) string {
	u, err := uses()
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	w, err := weaks()
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	s := fmt.Sprintf("use_count=%d weak_count=%d", u, w)
	if e, err := embedded(); err == nil {
		s += fmt.Sprintf(" make_shared=%t", e)
	}
	return s
}

func (p *printer) any(r memory.Remote, label string, depth int) error {
	a, err := stl.OpenAny(r)
	if err != nil {
		return err
	}
	rep, err := a.Representation()
	if err != nil {
		return err
	}
	if rep == stl.Empty {
		p.line(depth, "%s: empty", label)
		return nil
	}
	name, err := a.TypeName()
	if err != nil {
		p.line(depth, "%s: %s <%v>", label, rep, err)
		return nil
	}
	p.line(depth, "%s: %s %s", label, rep, name)
	if p.types == nil {
		return nil
	}
	t, err := p.types.Type(dynamicTypeName(name))
	if err != nil {
		return nil
	}
	v, err := a.Value(t)
	if err != nil {
		return err
	}
	p.nested(v, "value", depth+1)
	return nil
}

// dynamicTypeName drops the class-key MSVC puts in front of RTTI names.
func dynamicTypeName(name string) string {
	for _, key := range []string{"class ", "struct ", "union ", "enum "} {
		name = strings.TrimPrefix(name, key)
	}
	return name
}

// plain prints anything that is not a standard container.
func (p *printer) plain(r memory.Remote, label string, depth int) error {
	if r.Type == nil {
		return errors.New("no type")
	}
	switch r.Type.Kind() {
	case typeinfo.Basic:
		s, err := scalar(r)
		if err != nil {
			return err
		}
		p.line(depth, "%s: %s", label, s)
	case typeinfo.Enum:
		v, err := r.Int()
		if err != nil {
			return err
		}
		p.line(depth, "%s: %s(%d)", label, utils.IntegerTypeName(r.Type.Size(), true), v)
	case typeinfo.Pointer, typeinfo.Func:
		addr, err := r.Process.ReadPointer(r.Address)
		if err != nil {
			return err
		}
		p.line(depth, "%s: %#x", label, addr)
	case typeinfo.Array:
		elem := r.Type.Elem()
		if elem == nil {
			return errors.Newf("%s has no element type", r.TypeName())
		}
		p.line(depth, "%s: len=%d", label, r.Type.Len())
		for i := int64(0); i < r.Type.Len(); i++ {
			if int(i) == p.maxElements {
				p.line(depth+1, "...")
				break
			}
			p.nested(r.At(elem, r.Address+uint64(i*elem.Size())), fmt.Sprintf("[%d]", i), depth+1)
		}
	default:
		p.line(depth, "%s: %s @ %#x", label, r.TypeName(), r.Address)
	}
	return nil
}

func scalar(r memory.Remote) (string, error) {
	size := r.Type.Size()
	switch utils.ScalarOf(r.TypeName()) {
	case utils.Float:
		switch size {
		case 4:
			f, err := memory.Read[float32](r.Process, r.Address)
			return strconv.FormatFloat(float64(f), 'g', -1, 32), err
		case 8:
			f, err := memory.Read[float64](r.Process, r.Address)
			return strconv.FormatFloat(f, 'g', -1, 64), err
		}
	case utils.Bool:
		u, err := r.Uint()
		return strconv.FormatBool(u != 0), err
	case utils.Char:
		u, err := r.Uint()
		return fmt.Sprintf("%d %q", u, rune(u)), err
	case utils.Unsigned:
		u, err := r.Uint()
		return strconv.FormatUint(u, 10), err
	}
	switch size {
	case 1, 2, 4, 8:
		v, err := r.Int()
		return strconv.FormatInt(v, 10), err
	}
	b, err := r.Bytes()
	return fmt.Sprintf("% x", b), err
}
