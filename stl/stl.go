// Package stl reconstructs C++ standard library containers that live in the
// memory of another process.
//
// Each container kind has one Open function taking a memory.Remote (type
// descriptor plus address). Opening selects, by field names and nesting
// alone, which toolchain's layout the type follows (Visual Studio STL,
// libstdc++ or libc++) and returns a view. Opening either succeeds with a
// fully verified view or fails with errors.ErrUnsupportedLayout.
//
// Views never cache decoded values. Every call to Len, At or All reads the
// target again, so two calls separated by target activity may disagree; stop
// the target before reading if that matters. Views are not safe for
// concurrent use; the layout facts behind them are, and are shared.
package stl

import (
	"fortio.org/safecast"

	"stdview/errors"
	"stdview/memory"
	"stdview/typeinfo"
)

const (
	MSVC      = "msvc"
	LibStdCpp = "libstdc++"
	LibCpp    = "libc++"
	Common    = "std"
)

type paths [][]string

func path(names ...string) []string {
	return names
}

// intField is an integer member of a container or node: a size, a count.
type intField struct {
	offset int64
	size   int
}

func newIntField(f typeinfo.Field) (intField, error) {
	if f.Type == nil {
		return intField{}, errors.Newf("field %s has no type", f.Name)
	}
	switch f.Type.Kind() {
	case typeinfo.Basic, typeinfo.Enum:
	default:
		return intField{}, errors.Newf("field %s is a %s, not an integer", f.Name, f.Type.Kind())
	}
	switch sz := f.Type.Size(); sz {
	case 1, 2, 4, 8:
		return intField{offset: f.Offset, size: int(sz)}, nil
	default:
		return intField{}, errors.Newf("field %s has unsupported width %d", f.Name, sz)
	}
}

func lookupInt(t typeinfo.Type, ps ...[]string) (intField, error) {
	f, err := typeinfo.LookupAny(t, ps...)
	if err != nil {
		return intField{}, err
	}
	return newIntField(f)
}

func (f intField) uint(p *memory.Process, base uint64) (uint64, error) {
	return p.ReadUint(base+uint64(f.offset), f.size)
}

func (f intField) int(p *memory.Process, base uint64) (int64, error) {
	return p.ReadInt(base+uint64(f.offset), f.size)
}

// count reads a stored element count and converts it for Go callers.
func (f intField) count(p *memory.Process, base uint64) (int, error) {
	u, err := f.uint(p, base)
	if err != nil {
		return 0, err
	}
	n, err := safecast.Conv[int](u)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCorrupt, "stored count %d", u)
	}
	return n, nil
}

// pointerField is a pointer member; elem is its pointee type and width the
// size of the pointer itself.
type pointerField struct {
	offset int64
	elem   typeinfo.Type
	width  int64
}

func lookupPointer(t typeinfo.Type, ps ...[]string) (pointerField, error) {
	f, err := typeinfo.LookupAny(t, ps...)
	if err != nil {
		return pointerField{}, err
	}
	elem, err := typeinfo.Pointee(f)
	if err != nil {
		return pointerField{}, err
	}
	return pointerField{offset: f.Offset, elem: elem, width: f.Type.Size()}, nil
}

func (f pointerField) read(p *memory.Process, base uint64) (uint64, error) {
	return p.ReadPointer(base + uint64(f.offset))
}

func toInt(u uint64) (int, error) {
	n, err := safecast.Conv[int](u)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCorrupt, "value %d", u)
	}
	return n, nil
}

// Detector answers which toolchain layout a type follows for one container
// kind, without opening anything.
type Detector interface {
	Kind() string
	Toolchains() []string
	Toolchain(t typeinfo.Type) (string, error)
}

var detectors = []Detector{vectors, arrays, pairs, lists, trees, hashes, sharedPtrs, weakPtrs, anys, strs}

// Kinds lists the container kinds in the order Detect knows them.
func Kinds() []string {
	kinds := make([]string, 0, len(detectors))
	for _, d := range detectors {
		kinds = append(kinds, d.Kind())
	}
	return kinds
}

// Detect reports the toolchain whose layout t matches when read as kind,
// e.g. Detect("map", t).
func Detect(kind string, t typeinfo.Type) (string, error) {
	for _, d := range detectors {
		if d.Kind() == kind {
			return d.Toolchain(t)
		}
	}
	return "", errors.Wrapf(errors.ErrUnsupportedLayout, "unknown container kind %q", kind)
}
