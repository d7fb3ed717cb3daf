// Package dwarfhelper builds type descriptors from the DWARF debug
// information of an ELF binary.
package dwarfhelper

import (
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"go.uber.org/zap"

	"stdview/errors"
	"stdview/typeinfo"
)

var ErrTypeNotFound = errors.New("type not found")

// DwarfInfo indexes the type entries of one binary. Descriptors are built on
// first use and cached, so asking for the same name twice returns the same
// descriptor. A DwarfInfo is safe for concurrent use.
type DwarfInfo struct {
	elfFile *elf.File
	ptrSize int
	order   binary.ByteOrder
	log     *zap.Logger

	offset2entry map[dwarf.Offset]*dwarf.Entry
	// children holds the members, bases, template parameters and
	// subranges of each aggregate and array entry.
	children map[dwarf.Offset][]*dwarf.Entry
	// qualified is the scoped name of every named type entry; names maps
	// such a name back to its first complete definition.
	qualified map[dwarf.Offset]string
	names     map[string]dwarf.Offset

	mu    sync.Mutex
	types map[dwarf.Offset]*Type
	void  *Type
}

func NewDwarfInfo(input string) (*DwarfInfo, error) {
	elfFile, err := elf.Open(input)
	if err != nil {
		return nil, err
	}
	data, err := loadDWARF(elfFile)
	if err != nil {
		elfFile.Close()
		return nil, errors.Wrapf(err, "%s", input)
	}
	ptrSize := 8
	if elfFile.Class == elf.ELFCLASS32 {
		ptrSize = 4
	}
	info, err := newDwarfInfo(data.Reader(), ptrSize, elfFile.ByteOrder)
	if err != nil {
		elfFile.Close()
		return nil, errors.Wrapf(err, "%s", input)
	}
	info.elfFile = elfFile
	return info, nil
}

func newDwarfInfo(r entryReader, ptrSize int, order binary.ByteOrder) (*DwarfInfo, error) {
	d := &DwarfInfo{
		ptrSize:      ptrSize,
		order:        order,
		log:          zap.L().Named("dwarf"),
		offset2entry: make(map[dwarf.Offset]*dwarf.Entry),
		children:     make(map[dwarf.Offset][]*dwarf.Entry),
		qualified:    make(map[dwarf.Offset]string),
		names:        make(map[string]dwarf.Offset),
		types:        make(map[dwarf.Offset]*Type),
	}
	d.void = &Type{info: d, name: "void", kind: typeinfo.Basic}
	if err := d.index(r); err != nil {
		return nil, err
	}
	d.log.Debug("indexed debug info",
		zap.Int("entries", len(d.offset2entry)),
		zap.Int("names", len(d.names)))
	return d, nil
}

// loadDWARF reads the debug sections of f. Compressed sections, both the
// .zdebug_ and the SHF_COMPRESSED kind, are inflated on the way.
func loadDWARF(f *elf.File) (*dwarf.Data, error) {
	dat := map[string][]byte{"abbrev": nil, "info": nil, "str": nil, "line": nil, "ranges": nil}
	for name := range dat {
		b, err := godwarf.GetDebugSectionElf(f, name)
		if err != nil {
			if name == "abbrev" || name == "info" {
				return nil, errors.Wrapf(err, "no .debug_%s", name)
			}
			continue
		}
		dat[name] = b
	}
	d, err := dwarf.New(dat["abbrev"], nil, nil, dat["info"], dat["line"], nil, dat["ranges"], dat["str"])
	if err != nil {
		return nil, err
	}
	// DWARF 5 moved strings, addresses and ranges into sections of their
	// own.
	for _, name := range []string{"addr", "line_str", "str_offsets", "rnglists", "loclists"} {
		b, err := godwarf.GetDebugSectionElf(f, name)
		if err != nil {
			continue
		}
		if err := d.AddSection(".debug_"+name, b); err != nil {
			return nil, errors.Wrapf(err, ".debug_%s", name)
		}
	}
	for i, s := range f.Sections {
		if s.Name != ".debug_types" {
			continue
		}
		b, err := s.Data()
		if err != nil {
			return nil, err
		}
		if err := d.AddTypes(fmt.Sprintf("types-%d", i), b); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *DwarfInfo) Close() error {
	if d.elfFile == nil {
		return nil
	}
	return d.elfFile.Close()
}

func (d *DwarfInfo) PointerSize() int {
	return d.ptrSize
}

func (d *DwarfInfo) ByteOrder() binary.ByteOrder {
	return d.order
}

// ELF returns the binary the information was read from, nil when it was
// built from a bare entry stream.
func (d *DwarfInfo) ELF() *elf.File {
	return d.elfFile
}

// Type returns the descriptor of a fully qualified type or typedef name,
// e.g. "std::vector<int, std::allocator<int> >".
func (d *DwarfInfo) Type(name string) (typeinfo.Type, error) {
	name = strings.TrimSpace(name)
	d.mu.Lock()
	defer d.mu.Unlock()
	off, ok := d.names[name]
	if !ok {
		return nil, errors.Wrapf(ErrTypeNotFound, "%q", name)
	}
	t, err := d.typeAt(off)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// TypeNames lists every indexed type and typedef name in sorted order.
func (d *DwarfInfo) TypeNames() []string {
	names := make([]string, 0, len(d.names))
	for name := range d.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *DwarfInfo) getEntryByOffset(offset dwarf.Offset) (*dwarf.Entry, error) {
	entry, ok := d.offset2entry[offset]
	if !ok {
		return nil, errors.Newf("offset %#x not found", offset)
	}
	return entry, nil
}
