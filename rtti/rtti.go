// Package rtti resolves addresses in an ELF image to demangled symbol
// names. The container readers use it to recover the dynamic type of
// shared_ptr control blocks and any managers.
package rtti

import (
	"debug/elf"
	"sort"
	"strings"

	"github.com/ianlancetaylor/demangle"
	"go.uber.org/zap"

	"stdview/errors"
	"stdview/memory"
)

type Symbol struct {
	Address uint64
	Name    string
}

// Symbols is an address to name index of one loaded image.
type Symbols struct {
	bias   uint64
	byAddr map[uint64]string
}

// ReadSymbols indexes the static and dynamic symbol tables of f. bias is
// the load address of the image for position independent executables.
func ReadSymbols(f *elf.File, bias uint64) (*Symbols, error) {
	static, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, errors.Wrap(err, "read symbol table")
	}
	dynamic, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, errors.Wrap(err, "read dynamic symbol table")
	}
	s := newSymbols(append(static, dynamic...), bias)
	zap.L().Named("rtti").Debug("indexed symbols",
		zap.Int("static", len(static)),
		zap.Int("dynamic", len(dynamic)),
		zap.Int("kept", len(s.byAddr)))
	return s, nil
}

func newSymbols(syms []elf.Symbol, bias uint64) *Symbols {
	s := &Symbols{bias: bias, byAddr: make(map[uint64]string, len(syms))}
	for _, sym := range syms {
		if sym.Value == 0 || sym.Name == "" {
			continue
		}
		switch elf.ST_TYPE(sym.Info) {
		case elf.STT_OBJECT, elf.STT_FUNC:
		default:
			continue
		}
		// the static table wins over the dynamic one for the same address
		if _, ok := s.byAddr[sym.Value]; ok {
			continue
		}
		s.byAddr[sym.Value] = demangle.Filter(sym.Name)
	}
	return s
}

// SymbolAt returns the symbol starting exactly at addr.
func (s *Symbols) SymbolAt(addr uint64) (string, error) {
	name, ok := s.byAddr[addr-s.bias]
	if !ok {
		return "", errors.Wrapf(memory.ErrNoSymbol, "%#x", addr)
	}
	return name, nil
}

// IsRTTI reports whether a demangled name is type information or a
// virtual table, in either the Itanium or the MSVC spelling.
func IsRTTI(name string) bool {
	return strings.HasPrefix(name, "vtable for ") ||
		strings.HasPrefix(name, "typeinfo for ") ||
		strings.HasPrefix(name, "typeinfo name for ") ||
		strings.Contains(name, "RTTI") ||
		strings.HasSuffix(name, "::`vftable'")
}

// RTTI lists the type information and vtable symbols ordered by address,
// relocated by the bias.
func (s *Symbols) RTTI() []Symbol {
	var out []Symbol
	for addr, name := range s.byAddr {
		if IsRTTI(name) {
			out = append(out, Symbol{Address: addr + s.bias, Name: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
