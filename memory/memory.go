// Package memory reads bytes out of a target process. The target is seen
// only through an Accessor; this package adds pointer size, byte order and
// the typed read helpers the container readers are built on.
package memory

import (
	"encoding/binary"
	"math"
	"unsafe"

	"golang.org/x/exp/constraints"

	"stdview/errors"
)

var (
	ErrAddressNotMapped = errors.New("address not mapped")
	ErrNoSymbol         = errors.New("no symbol at address")
	ErrNoSymbolizer     = errors.New("process has no symbol resolver")
)

// Accessor reads len(buf) bytes at addr from the target. A failed or short
// read is an error; stdview never retries it.
type Accessor interface {
	ReadMemory(addr uint64, buf []byte) error
}

// Symbolizer resolves the name of the symbol that starts at addr.
type Symbolizer interface {
	SymbolAt(addr uint64) (string, error)
}

type Process struct {
	mem     Accessor
	syms    Symbolizer
	ptrSize int
	order   binary.ByteOrder
}

type Option func(*Process)

func WithSymbols(s Symbolizer) Option {
	return func(p *Process) { p.syms = s }
}

func WithPointerSize(n int) Option {
	return func(p *Process) { p.ptrSize = n }
}

func WithByteOrder(o binary.ByteOrder) Option {
	return func(p *Process) { p.order = o }
}

// NewProcess defaults to a 64-bit little endian target.
func NewProcess(mem Accessor, opts ...Option) *Process {
	p := &Process{mem: mem, ptrSize: 8, order: binary.LittleEndian}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Process) PointerSize() int            { return p.ptrSize }
func (p *Process) ByteOrder() binary.ByteOrder { return p.order }

func (p *Process) ReadBytes(addr uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if err := p.mem.ReadMemory(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadUint reads an unsigned integer of 1, 2, 4 or 8 bytes.
func (p *Process) ReadUint(addr uint64, size int) (uint64, error) {
	b, err := p.ReadBytes(addr, size)
	if err != nil {
		return 0, err
	}
	return p.decodeUint(b)
}

// ReadInt reads a sign-extended integer of 1, 2, 4 or 8 bytes.
func (p *Process) ReadInt(addr uint64, size int) (int64, error) {
	u, err := p.ReadUint(addr, size)
	if err != nil {
		return 0, err
	}
	shift := uint(64 - 8*size)
	return int64(u<<shift) >> shift, nil
}

func (p *Process) ReadPointer(addr uint64) (uint64, error) {
	return p.ReadUint(addr, p.ptrSize)
}

func (p *Process) SymbolName(addr uint64) (string, error) {
	if p.syms == nil {
		return "", ErrNoSymbolizer
	}
	return p.syms.SymbolAt(addr)
}

func (p *Process) decodeUint(b []byte) (uint64, error) {
	switch len(b) {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(p.order.Uint16(b)), nil
	case 4:
		return uint64(p.order.Uint32(b)), nil
	case 8:
		return p.order.Uint64(b), nil
	}
	return 0, errors.Newf("unsupported integer width %d", len(b))
}

// Read decodes a fixed-size number of type T at addr.
func Read[T constraints.Integer | constraints.Float](p *Process, addr uint64) (T, error) {
	var v T
	size := int(unsafe.Sizeof(v))
	u, err := p.ReadUint(addr, size)
	if err != nil {
		return v, err
	}
	switch ptr := any(&v).(type) {
	case *float32:
		*ptr = math.Float32frombits(uint32(u))
	case *float64:
		*ptr = math.Float64frombits(u)
	default:
		v = T(u)
	}
	return v, nil
}
