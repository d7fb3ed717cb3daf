package memory

import (
	"encoding/binary"

	"stdview/errors"
)

const pageSize = 4096

// Image is a sparse, writable address space held in memory. Pages come into
// existence on first write; reading an untouched page fails with
// ErrAddressNotMapped, the way a real accessor fails on an unmapped address.
type Image struct {
	pages map[uint64][]byte
	order binary.ByteOrder
}

func NewImage() *Image {
	return &Image{pages: make(map[uint64][]byte), order: binary.LittleEndian}
}

func (m *Image) ReadMemory(addr uint64, buf []byte) error {
	for done := 0; done < len(buf); {
		cur := addr + uint64(done)
		page, ok := m.pages[cur/pageSize]
		if !ok {
			return errors.Wrapf(ErrAddressNotMapped, "read at %#x", cur)
		}
		done += copy(buf[done:], page[cur%pageSize:])
	}
	return nil
}

func (m *Image) Write(addr uint64, data []byte) {
	for done := 0; done < len(data); {
		cur := addr + uint64(done)
		page, ok := m.pages[cur/pageSize]
		if !ok {
			page = make([]byte, pageSize)
			m.pages[cur/pageSize] = page
		}
		done += copy(page[cur%pageSize:], data[done:])
	}
}

func (m *Image) PutUint(addr uint64, size int, v uint64) {
	b := make([]byte, 8)
	m.order.PutUint64(b, v)
	m.Write(addr, b[:size])
}

func (m *Image) PutUint8(addr uint64, v uint8)   { m.PutUint(addr, 1, uint64(v)) }
func (m *Image) PutUint16(addr uint64, v uint16) { m.PutUint(addr, 2, uint64(v)) }
func (m *Image) PutUint32(addr uint64, v uint32) { m.PutUint(addr, 4, uint64(v)) }
func (m *Image) PutUint64(addr uint64, v uint64) { m.PutUint(addr, 8, v) }

// SymbolTable maps exact symbol start addresses to names.
type SymbolTable map[uint64]string

func (t SymbolTable) SymbolAt(addr uint64) (string, error) {
	name, ok := t[addr]
	if !ok {
		return "", errors.Wrapf(ErrNoSymbol, "%#x", addr)
	}
	return name, nil
}
