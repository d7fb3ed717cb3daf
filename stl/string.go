package stl

import (
	"encoding/binary"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"

	"stdview/errors"
	"stdview/layout"
	"stdview/memory"
	"stdview/typeinfo"
)

// maxStringChars bounds what a single read will fetch; a longer stored
// length is taken as a sign of garbage rather than a real string.
const maxStringChars = 64 << 20

type stringState struct {
	length   uint64
	capacity uint64
	data     uint64
	inline   bool
}

type stringLayout struct {
	char     typeinfo.Type
	charSize int64
	read     func(r memory.Remote) (stringState, error)
}

var strs = layout.New("string",
	layout.Candidate[stringLayout, *String]{Toolchain: MSVC, Verify: verifyMSVCString, Open: newString},
	layout.Candidate[stringLayout, *String]{Toolchain: LibStdCpp, Verify: verifyLibStdCppString, Open: newString},
	layout.Candidate[stringLayout, *String]{Toolchain: LibCpp, Verify: verifyLibCppString, Open: newString},
)

func charType(t typeinfo.Type, fallback typeinfo.Type) (typeinfo.Type, int64, error) {
	char, err := typeinfo.TypeArg(t, 0)
	if err != nil {
		char = fallback
	}
	if char == nil {
		return nil, 0, errors.Newf("%s: unknown character type", t.Name())
	}
	switch sz := char.Size(); sz {
	case 1, 2, 4:
		return char, sz, nil
	default:
		return nil, 0, errors.Newf("%s: unsupported character width %d", t.Name(), sz)
	}
}

// verifyMSVCString: short strings live in _Bx._Buf, long ones behind
// _Bx._Ptr. The reserved capacity picks the storage: a heap block stays in
// use after the string shrinks, until capacity drops below the buffer.
func verifyMSVCString(t typeinfo.Type) (stringLayout, error) {
	size, err := lookupInt(t, path("_Mypair", "_Myval2", "_Mysize"))
	if err != nil {
		return stringLayout{}, err
	}
	res, err := lookupInt(t, path("_Mypair", "_Myval2", "_Myres"))
	if err != nil {
		return stringLayout{}, err
	}
	buf, err := typeinfo.Lookup(t, "_Mypair", "_Myval2", "_Bx", "_Buf")
	if err != nil {
		return stringLayout{}, err
	}
	ptr, err := lookupPointer(t, path("_Mypair", "_Myval2", "_Bx", "_Ptr"))
	if err != nil {
		return stringLayout{}, err
	}
	char, charSize, err := charType(t, buf.Type.Elem())
	if err != nil {
		return stringLayout{}, err
	}
	inlineChars := uint64(buf.Type.Size() / charSize)
	return stringLayout{
		char:     char,
		charSize: charSize,
		read: func(r memory.Remote) (stringState, error) {
			p := r.Process
			length, err := size.uint(p, r.Address)
			if err != nil {
				return stringState{}, err
			}
			capacity, err := res.uint(p, r.Address)
			if err != nil {
				return stringState{}, err
			}
			st := stringState{length: length, capacity: capacity}
			if capacity < inlineChars {
				st.inline = true
				st.data = r.Address + uint64(buf.Offset)
				return st, nil
			}
			st.data, err = ptr.read(p, r.Address)
			return st, err
		},
	}, nil
}

// verifyLibStdCppString: _M_p always points at the characters, either the
// local buffer inside the object or a heap block.
func verifyLibStdCppString(t typeinfo.Type) (stringLayout, error) {
	ptr, err := lookupPointer(t, path("_M_dataplus", "_M_p"))
	if err != nil {
		return stringLayout{}, err
	}
	size, err := lookupInt(t, path("_M_string_length"))
	if err != nil {
		return stringLayout{}, err
	}
	local, err := typeinfo.Lookup(t, "_M_local_buf")
	if err != nil {
		return stringLayout{}, err
	}
	allocated, err := lookupInt(t, path("_M_allocated_capacity"))
	if err != nil {
		return stringLayout{}, err
	}
	char, charSize, err := charType(t, ptr.elem)
	if err != nil {
		return stringLayout{}, err
	}
	localChars := uint64(local.Type.Size() / charSize)
	return stringLayout{
		char:     char,
		charSize: charSize,
		read: func(r memory.Remote) (stringState, error) {
			p := r.Process
			data, err := ptr.read(p, r.Address)
			if err != nil {
				return stringState{}, err
			}
			length, err := size.uint(p, r.Address)
			if err != nil {
				return stringState{}, err
			}
			st := stringState{length: length, data: data}
			if data == r.Address+uint64(local.Offset) {
				st.inline = true
				st.capacity = localChars - 1
				return st, nil
			}
			st.capacity, err = allocated.uint(p, r.Address)
			return st, err
		},
	}, nil
}

// verifyLibCppString: the low bit of the first byte says whether the long
// form is active. The short form keeps size<<1 in that byte.
func verifyLibCppString(t typeinfo.Type) (stringLayout, error) {
	rep, err := typeinfo.LookupAny(t, path("__r_", "__value_"), path("__rep_"))
	if err != nil {
		return stringLayout{}, err
	}
	long, err := typeinfo.Lookup(rep.Type, "__l")
	if err != nil {
		return stringLayout{}, err
	}
	longSize, err := lookupInt(long.Type, path("__size_"))
	if err != nil {
		return stringLayout{}, err
	}
	longData, err := lookupPointer(long.Type, path("__data_"))
	if err != nil {
		return stringLayout{}, err
	}
	short, err := typeinfo.Lookup(rep.Type, "__s")
	if err != nil {
		return stringLayout{}, err
	}
	shortData, err := typeinfo.Lookup(short.Type, "__data_")
	if err != nil {
		return stringLayout{}, err
	}
	char, charSize, err := charType(t, longData.elem)
	if err != nil {
		return stringLayout{}, err
	}
	longAt := uint64(rep.Offset + long.Offset)
	shortAt := uint64(rep.Offset + short.Offset)
	shortChars := uint64(shortData.Type.Size() / charSize)
	wordSize := int(longData.width)
	return stringLayout{
		char:     char,
		charSize: charSize,
		read: func(r memory.Remote) (stringState, error) {
			p := r.Process
			flag, err := p.ReadUint(r.Address+shortAt, 1)
			if err != nil {
				return stringState{}, err
			}
			if flag&1 == 0 {
				return stringState{
					length:   flag >> 1,
					capacity: shortChars - 1,
					data:     r.Address + shortAt + uint64(shortData.Offset),
					inline:   true,
				}, nil
			}
			capWord, err := p.ReadUint(r.Address+longAt, wordSize)
			if err != nil {
				return stringState{}, err
			}
			length, err := longSize.uint(p, r.Address+longAt)
			if err != nil {
				return stringState{}, err
			}
			data, err := longData.read(p, r.Address+longAt)
			if err != nil {
				return stringState{}, err
			}
			capacity := capWord &^ 1
			if capacity > 0 {
				capacity--
			}
			return stringState{length: length, capacity: capacity, data: data}, nil
		},
	}, nil
}

// String is a view over a std::basic_string of 1, 2 or 4 byte characters.
type String struct {
	r     memory.Remote
	facts stringLayout
}

func OpenString(r memory.Remote) (*String, error) {
	return strs.Open(r)
}

func newString(r memory.Remote, facts stringLayout) *String {
	return &String{r: r, facts: facts}
}

func (s *String) CharType() typeinfo.Type {
	return s.facts.char
}

// Len is the length in characters.
func (s *String) Len() (int, error) {
	st, err := s.facts.read(s.r)
	if err != nil {
		return 0, err
	}
	return toInt(st.length)
}

// Cap is the number of characters the current storage holds without
// reallocating.
func (s *String) Cap() (int, error) {
	st, err := s.facts.read(s.r)
	if err != nil {
		return 0, err
	}
	return toInt(st.capacity)
}

// IsInline reports whether the characters are stored inside the object.
func (s *String) IsInline() (bool, error) {
	st, err := s.facts.read(s.r)
	return st.inline, err
}

// Raw returns the characters as stored, without the terminator.
func (s *String) Raw() ([]byte, error) {
	st, err := s.facts.read(s.r)
	if err != nil {
		return nil, err
	}
	if st.length > maxStringChars {
		return nil, errors.Wrapf(errors.ErrCorrupt, "string length %d", st.length)
	}
	n, err := toInt(st.length * uint64(s.facts.charSize))
	if err != nil {
		return nil, err
	}
	return s.r.Process.ReadBytes(st.data, n)
}

// String decodes the characters as UTF-8, UTF-16 or UTF-32 by width.
func (s *String) String() (string, error) {
	raw, err := s.Raw()
	if err != nil {
		return "", err
	}
	if s.facts.charSize == 1 {
		return string(raw), nil
	}
	out, err := wideDecoder(s.facts.charSize, s.r.Process.ByteOrder()).Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func wideDecoder(charSize int64, order binary.ByteOrder) *encoding.Decoder {
	big := order == binary.BigEndian
	if charSize == 2 {
		e := unicode.LittleEndian
		if big {
			e = unicode.BigEndian
		}
		return unicode.UTF16(e, unicode.IgnoreBOM).NewDecoder()
	}
	e := utf32.LittleEndian
	if big {
		e = utf32.BigEndian
	}
	return utf32.UTF32(e, utf32.IgnoreBOM).NewDecoder()
}
