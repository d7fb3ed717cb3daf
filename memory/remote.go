package memory

import (
	"stdview/errors"
	"stdview/typeinfo"
)

// Remote identifies one object in the target: where it lives and what type
// describes it. It is a plain value; copying it is cheap.
type Remote struct {
	Process *Process
	Type    typeinfo.Type
	Address uint64
}

// At returns a handle for another object in the same process.
func (r Remote) At(t typeinfo.Type, addr uint64) Remote {
	return Remote{Process: r.Process, Type: t, Address: addr}
}

// Field follows a chain of nested members.
func (r Remote) Field(path ...string) (Remote, error) {
	f, err := typeinfo.Lookup(r.Type, path...)
	if err != nil {
		return Remote{}, err
	}
	return r.At(f.Type, r.Address+uint64(f.Offset)), nil
}

// Deref reads the pointer stored at r and returns the object it points to.
func (r Remote) Deref() (Remote, error) {
	if r.Type == nil || r.Type.Kind() != typeinfo.Pointer {
		return Remote{}, errors.Newf("%s is not a pointer", r.TypeName())
	}
	addr, err := r.Process.ReadPointer(r.Address)
	if err != nil {
		return Remote{}, err
	}
	return r.At(r.Type.Elem(), addr), nil
}

// Bytes reads the whole object.
func (r Remote) Bytes() ([]byte, error) {
	if r.Type == nil {
		return nil, errors.New("remote has no type")
	}
	return r.Process.ReadBytes(r.Address, int(r.Type.Size()))
}

func (r Remote) Uint() (uint64, error) {
	return r.Process.ReadUint(r.Address, int(r.Type.Size()))
}

func (r Remote) Int() (int64, error) {
	return r.Process.ReadInt(r.Address, int(r.Type.Size()))
}

func (r Remote) TypeName() string {
	if r.Type == nil {
		return "<untyped>"
	}
	return r.Type.Name()
}
