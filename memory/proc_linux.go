//go:build linux

package memory

import (
	"golang.org/x/sys/unix"

	"stdview/errors"
)

type pidAccessor struct {
	pid int
}

// OpenPid returns an accessor reading the memory of a live process with
// process_vm_readv. The caller is expected to have stopped the target.
func OpenPid(pid int) (Accessor, error) {
	if err := unix.Kill(pid, 0); err != nil {
		return nil, errors.Wrapf(err, "process %d", pid)
	}
	return &pidAccessor{pid: pid}, nil
}

func (a *pidAccessor) ReadMemory(addr uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := unix.ProcessVMReadv(a.pid, local, remote, 0)
	if err != nil {
		return errors.Wrapf(err, "read %d bytes at %#x", len(buf), addr)
	}
	if n != len(buf) {
		return errors.Wrapf(ErrAddressNotMapped, "short read at %#x: %d of %d bytes", addr, n, len(buf))
	}
	return nil
}
