//go:build !linux

package memory

import "stdview/errors"

func OpenPid(pid int) (Accessor, error) {
	return nil, errors.Newf("reading process %d is only supported on linux", pid)
}
