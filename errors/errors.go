// Package errors provides error handling for stdview.
//
// It re-exports github.com/cockroachdb/errors and defines the error kinds a
// container view can report. Callers test for a kind with errors.Is:
//
//	v, err := stl.OpenVector(remote)
//	if errors.Is(err, errors.ErrUnsupportedLayout) {
//	    // not a vector, or a toolchain we do not know
//	}
//
// Memory read failures are never wrapped in one of these kinds; they reach the
// caller exactly as the memory accessor returned them.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
)

var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
)

var (
	// ErrUnsupportedLayout is returned when no layout candidate verifies
	// against a type. It is raised at open time only.
	ErrUnsupportedLayout = crdb.New("unsupported layout")

	// ErrOutOfRange is returned for an index outside the validated bound.
	ErrOutOfRange = crdb.New("index out of range")

	// ErrKeyNotFound is returned by keyed lookups that matched no entry.
	ErrKeyNotFound = crdb.New("key not found")

	// ErrDanglingAccess is returned when dereferencing a weak pointer whose
	// strong count is zero.
	ErrDanglingAccess = crdb.New("dangling weak pointer access")

	// ErrNullPointer is returned when dereferencing an empty smart pointer.
	ErrNullPointer = crdb.New("null pointer")

	// ErrCorrupt is returned when a walk over target memory yields more
	// entries than the container's stored count.
	ErrCorrupt = crdb.New("container structure is corrupt")
)

// OutOfRange wraps ErrOutOfRange with the offending index and bound.
func OutOfRange(index, bound int) error {
	return crdb.Wrapf(ErrOutOfRange, "index %d, bound %d", index, bound)
}
