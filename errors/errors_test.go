package errors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutOfRangeKeepsKind(t *testing.T) {
	err := OutOfRange(4, 4)
	require.True(t, Is(err, ErrOutOfRange))
	require.False(t, Is(err, ErrKeyNotFound))
	require.Contains(t, err.Error(), "index 4, bound 4")
}

func TestWrappedKindsStayDistinct(t *testing.T) {
	err := Wrap(ErrUnsupportedLayout, "std::vector<int>")
	require.True(t, Is(err, ErrUnsupportedLayout))
	require.True(t, IsAny(err, ErrDanglingAccess, ErrUnsupportedLayout))
	require.False(t, Is(err, ErrCorrupt))
}
