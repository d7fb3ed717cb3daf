package stl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stdview/errors"
	"stdview/memory"
	"stdview/typeinfo"
)

func TestPairProjectsBothMembers(t *testing.T) {
	img, proc := target()
	img.PutUint64(0x100, 1)
	img.PutUint64(0x108, 2)

	p, err := OpenPair(memory.Remote{Process: proc, Type: pairOf(longT, longT), Address: 0x100})
	require.NoError(t, err)
	require.Equal(t, uint64(0x100), p.Address())

	first, err := p.First().Int()
	require.NoError(t, err)
	second, err := p.Second().Int()
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, []int64{first, second})
	require.Equal(t, uint64(0x108), p.Second().Address)
}

func TestPairNeedsBothMembers(t *testing.T) {
	_, proc := target()
	half := typeinfo.NewStruct("std::pair<int,int>", 8).With("first", 0, intT)
	_, err := OpenPair(memory.Remote{Process: proc, Type: half})
	require.True(t, errors.Is(err, errors.ErrUnsupportedLayout))
}
