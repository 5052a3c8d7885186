package indexaccum

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccumulator_AppendAndDrainPreservesOrder(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	entries := []Entry{
		{HashKey: "h1", Size: 100, Data: []byte("child-hashes-1")},
		{HashKey: "h2", Size: 200, Data: []byte("child-hashes-2-longer-payload")},
		{HashKey: "h3", Size: 0, Data: nil},
	}
	for _, e := range entries {
		require.NoError(t, a.Append(e))
	}
	require.Equal(t, 3, a.Len())

	require.NoError(t, a.Seal())

	var got []Entry
	require.NoError(t, a.Entries(func(e Entry) error {
		got = append(got, e)
		return nil
	}))

	require.Len(t, got, 3)
	for i, e := range entries {
		require.Equal(t, e.HashKey, got[i].HashKey)
		require.Equal(t, e.Size, got[i].Size)
		require.Equal(t, e.Data, got[i].Data)
	}
}

func TestAccumulator_EmptyDrainsNothing(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, a.Seal())

	var count int
	require.NoError(t, a.Entries(func(Entry) error {
		count++
		return nil
	}))
	require.Equal(t, 0, count)
}

func TestAccumulator_DiscardRemovesSpillFile(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, a.Append(Entry{HashKey: "h1", Size: 1, Data: []byte("x")}))

	name := a.file.Name()
	_, statErr := os.Stat(name)
	require.NoError(t, statErr)

	require.NoError(t, a.Discard())

	_, statErr = os.Stat(name)
	require.True(t, os.IsNotExist(statErr))
}
