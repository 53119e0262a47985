package util

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSampleCoversWholePopulation(t *testing.T) {
	out, err := Sample(5, 5)
	require.NoError(t, err)
	sort.Ints(out)
	require.Equal(t, []int{0, 1, 2, 3, 4}, out)
}

func TestSampleTooFewCandidates(t *testing.T) {
	_, err := Sample(2, 3)
	require.Error(t, err)
}

func TestSamplePartialIsUnique(t *testing.T) {
	out, err := Sample(10, 4)
	require.NoError(t, err)
	require.Len(t, out, 4)
	seen := map[int]bool{}
	for _, v := range out {
		require.False(t, seen[v], "duplicate index %d", v)
		seen[v] = true
	}
}
