package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArraySetGetAllAndClear(t *testing.T) {
	var s ArraySet
	s.Add("a")
	s.Add("b")
	s.Add("a") // duplicate, should not double-count

	require.Equal(t, 2, s.Len())
	items := s.GetAllAndClear()
	require.ElementsMatch(t, []interface{}{"a", "b"}, items)
	require.Equal(t, 0, s.Len())
}

func TestArraySetEmptyAfterClear(t *testing.T) {
	var s ArraySet
	require.Empty(t, s.GetAllAndClear())
	s.Add(1)
	s.GetAllAndClear()
	require.Empty(t, s.GetAllAndClear())
}
