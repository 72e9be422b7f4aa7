package udrone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDroneSet(t *testing.T) {
	s := newDroneSet("d1", "d2", "d3")
	require.Equal(t, 3, s.Len())
	require.True(t, s.Has("d2"))

	s.Remove("d2")
	require.False(t, s.Has("d2"))
	require.Equal(t, 2, s.Len())

	cp := s.Copy()
	cp.Remove("d1")
	require.True(t, s.Has("d1"), "copy must be independent of the original")

	s.Add("d4")
	slice := s.Slice()
	require.ElementsMatch(t, []string{"d1", "d3", "d4"}, slice)
}
