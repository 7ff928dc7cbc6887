package mentions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractFindsWikilinks(t *testing.T) {
	ids := Extract("see [[n1]] and also [[n2|Pretty Title]], then [[n1]] again")
	require.Equal(t, []string{"n1", "n2"}, ids)
}

func TestExtractNoMatches(t *testing.T) {
	require.Nil(t, Extract("plain text with no links"))
}

func TestDiffAddedAndRemoved(t *testing.T) {
	added, removed := Diff("refers to [[a]] and [[b]]", "refers to [[b]] and [[c]]")
	require.ElementsMatch(t, []string{"c"}, added)
	require.ElementsMatch(t, []string{"a"}, removed)
}

func TestDiffNoChange(t *testing.T) {
	added, removed := Diff("[[a]] [[b]]", "[[b]] [[a]]")
	require.Empty(t, added)
	require.Empty(t, removed)
}

func TestIndexKnownLookup(t *testing.T) {
	idx := NewIndex([]string{"n1", "n2", "n3"})
	require.True(t, idx.Known("n1"))
	require.False(t, idx.Known("missing"))
}

func TestIndexScanKnownIDs(t *testing.T) {
	idx := NewIndex([]string{"alpha", "beta"})
	found := idx.ScanKnownIDs("the alpha team met with beta corp")
	require.ElementsMatch(t, []string{"alpha", "beta"}, found)
}

func TestEmptyIndex(t *testing.T) {
	idx := NewIndex(nil)
	require.False(t, idx.Known("anything"))
	require.Nil(t, idx.ScanKnownIDs("anything"))
}
