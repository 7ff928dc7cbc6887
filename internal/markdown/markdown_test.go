package markdown

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeadingHierarchy(t *testing.T) {
	src := []byte("# A\n- b1\n  - b2\n# C\n")

	els := Parse(src)
	require.Len(t, els, 2)

	a := els[0]
	require.Equal(t, "header", a.NodeType)
	require.Equal(t, 1, a.Level)
	require.Equal(t, "A", a.Content)
	require.Len(t, a.Children, 1)

	list := a.Children[0]
	require.Equal(t, "unordered-list", list.NodeType)
	require.Len(t, list.Children, 1)

	b1 := list.Children[0]
	require.Equal(t, "list-item", b1.NodeType)
	require.Equal(t, "b1", b1.Content)
	require.Len(t, b1.Children, 1)

	nested := b1.Children[0]
	require.Equal(t, "unordered-list", nested.NodeType)
	require.Len(t, nested.Children, 1)
	require.Equal(t, "b2", nested.Children[0].Content)

	c := els[1]
	require.Equal(t, "header", c.NodeType)
	require.Equal(t, "C", c.Content)
	require.Empty(t, c.Children)
}

func TestParseSubheadingNestsUnderParent(t *testing.T) {
	src := []byte("# A\n## B\ntext under b\n# C\n")
	els := Parse(src)
	require.Len(t, els, 2)

	a := els[0]
	require.Len(t, a.Children, 1)
	b := a.Children[0]
	require.Equal(t, "header", b.NodeType)
	require.Equal(t, 2, b.Level)
	require.Len(t, b.Children, 1)
	require.Equal(t, "text", b.Children[0].NodeType)
	require.Equal(t, "text under b", b.Children[0].Content)
}

func TestParseCodeAndQuoteBlocks(t *testing.T) {
	src := []byte("```go\nfmt.Println(1)\n```\n\n> quoted line\n")
	els := Parse(src)
	require.Len(t, els, 2)
	require.Equal(t, "code-block", els[0].NodeType)
	require.Equal(t, "go", els[0].Language)
	require.Equal(t, "fmt.Println(1)", els[0].Content)
	require.Equal(t, "quote-block", els[1].NodeType)
	require.Equal(t, "quoted line", els[1].Content)
}

// Markdown -> tree -> markdown must reproduce the same tree structure.
func TestRoundtripPreservesStructure(t *testing.T) {
	src := []byte("# A\n- b1\n  - b2\n# C\n")
	first := Parse(src)
	rendered := Render(first)
	second := Parse([]byte(rendered))
	require.Equal(t, first, second)
}

func TestParseNestedListScenario(t *testing.T) {
	src := []byte("# A\n- b1\n  - b2\n# C\n")
	tree := Parse(src)
	require.Len(t, tree, 2)
	require.Equal(t, "A", tree[0].Content)
	require.Equal(t, "C", tree[1].Content)
	require.Equal(t, "b1", tree[0].Children[0].Children[0].Content)
	require.Equal(t, "b2", tree[0].Children[0].Children[0].Children[0].Children[0].Content)
}
