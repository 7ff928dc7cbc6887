// Package markdown implements markdown ingestion and export: parsing a
// document into a forest of elements whose shape mirrors the Node
// hierarchy (heading rank establishes parent/child, list indentation
// establishes parent/child within a section, paragraphs become text
// leaves, fenced code and blockquote syntax map to their own node types),
// plus the inverse render used to verify that a serialize-then-reimport
// pass reproduces the same tree. Parsing is backed by goldmark's
// CommonMark AST rather than a hand-rolled scanner.
package markdown

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Element is one node of the parsed markdown forest. Its NodeType values
// mirror the engine's open node_type set: "header", "text", "code-block",
// "quote-block", "ordered-list", "unordered-list", and "list-item".
type Element struct {
	NodeType string
	Content  string
	Level    int    // heading rank (1 = h1); zero for non-headings
	Language string // fenced code block info string
	Children []*Element
}

// Parse converts a markdown document into a forest of top-level Elements.
// Heading rank nests elements under the nearest preceding heading of a
// strictly lower level; list items nest via goldmark's own block
// structure.
func Parse(source []byte) []*Element {
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var roots []*Element
	var stack []*Element

	appendChild := func(el *Element) {
		if len(stack) == 0 {
			roots = append(roots, el)
			return
		}
		top := stack[len(stack)-1]
		top.Children = append(top.Children, el)
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			el := &Element{NodeType: "header", Level: h.Level, Content: inlineText(n, source)}
			for len(stack) > 0 && stack[len(stack)-1].Level >= h.Level {
				stack = stack[:len(stack)-1]
			}
			appendChild(el)
			stack = append(stack, el)
			continue
		}
		appendChild(blockToElement(n, source))
	}
	return roots
}

// blockToElement converts one non-heading top-level (or blockquote-nested,
// list-item-nested) block node into an Element, recursing into list items
// and nested lists/blockquotes as needed.
func blockToElement(n ast.Node, source []byte) *Element {
	switch t := n.(type) {
	case *ast.FencedCodeBlock:
		return &Element{NodeType: "code-block", Content: linesText(n, source), Language: string(t.Language(source))}
	case *ast.CodeBlock:
		return &Element{NodeType: "code-block", Content: linesText(n, source)}
	case *ast.Blockquote:
		var parts []string
		var children []*Element
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if _, ok := c.(*ast.Paragraph); ok {
				parts = append(parts, inlineText(c, source))
				continue
			}
			children = append(children, blockToElement(c, source))
		}
		return &Element{NodeType: "quote-block", Content: strings.Join(parts, "\n"), Children: children}
	case *ast.List:
		return listToElement(t, source)
	case *ast.ThematicBreak:
		return &Element{NodeType: "text", Content: "---"}
	default:
		return &Element{NodeType: "text", Content: inlineText(n, source)}
	}
}

func listToElement(l *ast.List, source []byte) *Element {
	nodeType := "unordered-list"
	if l.IsOrdered() {
		nodeType = "ordered-list"
	}
	el := &Element{NodeType: nodeType}
	for c := l.FirstChild(); c != nil; c = c.NextSibling() {
		li, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		el.Children = append(el.Children, listItemToElement(li, source))
	}
	return el
}

func listItemToElement(li *ast.ListItem, source []byte) *Element {
	item := &Element{NodeType: "list-item"}
	for c := li.FirstChild(); c != nil; c = c.NextSibling() {
		if nested, ok := c.(*ast.List); ok {
			item.Children = append(item.Children, listToElement(nested, source))
			continue
		}
		if item.Content == "" {
			item.Content = inlineText(c, source)
		}
	}
	return item
}

// inlineText walks an inline subtree and concatenates its literal text,
// collapsing soft/hard line breaks to a single space so paragraph content
// roundtrips as one line (the roundtrip guarantee is structural, not
// byte-exact).
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

// linesText concatenates a block node's raw source lines verbatim, used
// for code blocks where content must preserve exact whitespace.
func linesText(n ast.Node, source []byte) string {
	lines := n.Lines()
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Render serializes a forest of Elements back into a markdown document.
// Render(Parse(x)) need not equal x byte-for-byte, but re-parsing its
// output must reproduce the same tree structure.
func Render(elements []*Element) string {
	var buf bytes.Buffer
	renderSiblings(&buf, elements, 0)
	return strings.TrimRight(buf.String(), "\n") + "\n"
}

func renderSiblings(buf *bytes.Buffer, elements []*Element, indent int) {
	for _, el := range elements {
		renderElement(buf, el, indent)
	}
}

func renderElement(buf *bytes.Buffer, el *Element, indent int) {
	switch el.NodeType {
	case "header":
		level := el.Level
		if level <= 0 {
			level = 1
		}
		fmt.Fprintf(buf, "%s %s\n\n", strings.Repeat("#", level), el.Content)
		renderSiblings(buf, el.Children, indent)
	case "code-block":
		fmt.Fprintf(buf, "```%s\n", el.Language)
		buf.WriteString(el.Content)
		if !strings.HasSuffix(el.Content, "\n") {
			buf.WriteByte('\n')
		}
		buf.WriteString("```\n\n")
	case "quote-block":
		for _, line := range strings.Split(el.Content, "\n") {
			if line == "" {
				continue
			}
			buf.WriteString("> " + line + "\n")
		}
		buf.WriteByte('\n')
		renderSiblings(buf, el.Children, indent)
	case "ordered-list", "unordered-list":
		prefix := strings.Repeat("  ", indent)
		for i, item := range el.Children {
			marker := "-"
			if el.NodeType == "ordered-list" {
				marker = strconv.Itoa(i+1) + "."
			}
			fmt.Fprintf(buf, "%s%s %s\n", prefix, marker, item.Content)
			for _, child := range item.Children {
				renderElement(buf, child, indent+1)
			}
		}
		buf.WriteByte('\n')
	default: // "text" and anything else falls back to a plain paragraph
		buf.WriteString(el.Content + "\n\n")
	}
}
