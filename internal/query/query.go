// Package query evaluates structured node queries: a record of optional
// fields resolved by strict priority, with at most one base path taken per
// query. Content searches are tokenized and stopword-filtered before
// hitting storage.
package query

import (
	"context"
	"strings"

	"github.com/orsinium-labs/stopwords"

	"github.com/kittclouds/nodespace/internal/node"
)

// Spec is a structured query record. Only one base path is taken, by
// priority: ID, then MentionedBy, then ContentContains (optionally
// narrowed by NodeType), then NodeType alone, then
// IncludeContainersAndTasks alone; an entirely empty Spec returns no rows.
// IncludeContainersAndTasks, when combined with any of the first four
// paths, widens the result with an OR: matches of the base path plus every
// task or root container, even ones the base path's own filter would have
// excluded.
type Spec struct {
	ID                        string
	MentionedBy               string
	ContentContains           string
	NodeType                  string
	IncludeContainersAndTasks bool
}

// Store is the read surface query needs from the node service; kept narrow
// so this package doesn't import storage directly.
type Store interface {
	GetNode(ctx context.Context, id string) (*node.Node, error)
	FindByMentionedBy(ctx context.Context, targetID string, widen bool) ([]*node.Node, error)
	FindByContent(ctx context.Context, tokens []string, nodeType string, widen bool) ([]*node.Node, error)
	FindByNodeType(ctx context.Context, nodeType string, widen bool) ([]*node.Node, error)
	FindContainersAndTasks(ctx context.Context) ([]*node.Node, error)
}

var stopwordChecker = stopwords.MustGet("en")

// Tokenize splits content_contains into lowercase, stopword-filtered
// search terms.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if f == "" {
			continue
		}
		if stopwordChecker != nil && stopwordChecker.Contains(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Run evaluates spec against store by the priority order documented on Spec.
func Run(ctx context.Context, store Store, spec Spec) ([]*node.Node, error) {
	widen := spec.IncludeContainersAndTasks

	switch {
	case spec.ID != "":
		n, err := store.GetNode(ctx, spec.ID)
		if err != nil {
			return nil, err
		}
		var out []*node.Node
		if n != nil {
			out = append(out, n)
		}
		// The widening flag combines with the ID path the same way it does
		// with every other path: the direct hit plus every task or root
		// container, deduplicated.
		if widen {
			extra, err := store.FindContainersAndTasks(ctx)
			if err != nil {
				return nil, err
			}
			for _, e := range extra {
				if n != nil && e.ID == n.ID {
					continue
				}
				out = append(out, e)
			}
		}
		return out, nil

	case spec.MentionedBy != "":
		return store.FindByMentionedBy(ctx, spec.MentionedBy, widen)

	case spec.ContentContains != "":
		tokens := Tokenize(spec.ContentContains)
		return store.FindByContent(ctx, tokens, spec.NodeType, widen)

	case spec.NodeType != "":
		return store.FindByNodeType(ctx, spec.NodeType, widen)

	case spec.IncludeContainersAndTasks:
		return store.FindContainersAndTasks(ctx)

	default:
		return nil, nil
	}
}
