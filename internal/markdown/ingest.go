package markdown

import (
	"context"

	"github.com/google/uuid"
)

// CreateFn creates a node with the given id, node_type, content, and
// optional properties under containerID (the caller's top-level container);
// callers bind this to a node.Service.CreateNode call.
type CreateFn func(ctx context.Context, id, nodeType, content, containerID string, properties map[string]any) error

// MoveFn reparents id to the end of newParent's children; callers bind this
// to a node.Service.MoveNode call.
type MoveFn func(ctx context.Context, id, newParent string) error

// Ingest walks elements depth-first, minting an id per Element via create
// and chaining parent/child edges via move, the same CreateNode-then-
// MoveNode sequencing both the MCP dispatcher and the import CLI command
// use, factored out once so the two stay in lockstep. It
// returns every created id in creation order, even if a later element
// fails, so a caller can decide whether to leave a partial import in place
// or account for it.
func Ingest(ctx context.Context, elements []*Element, containerID string, create CreateFn, move MoveFn) ([]string, error) {
	var ids []string

	var walk func(el *Element, parentID string) error
	walk = func(el *Element, parentID string) error {
		id := uuid.NewString()
		props := map[string]any{}
		if el.Level > 0 {
			props["level"] = el.Level
		}
		if el.Language != "" {
			props["language"] = el.Language
		}
		if err := create(ctx, id, el.NodeType, el.Content, containerID, props); err != nil {
			return err
		}
		ids = append(ids, id)

		effectiveParent := parentID
		if effectiveParent == "" {
			effectiveParent = containerID
		}
		if effectiveParent != "" {
			if err := move(ctx, id, effectiveParent); err != nil {
				return err
			}
		}
		for _, child := range el.Children {
			if err := walk(child, id); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range elements {
		if err := walk(root, ""); err != nil {
			return ids, err
		}
	}
	return ids, nil
}
