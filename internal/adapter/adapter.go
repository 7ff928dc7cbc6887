// Package adapter defines the backend adapter seam: a narrow interface
// over the Node Service that a transport can sit behind, plus a direct
// in-process binding. Both the direct binding and httpadapter can be
// driven with the identical input set and asserted byte-identical, which
// is what lets tests exercise the core without the host runtime.
package adapter

import "context"

// InitRequest configures InitializeDatabase.
type InitRequest struct {
	Path       string
	MaxWriters int64
}

// Backend is the transport seam. Both the direct binding and httpadapter
// implement it, and both must produce byte-identical results for the same
// inputs. GetRecentEvents is the diagnostics window onto the event bus's
// history ring buffer, exposed through the same seam so a web-mode test
// can inspect emissions without its own bus wiring.
type Backend interface {
	InitializeDatabase(ctx context.Context, req InitRequest) error
	CreateNode(ctx context.Context, n CreateNodeRequest) (*NodeView, error)
	GetNode(ctx context.Context, id string) (*NodeView, error)
	UpdateNode(ctx context.Context, id string, req UpdateNodeRequest) (*NodeView, error)
	DeleteNode(ctx context.Context, id string) error
	GetChildren(ctx context.Context, parentID string) ([]*NodeView, error)
	QueryNodes(ctx context.Context, q QueryRequest) ([]*NodeView, error)
	GetRecentEvents(ctx context.Context, k int) ([]EventView, error)
}

// EventView is the adapter-facing projection of an event bus record.
type EventView struct {
	Type          string `json:"type"`
	Namespace     string `json:"namespace"`
	Source        string `json:"source,omitempty"`
	TimestampUnix int64  `json:"timestamp_unix"`
}

// NodeView is the adapter-facing projection of internal/node.Node: plain
// data, safe to serialize identically whether it crosses a Go function call
// (direct binding) or an HTTP response body (httpadapter).
type NodeView struct {
	ID              string         `json:"id"`
	NodeType        string         `json:"node_type"`
	Content         string         `json:"content"`
	ParentID        string         `json:"parent_id,omitempty"`
	ContainerNodeID string         `json:"container_node_id,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
	Version         int            `json:"version"`
	CreatedAtUnix   int64          `json:"created_at_unix"`
	ModifiedAtUnix  int64          `json:"modified_at_unix"`
	Mentions        []string       `json:"mentions,omitempty"`
	MentionedBy     []string       `json:"mentioned_by,omitempty"`
}

// CreateNodeRequest is the input to CreateNode.
type CreateNodeRequest struct {
	ID              string
	NodeType        string
	Content         string
	ParentID        string
	ContainerNodeID string
	Properties      map[string]any
}

// UpdateNodeRequest is the input to UpdateNode.
type UpdateNodeRequest struct {
	ExpectedVersion int
	Content         *string
	Properties      map[string]any
}

// QueryRequest mirrors internal/query.Spec at the adapter boundary so
// callers on either side of the seam don't import internal/query directly.
type QueryRequest struct {
	ID                        string
	MentionedBy               string
	ContentContains           string
	NodeType                  string
	IncludeContainersAndTasks bool
}
