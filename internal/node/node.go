// Package node defines the Node model and hierarchy, and the Service that
// exposes create/get/update/delete/move/reorder/query operations over it.
// Every update is optimistically concurrent: the caller presents the
// version it last observed and the write succeeds only if storage still
// holds that version.
package node

import "time"

// PersistenceState is the in-memory-only lifecycle position of a node.
// It never round-trips to storage.
type PersistenceState string

const (
	Ephemeral PersistenceState = "ephemeral"
	Pending   PersistenceState = "pending"
	Persisted PersistenceState = "persisted"
)

// Node is the unit of content.
type Node struct {
	ID              string
	NodeType        string
	Content         string
	ParentID        string // empty ⇒ no parent edge is created
	ContainerNodeID string // empty ⇒ this node is itself a container/root
	Properties      map[string]any
	Version         int
	CreatedAt       time.Time
	ModifiedAt      time.Time

	Mentions    []string
	MentionedBy []string

	PersistenceState PersistenceState
}

// Clone returns a deep-enough copy safe for a caller to mutate without
// affecting the service's view (the Properties map and slices are copied).
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Properties != nil {
		c.Properties = make(map[string]any, len(n.Properties))
		for k, v := range n.Properties {
			c.Properties[k] = v
		}
	}
	c.Mentions = append([]string(nil), n.Mentions...)
	c.MentionedBy = append([]string(nil), n.MentionedBy...)
	return &c
}

// Patch describes a partial update to a node's mutable fields; a nil pointer
// field means "leave unchanged". Move carries a structural reparent/reorder
// alongside (or instead of) a content/properties change, so a single Patch
// can represent any structural edit.
type Patch struct {
	Content    *string
	Properties map[string]any
	Move       *MovePatch
}

// MovePatch is the structural half of a Patch: where the node should end up
// in the hierarchy.
type MovePatch struct {
	NewParentID string
	Position    Position
}

// Position directs where a moved or newly ordered node lands relative to
// its new siblings.
type Position struct {
	// Kind is one of "first", "last", "before", "after". The zero value
	// ("") is treated as "last".
	Kind string
	// RelativeTo is the sibling id Kind "before"/"after" is relative to.
	RelativeTo string
}

const (
	PositionFirst  = "first"
	PositionLast   = "last"
	PositionBefore = "before"
	PositionAfter  = "after"
)
