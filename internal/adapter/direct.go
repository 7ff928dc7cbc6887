package adapter

import (
	"context"

	"go.uber.org/zap"

	"github.com/kittclouds/nodespace/internal/eventbus"
	"github.com/kittclouds/nodespace/internal/node"
	"github.com/kittclouds/nodespace/internal/query"
	"github.com/kittclouds/nodespace/internal/storage"
)

// Direct is the in-process binding used by the desktop host: it calls
// straight through to *node.Service with no serialization step, as opposed
// to httpadapter's HTTP hop.
type Direct struct {
	store *storage.Store
	svc   *node.Service
	bus   *eventbus.Bus
	log   *zap.Logger
}

// NewDirect builds a Direct bound to an already-constructed service. The
// store reference is kept only so InitializeDatabase can report the path
// the caller opened; schema application itself already happened in
// storage.Open, which this binding does not duplicate. bus backs
// GetRecentEvents and may be nil.
func NewDirect(store *storage.Store, svc *node.Service, bus *eventbus.Bus, log *zap.Logger) *Direct {
	if log == nil {
		log = zap.NewNop()
	}
	return &Direct{store: store, svc: svc, bus: bus, log: log}
}

// InitializeDatabase is a no-op for Direct: the caller already opened the
// store (storage.Open applies the schema) before constructing this binding.
// It exists on the interface because httpadapter's remote caller has no
// other way to trigger first-run schema setup.
func (d *Direct) InitializeDatabase(ctx context.Context, req InitRequest) error {
	return nil
}

func (d *Direct) CreateNode(ctx context.Context, req CreateNodeRequest) (*NodeView, error) {
	n, err := d.svc.CreateNode(ctx, &node.Node{
		ID:              req.ID,
		NodeType:        req.NodeType,
		Content:         req.Content,
		ParentID:        req.ParentID,
		ContainerNodeID: req.ContainerNodeID,
		Properties:      req.Properties,
	})
	if err != nil {
		return nil, err
	}
	return toView(n), nil
}

func (d *Direct) GetNode(ctx context.Context, id string) (*NodeView, error) {
	n, err := d.svc.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return toView(n), nil
}

func (d *Direct) UpdateNode(ctx context.Context, id string, req UpdateNodeRequest) (*NodeView, error) {
	if _, err := d.svc.UpdateNode(ctx, id, req.ExpectedVersion, node.Patch{
		Content: req.Content, Properties: req.Properties,
	}); err != nil {
		return nil, err
	}
	return d.GetNode(ctx, id)
}

func (d *Direct) DeleteNode(ctx context.Context, id string) error {
	return d.svc.DeleteNode(ctx, id)
}

func (d *Direct) GetChildren(ctx context.Context, parentID string) ([]*NodeView, error) {
	children, err := d.svc.GetChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return toViews(children), nil
}

func (d *Direct) QueryNodes(ctx context.Context, q QueryRequest) ([]*NodeView, error) {
	results, err := query.Run(ctx, directQueryStore{d.svc}, query.Spec{
		ID:                        q.ID,
		MentionedBy:               q.MentionedBy,
		ContentContains:           q.ContentContains,
		NodeType:                  q.NodeType,
		IncludeContainersAndTasks: q.IncludeContainersAndTasks,
	})
	if err != nil {
		return nil, err
	}
	return toViews(results), nil
}

func (d *Direct) GetRecentEvents(ctx context.Context, k int) ([]EventView, error) {
	if d.bus == nil {
		return []EventView{}, nil
	}
	events := d.bus.RecentEvents(k)
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		out = append(out, EventView{
			Type:          string(e.Type),
			Namespace:     string(e.Namespace),
			Source:        e.Source,
			TimestampUnix: e.Timestamp.Unix(),
		})
	}
	return out, nil
}

// directQueryStore adapts *node.Service to query.Store, same shape as
// internal/mcp's queryStore; both exist because query.Store is
// intentionally narrow and neither caller wants to import the other.
type directQueryStore struct{ svc *node.Service }

func (q directQueryStore) GetNode(ctx context.Context, id string) (*node.Node, error) {
	return q.svc.GetNode(ctx, id)
}
func (q directQueryStore) FindByMentionedBy(ctx context.Context, targetID string, widen bool) ([]*node.Node, error) {
	return q.svc.FindByMentionedBy(ctx, targetID, widen)
}
func (q directQueryStore) FindByContent(ctx context.Context, tokens []string, nodeType string, widen bool) ([]*node.Node, error) {
	return q.svc.FindByContent(ctx, tokens, nodeType, widen)
}
func (q directQueryStore) FindByNodeType(ctx context.Context, nodeType string, widen bool) ([]*node.Node, error) {
	return q.svc.FindByNodeType(ctx, nodeType, widen)
}
func (q directQueryStore) FindContainersAndTasks(ctx context.Context) ([]*node.Node, error) {
	return q.svc.FindContainersAndTasks(ctx)
}

func toView(n *node.Node) *NodeView {
	if n == nil {
		return nil
	}
	return &NodeView{
		ID:              n.ID,
		NodeType:        n.NodeType,
		Content:         n.Content,
		ParentID:        n.ParentID,
		ContainerNodeID: n.ContainerNodeID,
		Properties:      n.Properties,
		Version:         n.Version,
		CreatedAtUnix:   n.CreatedAt.Unix(),
		ModifiedAtUnix:  n.ModifiedAt.Unix(),
		Mentions:        n.Mentions,
		MentionedBy:     n.MentionedBy,
	}
}

func toViews(nodes []*node.Node) []*NodeView {
	out := make([]*NodeView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toView(n))
	}
	return out
}
