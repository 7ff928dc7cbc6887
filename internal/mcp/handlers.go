package mcp

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/kittclouds/nodespace/internal/markdown"
	"github.com/kittclouds/nodespace/internal/node"
	"github.com/kittclouds/nodespace/internal/query"
)

// nodeParams is the wire shape of create_node's request body; each field
// maps onto the node.Node field of the same name. create_node responds
// with the created *node.Node, and update_node with updateNodeResult.
type nodeParams struct {
	ID              string         `json:"id"`
	NodeType        string         `json:"node_type"`
	Content         string         `json:"content"`
	ParentID        string         `json:"parent_id,omitempty"`
	ContainerNodeID string         `json:"container_node_id,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
}

func handleCreateNode(ctx context.Context, s *Server, raw json.RawMessage) (any, *RPCError) {
	var p nodeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.ID == "" || p.NodeType == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid params", Data: "id and node_type are required"}
	}
	n := &node.Node{
		ID:              p.ID,
		NodeType:        p.NodeType,
		Content:         p.Content,
		ParentID:        p.ParentID,
		ContainerNodeID: p.ContainerNodeID,
		Properties:      p.Properties,
	}
	created, err := s.svc.CreateNode(ctx, n)
	if err != nil {
		return nil, s.errorToRPC(err)
	}
	return created, nil
}

type getNodeParams struct {
	ID string `json:"id"`
}

func handleGetNode(ctx context.Context, s *Server, raw json.RawMessage) (any, *RPCError) {
	var p getNodeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	n, err := s.svc.GetNode(ctx, p.ID)
	if err != nil {
		return nil, s.errorToRPC(err)
	}
	if n == nil {
		return nil, &RPCError{Code: codeNotFound, Message: "not found", Data: p.ID}
	}
	return n, nil
}

type updateNodeParams struct {
	ID              string          `json:"id"`
	ExpectedVersion int             `json:"expected_version"`
	Content         *string         `json:"content,omitempty"`
	Properties      map[string]any  `json:"properties,omitempty"`
}

type updateNodeResult struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

func handleUpdateNode(ctx context.Context, s *Server, raw json.RawMessage) (any, *RPCError) {
	var p updateNodeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	patch := node.Patch{Content: p.Content, Properties: p.Properties}
	newVersion, err := s.svc.UpdateNode(ctx, p.ID, p.ExpectedVersion, patch)
	if err != nil {
		return nil, s.errorToRPC(err)
	}
	return updateNodeResult{ID: p.ID, Version: newVersion}, nil
}

type deleteNodeParams struct {
	ID string `json:"id"`
}

func handleDeleteNode(ctx context.Context, s *Server, raw json.RawMessage) (any, *RPCError) {
	var p deleteNodeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if err := s.svc.DeleteNode(ctx, p.ID); err != nil {
		return nil, s.errorToRPC(err)
	}
	return map[string]bool{"deleted": true}, nil
}

type queryNodesParams struct {
	ID                        string `json:"id,omitempty"`
	MentionedBy               string `json:"mentioned_by,omitempty"`
	ContentContains           string `json:"content_contains,omitempty"`
	NodeType                  string `json:"node_type,omitempty"`
	IncludeContainersAndTasks bool   `json:"include_containers_and_tasks,omitempty"`
}

// queryStore adapts *node.Service's free-standing query methods (defined in
// internal/node/query.go) to the narrow query.Store interface.
type queryStore struct{ svc *node.Service }

func (q queryStore) GetNode(ctx context.Context, id string) (*node.Node, error) {
	return q.svc.GetNode(ctx, id)
}
func (q queryStore) FindByMentionedBy(ctx context.Context, targetID string, widen bool) ([]*node.Node, error) {
	return q.svc.FindByMentionedBy(ctx, targetID, widen)
}
func (q queryStore) FindByContent(ctx context.Context, tokens []string, nodeType string, widen bool) ([]*node.Node, error) {
	return q.svc.FindByContent(ctx, tokens, nodeType, widen)
}
func (q queryStore) FindByNodeType(ctx context.Context, nodeType string, widen bool) ([]*node.Node, error) {
	return q.svc.FindByNodeType(ctx, nodeType, widen)
}
func (q queryStore) FindContainersAndTasks(ctx context.Context) ([]*node.Node, error) {
	return q.svc.FindContainersAndTasks(ctx)
}

func handleQueryNodes(ctx context.Context, s *Server, raw json.RawMessage) (any, *RPCError) {
	var p queryNodesParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, invalidParams(err)
		}
	}
	spec := query.Spec{
		ID:                        p.ID,
		MentionedBy:               p.MentionedBy,
		ContentContains:           p.ContentContains,
		NodeType:                  p.NodeType,
		IncludeContainersAndTasks: p.IncludeContainersAndTasks,
	}
	results, err := query.Run(ctx, queryStore{s.svc}, spec)
	if err != nil {
		return nil, s.errorToRPC(err)
	}
	if results == nil {
		results = []*node.Node{}
	}
	return results, nil
}

type createFromMarkdownParams struct {
	Markdown        string `json:"markdown"`
	ContainerNodeID string `json:"container_node_id,omitempty"`
}

// handleCreateFromMarkdown implements the markdown ingestion tool: every
// Element becomes a Node whose node_type mirrors the
// Element's NodeType, chained into the hierarchy with MoveNode so the
// existing rank/OCC machinery assigns sibling order instead of a bespoke
// edge-insertion path.
func handleCreateFromMarkdown(ctx context.Context, s *Server, raw json.RawMessage) (any, *RPCError) {
	var p createFromMarkdownParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}

	elements := markdown.Parse([]byte(p.Markdown))

	create := func(ctx context.Context, id, nodeType, content, containerID string, properties map[string]any) error {
		_, err := s.svc.CreateNode(ctx, &node.Node{
			ID: id, NodeType: nodeType, Content: content,
			ContainerNodeID: containerID, Properties: properties,
		})
		return err
	}
	move := func(ctx context.Context, id, newParent string) error {
		_, err := s.svc.MoveNode(ctx, id, newParent, node.Position{Kind: node.PositionLast})
		return err
	}

	ids, err := markdown.Ingest(ctx, elements, p.ContainerNodeID, create, move)
	if err != nil {
		return nil, s.errorToRPC(err)
	}
	return map[string]any{"created_ids": ids}, nil
}

type renderMarkdownParams struct {
	RootID string `json:"root_id"`
}

// handleRenderMarkdown walks the node hierarchy rooted at RootID's children
// back into a markdown document, the export direction of the markdown
// roundtrip.
func handleRenderMarkdown(ctx context.Context, s *Server, raw json.RawMessage) (any, *RPCError) {
	var p renderMarkdownParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}

	var build func(id string) (*markdown.Element, error)
	build = func(id string) (*markdown.Element, error) {
		n, err := s.svc.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, nil
		}
		el := nodeToElement(n)
		children, err := s.svc.GetChildren(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			childEl, err := build(c.ID)
			if err != nil {
				return nil, err
			}
			if childEl != nil {
				el.Children = append(el.Children, childEl)
			}
		}
		return el, nil
	}

	roots, err := s.svc.GetChildren(ctx, p.RootID)
	if err != nil {
		return nil, s.errorToRPC(err)
	}
	var elements []*markdown.Element
	for _, r := range roots {
		el, err := build(r.ID)
		if err != nil {
			return nil, s.errorToRPC(err)
		}
		if el != nil {
			elements = append(elements, el)
		}
	}
	return map[string]string{"markdown": markdown.Render(elements)}, nil
}

// nodeToElement reverses the property conventions handleCreateFromMarkdown
// establishes. Properties decoded off a JSON-stored node arrive as
// float64 for any numeric field (encoding/json's default number kind), so
// level is read tolerantly rather than asserted as int.
func nodeToElement(n *node.Node) *markdown.Element {
	el := &markdown.Element{NodeType: n.NodeType, Content: n.Content}
	if lvl, ok := n.Properties["level"]; ok {
		switch v := lvl.(type) {
		case float64:
			el.Level = int(v)
		case int:
			el.Level = v
		}
	}
	if lang, ok := n.Properties["language"].(string); ok {
		el.Language = lang
	}
	return el
}

type recentEventsParams struct {
	Limit int `json:"limit"`
}

type recentEvent struct {
	Type      string `json:"type"`
	Namespace string `json:"namespace"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp_unix"`
}

// handleRecentEvents backs the event bus diagnostics tool: a read-only
// window onto the bus's capped
// history ring buffer, useful for an MCP client debugging a missed
// subscription without needing its own event-bus wiring.
func handleRecentEvents(ctx context.Context, s *Server, raw json.RawMessage) (any, *RPCError) {
	var p recentEventsParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, invalidParams(err)
		}
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if s.bus == nil {
		return []recentEvent{}, nil
	}
	events := s.bus.RecentEvents(p.Limit)
	out := make([]recentEvent, 0, len(events))
	for _, e := range events {
		out = append(out, recentEvent{
			Type:      string(e.Type),
			Namespace: string(e.Namespace),
			Source:    e.Source,
			Timestamp: e.Timestamp.Unix(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}
