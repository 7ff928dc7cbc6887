package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/nodespace/internal/eventbus"
	"github.com/kittclouds/nodespace/internal/node"
	"github.com/kittclouds/nodespace/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := eventbus.New(eventbus.WithHistoryCap(16))
	svc := node.NewService(store, bus)
	return New(svc, bus, nil)
}

func call(t *testing.T, s *Server, method string, params any) Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		require.NoError(t, err)
		raw = b
	}
	req := Request{JSONRPC: "2.0", ID: 1, Method: method, Params: raw}
	return s.handle(context.Background(), req)
}

func TestCreateGetUpdateDeleteNode(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, "create_node", nodeParams{ID: "root", NodeType: "container", Content: "root"})
	require.Nil(t, resp.Error)

	resp = call(t, s, "get_node", getNodeParams{ID: "root"})
	require.Nil(t, resp.Error)

	resp = call(t, s, "update_node", updateNodeParams{ID: "root", ExpectedVersion: 1, Content: strPtr("updated")})
	require.Nil(t, resp.Error)

	resp = call(t, s, "delete_node", deleteNodeParams{ID: "root"})
	require.Nil(t, resp.Error)

	resp = call(t, s, "get_node", getNodeParams{ID: "root"})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeNotFound, resp.Error.Code)
}

func TestQueryNodesByNodeType(t *testing.T) {
	s := newTestServer(t)
	require.Nil(t, call(t, s, "create_node", nodeParams{ID: "a", NodeType: "task", Content: "x"}).Error)
	require.Nil(t, call(t, s, "create_node", nodeParams{ID: "b", NodeType: "note", Content: "y"}).Error)

	resp := call(t, s, "query_nodes", queryNodesParams{NodeType: "task"})
	require.Nil(t, resp.Error)
	results, ok := resp.Result.([]*node.Node)
	require.True(t, ok)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].ID)
}

func TestMarkdownIngestAndRenderRoundtrip(t *testing.T) {
	s := newTestServer(t)
	require.Nil(t, call(t, s, "create_node", nodeParams{ID: "doc", NodeType: "container"}).Error)

	md := "# A\n- b1\n  - b2\n# C\n"
	resp := call(t, s, "create_nodes_from_markdown", createFromMarkdownParams{Markdown: md, ContainerNodeID: "doc"})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	ids, ok := result["created_ids"].([]string)
	require.True(t, ok)
	require.NotEmpty(t, ids)

	resp = call(t, s, "render_markdown", renderMarkdownParams{RootID: "doc"})
	require.Nil(t, resp.Error)
	rendered, ok := resp.Result.(map[string]string)
	require.True(t, ok)
	require.Contains(t, rendered["markdown"], "# A")
	require.Contains(t, rendered["markdown"], "# C")
}

func TestRecentEvents(t *testing.T) {
	s := newTestServer(t)
	require.Nil(t, call(t, s, "create_node", nodeParams{ID: "a", NodeType: "note", Content: "x"}).Error)

	resp := call(t, s, "debug_recent_events", recentEventsParams{Limit: 10})
	require.Nil(t, resp.Error)
	events, ok := resp.Result.([]recentEvent)
	require.True(t, ok)
	require.NotEmpty(t, events)
}

func TestServeUnknownMethodAndParseError(t *testing.T) {
	s := newTestServer(t)
	var out bytes.Buffer
	in := strings.NewReader("not json\n" + `{"jsonrpc":"2.0","id":1,"method":"nope"}` + "\n")
	require.NoError(t, s.Serve(in, &out))

	scanner := bufio.NewScanner(&out)
	require.True(t, scanner.Scan())
	var first Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &first))
	require.Equal(t, codeParseError, first.Error.Code)

	require.True(t, scanner.Scan())
	var second Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &second))
	require.Equal(t, codeMethodNotFound, second.Error.Code)
}

func strPtr(s string) *string { return &s }
