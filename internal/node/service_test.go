package node

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/nodespace/internal/eventbus"
	"github.com/kittclouds/nodespace/internal/nodeerr"
	"github.com/kittclouds/nodespace/internal/storage"
)

func newTestService(t *testing.T) (*Service, *eventbus.Bus) {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New()
	return NewService(st, bus), bus
}

func TestCreateAndGetNode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	n := &Node{ID: "n1", NodeType: "text", Content: "hello"}
	created, err := svc.CreateNode(ctx, n)
	require.NoError(t, err)
	require.Equal(t, 1, created.Version)

	got, err := svc.GetNode(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "hello", got.Content)
	require.Equal(t, Persisted, got.PersistenceState)
}

func TestGetNodeMissingReturnsNil(t *testing.T) {
	svc, _ := newTestService(t)
	got, err := svc.GetNode(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUpdateNodeHappyPath(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateNode(ctx, &Node{ID: "n1", NodeType: "text", Content: "hello"})
	require.NoError(t, err)

	newContent := "hello world"
	newVersion, err := svc.UpdateNode(ctx, "n1", 1, Patch{Content: &newContent})
	require.NoError(t, err)
	require.Equal(t, 2, newVersion)

	got, err := svc.GetNode(ctx, "n1")
	require.NoError(t, err)
	require.Equal(t, "hello world", got.Content)
	require.Equal(t, 2, got.Version)
}

func TestUpdateNodeStaleVersionConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateNode(ctx, &Node{ID: "n1", NodeType: "text", Content: "hello"})
	require.NoError(t, err)

	newContent := "v2"
	_, err = svc.UpdateNode(ctx, "n1", 1, Patch{Content: &newContent})
	require.NoError(t, err)

	staleContent := "v2-again"
	_, err = svc.UpdateNode(ctx, "n1", 1, Patch{Content: &staleContent})
	require.Error(t, err)
	require.Equal(t, nodeerr.KindVersionConflict, nodeerr.AsKind(err))
}

func TestDeleteNodeRemovesRow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateNode(ctx, &Node{ID: "n1", NodeType: "text", Content: "hello"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteNode(ctx, "n1"))

	got, err := svc.GetNode(ctx, "n1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDeleteNodeMissingReturnsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.DeleteNode(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, nodeerr.KindNotFound, nodeerr.AsKind(err))
}

func TestMentionsTrackedOnCreateAndUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateNode(ctx, &Node{ID: "target", NodeType: "text", Content: "I am the target"})
	require.NoError(t, err)
	_, err = svc.CreateNode(ctx, &Node{ID: "source", NodeType: "text", Content: "see [[target]]"})
	require.NoError(t, err)

	target, err := svc.GetNode(ctx, "target")
	require.NoError(t, err)
	require.Contains(t, target.MentionedBy, "source")

	noMentions := "nothing here now"
	_, err = svc.UpdateNode(ctx, "source", 1, Patch{Content: &noMentions})
	require.NoError(t, err)

	target, err = svc.GetNode(ctx, "target")
	require.NoError(t, err)
	require.NotContains(t, target.MentionedBy, "source")
}

func setupTreeWithChildren(t *testing.T, svc *Service, parent string, children ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.CreateNode(ctx, &Node{ID: parent, NodeType: "container", Content: ""})
	require.NoError(t, err)
	rank := 0.0
	for _, c := range children {
		_, err := svc.CreateNode(ctx, &Node{ID: c, NodeType: "text", Content: c})
		require.NoError(t, err)
		rank += 1024
		_, err = svc.store.Execute(ctx, `INSERT INTO has_child (parent_id, child_id, rank) VALUES (?, ?, ?)`,
			parent, c, rank)
		require.NoError(t, err)
	}
}

func TestGetChildrenOrderedByRank(t *testing.T) {
	svc, _ := newTestService(t)
	setupTreeWithChildren(t, svc, "p", "c1", "c2", "c3")

	children, err := svc.GetChildren(context.Background(), "p")
	require.NoError(t, err)
	require.Len(t, children, 3)
	require.Equal(t, []string{"c1", "c2", "c3"}, []string{children[0].ID, children[1].ID, children[2].ID})
}

func TestReorderSiblings(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	setupTreeWithChildren(t, svc, "p", "c1", "c2", "c3")

	require.NoError(t, svc.ReorderSiblings(ctx, "p", []string{"c3", "c1", "c2"}))

	children, err := svc.GetChildren(ctx, "p")
	require.NoError(t, err)
	require.Equal(t, []string{"c3", "c1", "c2"}, []string{children[0].ID, children[1].ID, children[2].ID})
}

func TestMoveNodeReparents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateNode(ctx, &Node{ID: "p1", NodeType: "container"})
	require.NoError(t, err)
	_, err = svc.CreateNode(ctx, &Node{ID: "p2", NodeType: "container"})
	require.NoError(t, err)
	_, err = svc.CreateNode(ctx, &Node{ID: "c1", NodeType: "text"})
	require.NoError(t, err)

	_, err = svc.MoveNode(ctx, "c1", "p1", Position{Kind: PositionLast})
	require.NoError(t, err)
	children, err := svc.GetChildren(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, children, 1)

	_, err = svc.MoveNode(ctx, "c1", "p2", Position{Kind: PositionLast})
	require.NoError(t, err)

	children, err = svc.GetChildren(ctx, "p1")
	require.NoError(t, err)
	require.Empty(t, children)
	children, err = svc.GetChildren(ctx, "p2")
	require.NoError(t, err)
	require.Len(t, children, 1)
}

func TestReorderToCurrentOrderIsNoOp(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()
	setupTreeWithChildren(t, svc, "p", "c1", "c2")

	before, err := svc.GetNode(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, svc.ReorderSiblings(ctx, "p", []string{"c1", "c2"}))

	after, err := svc.GetNode(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, before.Version, after.Version)

	for _, e := range bus.RecentEvents(0) {
		require.NotEqual(t, eventbus.Type("node:reordered"), e.Type)
	}
}

func TestCreateDuplicateIDSurfacesUniqueViolation(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateNode(ctx, &Node{ID: "n1", NodeType: "text", Content: "first"})
	require.NoError(t, err)

	_, err = svc.CreateNode(ctx, &Node{ID: "n1", NodeType: "text", Content: "second"})
	require.Error(t, err)
	require.Equal(t, nodeerr.KindUniqueViolation, nodeerr.AsKind(err))

	got, err := svc.GetNode(ctx, "n1")
	require.NoError(t, err)
	require.Equal(t, "first", got.Content)

	created := 0
	for _, e := range bus.RecentEvents(0) {
		if e.Type == "node:created" {
			created++
		}
	}
	require.Equal(t, 1, created)
}

func TestConcurrentReordersBothSucceed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	setupTreeWithChildren(t, svc, "p", "c1", "c2", "c3")

	perms := [][]string{{"c3", "c1", "c2"}, {"c2", "c3", "c1"}}
	var wg sync.WaitGroup
	errs := make([]error, len(perms))
	for i, perm := range perms {
		wg.Add(1)
		go func(i int, perm []string) {
			defer wg.Done()
			errs[i] = svc.ReorderSiblings(ctx, "p", perm)
		}(i, perm)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	children, err := svc.GetChildren(ctx, "p")
	require.NoError(t, err)
	require.Len(t, children, 3)
	got := []string{children[0].ID, children[1].ID, children[2].ID}
	require.Contains(t, perms, got)
}

func TestMoveNodeDetectsCycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateNode(ctx, &Node{ID: "a", NodeType: "container"})
	require.NoError(t, err)
	_, err = svc.CreateNode(ctx, &Node{ID: "b", NodeType: "container"})
	require.NoError(t, err)

	_, err = svc.MoveNode(ctx, "b", "a", Position{Kind: PositionLast})
	require.NoError(t, err)

	_, err = svc.MoveNode(ctx, "a", "b", Position{Kind: PositionLast})
	require.Error(t, err)
	require.Equal(t, nodeerr.KindCycleWouldOccur, nodeerr.AsKind(err))
}
