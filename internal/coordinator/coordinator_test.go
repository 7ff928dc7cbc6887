package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/nodespace/internal/eventbus"
	"github.com/kittclouds/nodespace/internal/node"
	"github.com/kittclouds/nodespace/internal/storage"
)

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *node.Service) {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New()
	svc := node.NewService(st, bus)
	return New(svc, bus, cfg, nil), svc
}

func strPtr(s string) *string { return &s }

func TestClassifyMutationTable(t *testing.T) {
	require.Equal(t, ClassDebounce, ClassifyMutation(ContentEdit))
	require.Equal(t, ClassImmediate, ClassifyMutation(StructuralEdit))
	require.Equal(t, ClassBatch, ClassifyMutation(BulkPatternConversion))
	require.Equal(t, ClassDefer, ClassifyMutation(ReferenceToEphemeral))
}

func TestImmediateStructuralEditCreatesNode(t *testing.T) {
	c, svc := newTestCoordinator(t, Config{})
	ctx := context.Background()

	err := c.SubmitEdit(ctx, "n1", StructuralEdit, node.Patch{Content: strPtr("hello")}, "", "")
	require.NoError(t, err)

	got, err := svc.GetNode(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "hello", got.Content)
}

func TestDebouncedEditsCoalesceToOneWrite(t *testing.T) {
	c, svc := newTestCoordinator(t, Config{DebounceWindow: 30 * time.Millisecond})
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c"} {
		require.NoError(t, c.SubmitEdit(ctx, "n1", ContentEdit, node.Patch{Content: strPtr(content)}, "", ""))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		got, err := svc.GetNode(ctx, "n1")
		return err == nil && got != nil && got.Content == "c"
	}, time.Second, 10*time.Millisecond)

	got, err := svc.GetNode(ctx, "n1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)
}

func TestBatchCoalescesMultipleNodes(t *testing.T) {
	c, svc := newTestCoordinator(t, Config{BatchWindow: 30 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, c.SubmitEdit(ctx, "n1", BulkPatternConversion, node.Patch{Content: strPtr("q1")}, "batch-key", ""))
	require.NoError(t, c.SubmitEdit(ctx, "n2", BulkPatternConversion, node.Patch{Content: strPtr("q2")}, "batch-key", ""))

	require.Eventually(t, func() bool {
		n1, _ := svc.GetNode(ctx, "n1")
		n2, _ := svc.GetNode(ctx, "n2")
		return n1 != nil && n2 != nil
	}, time.Second, 10*time.Millisecond)
}

func TestDeferredUpdateDrainsAfterTargetCommits(t *testing.T) {
	c, svc := newTestCoordinator(t, Config{})
	ctx := context.Background()

	require.NoError(t, c.SubmitEdit(ctx, "dependent", ReferenceToEphemeral,
		node.Patch{Content: strPtr("depends on target")}, "", "target"))

	counters := c.Counters()
	require.Equal(t, int64(1), counters.DeferredCount)

	require.NoError(t, c.SubmitEdit(ctx, "target", StructuralEdit, node.Patch{Content: strPtr("now real")}, "", ""))

	require.Eventually(t, func() bool {
		dep, err := svc.GetNode(ctx, "dependent")
		return err == nil && dep != nil
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, int64(0), c.Counters().DeferredCount)
}

func TestDeferredMoveKeepsStructuralPayload(t *testing.T) {
	c, svc := newTestCoordinator(t, Config{})
	ctx := context.Background()

	_, err := svc.CreateNode(ctx, &node.Node{ID: "b", NodeType: "text"})
	require.NoError(t, err)

	// b's reparent under the still-ephemeral "p" is parked until p commits.
	require.NoError(t, c.SubmitEdit(ctx, "b", ReferenceToEphemeral,
		node.Patch{Move: &node.MovePatch{NewParentID: "p", Position: node.Position{Kind: node.PositionLast}}}, "", "p"))
	require.Equal(t, int64(1), c.Counters().DeferredCount)

	require.NoError(t, c.SubmitEdit(ctx, "p", StructuralEdit, node.Patch{Content: strPtr("now real")}, "", ""))

	require.Eventually(t, func() bool {
		children, err := svc.GetChildren(ctx, "p")
		return err == nil && len(children) == 1 && children[0].ID == "b"
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, int64(0), c.Counters().DeferredCount)
}

func TestSubmitMoveReparentsThroughCoordinator(t *testing.T) {
	c, svc := newTestCoordinator(t, Config{})
	ctx := context.Background()

	_, err := svc.CreateNode(ctx, &node.Node{ID: "parent-a", NodeType: "text"})
	require.NoError(t, err)
	_, err = svc.CreateNode(ctx, &node.Node{ID: "parent-b", NodeType: "text"})
	require.NoError(t, err)
	_, err = svc.CreateNode(ctx, &node.Node{ID: "child", NodeType: "text", ParentID: "parent-a"})
	require.NoError(t, err)

	require.NoError(t, c.SubmitMove(ctx, "child", "parent-b", node.Position{Kind: node.PositionLast}))

	children, err := svc.GetChildren(ctx, "parent-b")
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "child", children[0].ID)
	require.Equal(t, "parent-b", children[0].ParentID)

	oldChildren, err := svc.GetChildren(ctx, "parent-a")
	require.NoError(t, err)
	require.Empty(t, oldChildren)
}

func TestShutdownFlushesPendingWork(t *testing.T) {
	c, svc := newTestCoordinator(t, Config{DebounceWindow: 5 * time.Second, ShutdownGrace: time.Second})
	ctx := context.Background()

	require.NoError(t, c.SubmitEdit(ctx, "n1", ContentEdit, node.Patch{Content: strPtr("draft")}, "", ""))

	report := c.Shutdown(ctx)
	require.Contains(t, report.PendingNodes, "n1")
	require.False(t, report.TimedOut)

	got, err := svc.GetNode(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "draft", got.Content)
}
