package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/nodespace/internal/node"
)

type fakeStore struct {
	byID              map[string]*node.Node
	containers        []*node.Node
	mentionedByCalled string
	contentCalled     []string
	nodeTypeCalled    string
	widenSeen         bool
	containersCalled  bool
}

func (f *fakeStore) GetNode(ctx context.Context, id string) (*node.Node, error) {
	return f.byID[id], nil
}

func (f *fakeStore) FindByMentionedBy(ctx context.Context, targetID string, widen bool) ([]*node.Node, error) {
	f.mentionedByCalled = targetID
	f.widenSeen = widen
	return nil, nil
}

func (f *fakeStore) FindByContent(ctx context.Context, tokens []string, nodeType string, widen bool) ([]*node.Node, error) {
	f.contentCalled = tokens
	f.nodeTypeCalled = nodeType
	f.widenSeen = widen
	return nil, nil
}

func (f *fakeStore) FindByNodeType(ctx context.Context, nodeType string, widen bool) ([]*node.Node, error) {
	f.nodeTypeCalled = nodeType
	f.widenSeen = widen
	return nil, nil
}

func (f *fakeStore) FindContainersAndTasks(ctx context.Context) ([]*node.Node, error) {
	f.containersCalled = true
	return f.containers, nil
}

func TestRunIDTakesPriorityOverEverythingElse(t *testing.T) {
	fs := &fakeStore{byID: map[string]*node.Node{"n1": {ID: "n1"}}}
	spec := Spec{ID: "n1", MentionedBy: "other", NodeType: "text"}
	result, err := Run(context.Background(), fs, spec)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, "", fs.mentionedByCalled)
}

func TestRunIDPathWidensWithContainersAndTasks(t *testing.T) {
	fs := &fakeStore{
		byID: map[string]*node.Node{"n1": {ID: "n1"}},
		containers: []*node.Node{
			{ID: "n1"}, // duplicate of the direct hit, must not repeat
			{ID: "root"},
			{ID: "task1"},
		},
	}
	result, err := Run(context.Background(), fs, Spec{ID: "n1", IncludeContainersAndTasks: true})
	require.NoError(t, err)
	require.True(t, fs.containersCalled)

	ids := make([]string, len(result))
	for i, n := range result {
		ids[i] = n.ID
	}
	require.Equal(t, []string{"n1", "root", "task1"}, ids)
}

func TestRunMentionedByBeatsContentAndType(t *testing.T) {
	fs := &fakeStore{}
	_, err := Run(context.Background(), fs, Spec{MentionedBy: "target", ContentContains: "hello", NodeType: "text"})
	require.NoError(t, err)
	require.Equal(t, "target", fs.mentionedByCalled)
	require.Empty(t, fs.contentCalled)
}

func TestRunContentContainsNarrowedByNodeType(t *testing.T) {
	fs := &fakeStore{}
	_, err := Run(context.Background(), fs, Spec{ContentContains: "the quick fox", NodeType: "text"})
	require.NoError(t, err)
	require.Equal(t, "text", fs.nodeTypeCalled)
	require.NotContains(t, fs.contentCalled, "the") // stopword filtered
	require.Contains(t, fs.contentCalled, "quick")
	require.Contains(t, fs.contentCalled, "fox")
}

func TestRunNodeTypeAlone(t *testing.T) {
	fs := &fakeStore{}
	_, err := Run(context.Background(), fs, Spec{NodeType: "task"})
	require.NoError(t, err)
	require.Equal(t, "task", fs.nodeTypeCalled)
}

func TestRunIncludeContainersAndTasksAlone(t *testing.T) {
	fs := &fakeStore{}
	_, err := Run(context.Background(), fs, Spec{IncludeContainersAndTasks: true})
	require.NoError(t, err)
	require.True(t, fs.containersCalled)
}

func TestRunIncludeContainersAndTasksWidensNodeTypePath(t *testing.T) {
	fs := &fakeStore{}
	_, err := Run(context.Background(), fs, Spec{NodeType: "header", IncludeContainersAndTasks: true})
	require.NoError(t, err)
	require.Equal(t, "header", fs.nodeTypeCalled)
	require.True(t, fs.widenSeen)
}

func TestRunEmptySpecReturnsNil(t *testing.T) {
	fs := &fakeStore{}
	result, err := Run(context.Background(), fs, Spec{})
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestTokenizeFiltersStopwordsAndPunctuation(t *testing.T) {
	tokens := Tokenize("The quick, brown fox jumps over the lazy dog.")
	require.NotContains(t, tokens, "the")
	require.NotContains(t, tokens, "over")
	require.Contains(t, tokens, "quick")
	require.Contains(t, tokens, "brown")
	require.Contains(t, tokens, "dog")
}
