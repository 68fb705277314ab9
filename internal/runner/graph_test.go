package runner

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netauto/jobengine/internal/domain"
	"github.com/netauto/jobengine/internal/storage"
)

func TestBuildWorkflowGraph_PartitionsBySubtype(t *testing.T) {
	store := storage.NewMemoryStore()
	workflowID := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	store.PutEdge(&domain.Edge{ID: uuid.New(), WorkflowID: workflowID, FromJobID: a, ToJobID: b, Subtype: domain.EdgeSuccess})
	store.PutEdge(&domain.Edge{ID: uuid.New(), WorkflowID: workflowID, FromJobID: a, ToJobID: c, Subtype: domain.EdgeFailure})
	store.PutEdge(&domain.Edge{ID: uuid.New(), WorkflowID: workflowID, FromJobID: b, ToJobID: c, Subtype: domain.EdgePrerequisite})

	g, err := buildWorkflowGraph(context.Background(), store, workflowID)
	require.NoError(t, err)

	assert.Len(t, g.successors(a, domain.EdgeSuccess), 1)
	assert.Len(t, g.successors(a, domain.EdgeFailure), 1)
	assert.Empty(t, g.successors(a, domain.EdgePrerequisite))

	assert.Len(t, g.predecessors(c, domain.EdgeFailure), 1)
	assert.Len(t, g.predecessors(c, domain.EdgePrerequisite), 1)
}

func TestAllPrerequisitesVisited_WaitsForEveryPrerequisiteEdge(t *testing.T) {
	store := storage.NewMemoryStore()
	workflowID := uuid.New()
	left, right, join := uuid.New(), uuid.New(), uuid.New()

	store.PutEdge(&domain.Edge{ID: uuid.New(), WorkflowID: workflowID, FromJobID: left, ToJobID: join, Subtype: domain.EdgePrerequisite})
	store.PutEdge(&domain.Edge{ID: uuid.New(), WorkflowID: workflowID, FromJobID: right, ToJobID: join, Subtype: domain.EdgePrerequisite})

	g, err := buildWorkflowGraph(context.Background(), store, workflowID)
	require.NoError(t, err)

	visited := map[uuid.UUID]bool{}
	assert.False(t, g.allPrerequisitesVisited(join, visited))

	visited[left] = true
	assert.False(t, g.allPrerequisitesVisited(join, visited), "only one of two prerequisites has been visited")

	visited[right] = true
	assert.True(t, g.allPrerequisitesVisited(join, visited))
}

func TestAllPrerequisitesVisited_NoIncomingEdgesIsVacuouslyTrue(t *testing.T) {
	store := storage.NewMemoryStore()
	g, err := buildWorkflowGraph(context.Background(), store, uuid.New())
	require.NoError(t, err)

	assert.True(t, g.allPrerequisitesVisited(uuid.New(), map[uuid.UUID]bool{}))
}

func TestAllPrerequisitesVisited_IgnoresNonPrerequisiteEdges(t *testing.T) {
	store := storage.NewMemoryStore()
	workflowID := uuid.New()
	a, b := uuid.New(), uuid.New()
	store.PutEdge(&domain.Edge{ID: uuid.New(), WorkflowID: workflowID, FromJobID: a, ToJobID: b, Subtype: domain.EdgeSuccess})

	g, err := buildWorkflowGraph(context.Background(), store, workflowID)
	require.NoError(t, err)

	// b has an incoming success edge but no prerequisite edge, so the join
	// barrier never blocks on it.
	assert.True(t, g.allPrerequisitesVisited(b, map[uuid.UUID]bool{}))
}
