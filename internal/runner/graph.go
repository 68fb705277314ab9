package runner

import (
	"context"

	"github.com/google/uuid"

	"github.com/netauto/jobengine/internal/domain"
)

// workflowGraph is the adjacency structure for one Workflow's Edges,
// partitioned by EdgeSubtype, generalizing the teacher's single
// forward/reverse adjacency map (internal/application/executor/graph.go) to
// spec.md's three edge subtypes (success, failure, prerequisite).
type workflowGraph struct {
	forward map[uuid.UUID]map[domain.EdgeSubtype][]*domain.Edge // from job id -> subtype -> edges
	reverse map[uuid.UUID]map[domain.EdgeSubtype][]*domain.Edge // to job id -> subtype -> edges
}

func buildWorkflowGraph(ctx context.Context, store domain.EntityStore, workflowID uuid.UUID) (*workflowGraph, error) {
	edges, err := store.FetchEdgesByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	g := &workflowGraph{
		forward: make(map[uuid.UUID]map[domain.EdgeSubtype][]*domain.Edge),
		reverse: make(map[uuid.UUID]map[domain.EdgeSubtype][]*domain.Edge),
	}
	for _, e := range edges {
		if g.forward[e.FromJobID] == nil {
			g.forward[e.FromJobID] = make(map[domain.EdgeSubtype][]*domain.Edge)
		}
		g.forward[e.FromJobID][e.Subtype] = append(g.forward[e.FromJobID][e.Subtype], e)

		if g.reverse[e.ToJobID] == nil {
			g.reverse[e.ToJobID] = make(map[domain.EdgeSubtype][]*domain.Edge)
		}
		g.reverse[e.ToJobID][e.Subtype] = append(g.reverse[e.ToJobID][e.Subtype], e)
	}
	return g, nil
}

// successors returns the edges leaving jobID of the given subtype.
func (g *workflowGraph) successors(jobID uuid.UUID, subtype domain.EdgeSubtype) []*domain.Edge {
	return g.forward[jobID][subtype]
}

// predecessors returns the edges arriving at jobID of the given subtype.
func (g *workflowGraph) predecessors(jobID uuid.UUID, subtype domain.EdgeSubtype) []*domain.Edge {
	return g.reverse[jobID][subtype]
}

// allPrerequisitesVisited implements the join barrier of spec.md §4.3 step
// 4: a job with incoming prerequisite edges may not be visited until every
// one of those predecessors has been visited. This is a deliberately
// simplified descendant of the teacher's JoinEvaluator — spec.md needs only
// an all-predecessors-visited barrier, not the teacher's WaitAny/WaitFirst/
// WaitN strategy generality.
func (g *workflowGraph) allPrerequisitesVisited(jobID uuid.UUID, visited map[uuid.UUID]bool) bool {
	for _, edge := range g.predecessors(jobID, domain.EdgePrerequisite) {
		if !visited[edge.FromJobID] {
			return false
		}
	}
	return true
}
