package domain

import "github.com/google/uuid"

// Edge is a directed arc within one Workflow: (workflow, source job,
// destination job, subtype). Deletion of a Workflow or an endpoint Job must
// cascade to remove its incident Edges — enforced by the owning
// EntityStore, not by Edge itself.
type Edge struct {
	ID         uuid.UUID
	WorkflowID uuid.UUID
	FromJobID  uuid.UUID
	ToJobID    uuid.UUID
	Subtype    EdgeSubtype
}
