package domain

import (
	"context"

	"github.com/google/uuid"
)

// EntityKind identifies which entity an EntityStore operation addresses.
type EntityKind string

const (
	KindDeviceEntity   EntityKind = "device"
	KindJobEntity      EntityKind = "job"
	KindEdgeEntity     EntityKind = "edge"
	KindRunEntity      EntityKind = "run"
)

// EntityStore is the narrow persistence collaborator consumed by the
// runner: load/persist Jobs, Devices, Edges, Runs, and act as the factory
// of Run records (spec.md §6). The ORM/schema behind a concrete
// implementation is deliberately out of scope of the core engine.
type EntityStore interface {
	// FetchByID loads a single entity of kind by id.
	FetchByID(ctx context.Context, kind EntityKind, id uuid.UUID) (any, error)
	// FetchByName loads a single entity of kind by its unique name
	// (Devices and Jobs are name-unique).
	FetchByName(ctx context.Context, kind EntityKind, name string) (any, error)
	// FetchDeviceByAddress loads a single Device by its Address field, the
	// lookup a target_query result with query_property_type "ip_address"
	// resolves through (spec.md §4.1).
	FetchDeviceByAddress(ctx context.Context, address string) (*Device, error)

	FetchDevices(ctx context.Context, ids []uuid.UUID) ([]*Device, error)
	FetchPoolDevices(ctx context.Context, poolIDs []uuid.UUID) ([]*Device, error)
	FetchJob(ctx context.Context, id uuid.UUID) (*Job, error)
	FetchJobByName(ctx context.Context, name string) (*Job, error)
	FetchEdgesFrom(ctx context.Context, workflowID, jobID uuid.UUID) ([]*Edge, error)
	FetchEdgesTo(ctx context.Context, workflowID, jobID uuid.UUID) ([]*Edge, error)
	FetchEdgesByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*Edge, error)

	// CreateRun is the factory used to mint child Runs so that a child Run
	// is visible to the store before it is invoked.
	CreateRun(ctx context.Context, run *Run) error

	// Commit flushes a transactional batch; called before invoking a child
	// Run so the child observes the new record.
	Commit(ctx context.Context) error
}

// EvaluationContext is the read-only evaluation context exposed to user
// expressions: payload, device attributes, job metadata, and nothing else.
type EvaluationContext struct {
	Payload Payload
	Device  *Device
	Job     *Job
}

// Evaluator evaluates user-supplied expressions (target_query, skip_query,
// success_query) against an EvaluationContext. Implementations may reject
// expressions they do not support; such an error propagates as an
// EvaluatorError scoped to the one node being evaluated. Evaluator must not
// execute arbitrary host code — it is a restricted expression language.
type Evaluator interface {
	EvalBool(ctx context.Context, expression string, ectx EvaluationContext) (bool, error)
	EvalList(ctx context.Context, expression string, ectx EvaluationContext) ([]string, error)
}

// NotifyChannel selects a Notifier transport.
type NotifyChannel string

const (
	ChannelMail       NotifyChannel = "mail"
	ChannelSlack      NotifyChannel = "slack"
	ChannelMattermost NotifyChannel = "mattermost"
)

// Notifier delivers a best-effort notification of a Run's outcome; failures
// never alter the Run's success value.
type Notifier interface {
	Notify(ctx context.Context, channel NotifyChannel, run *Run, result Result, recipients []string) error
}

// GitExporter writes a Job's results into a git working tree and pushes
// them. Failure is swallowed by the caller (the Coordinator).
type GitExporter interface {
	PushResults(ctx context.Context, jobName string, resultsText string, repoPath string) error
}

// ResultStore records per-Run, per-Job, per-Device results and exposes
// progress counters. It is a core engine component (spec.md §2), consumed
// through this narrow interface by ServiceRunner and WorkflowTraverser.
type ResultStore interface {
	Record(ctx context.Context, runtime string, jobID uuid.UUID, device *Device, result Result) error
	Progress(ctx context.Context, runtime string, completed, failed, total int) error
	ResetProgress(ctx context.Context, runtime string)
	CurrentJob(ctx context.Context, runtime string, job *Job)
	Snapshot(ctx context.Context, runtime string) (RunState, bool)
}

// RunState is the in-memory, per-runtime progress/traversal snapshot
// described in spec.md §9 ("Per-run state"): runtime -> {current_job,
// jobs, edges, progress}.
type RunState struct {
	Runtime     string
	CurrentJob  *Job
	JobSuccess  map[uuid.UUID]SuccessState
	EdgeCounts  map[uuid.UUID]int
	Completed   int
	Failed      int
	Total       int
}
