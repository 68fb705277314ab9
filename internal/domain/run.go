package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Run is a single execution attempt of a top-level Job. Its policy fields
// are a snapshot of the Job's attributes taken at start-of-run, so that a
// concurrent edit to the Job definition never changes an in-flight Run.
type Run struct {
	Runtime string // unique, primary key among active runs

	JobID uuid.UUID
	Job   *Job // resolved snapshot, not mutated after NewRun

	// WorkflowID is set when this Run executes a Job nested under a parent
	// Workflow Run.
	WorkflowID *uuid.UUID
	// WorkflowDevice is set when this is a per-device sub-Run scoped to one
	// device (mode "device", or a per-target sub-run of a node).
	WorkflowDevice *uuid.UUID

	ParentRuntime string
	RestartRun    *string

	// Properties carries dynamic overrides for this Run: devices,
	// multiprocessing, max_processes, etc.
	Properties map[string]any

	// Policy snapshot, copied from Job at NewRun time.
	Retries         int
	RetryDelay      time.Duration
	WaitingTime     time.Duration
	HasTargets      bool
	Multiprocessing bool
	MaxProcesses    int

	stop atomic.Bool

	StartedAt time.Time
}

// NewRun snapshots job's policy attributes into a fresh Run.
func NewRun(runtime string, job *Job, workflowID *uuid.UUID, workflowDevice *uuid.UUID, parentRuntime string, properties map[string]any) *Run {
	if properties == nil {
		properties = map[string]any{}
	}
	r := &Run{
		Runtime:        runtime,
		JobID:          job.ID,
		Job:            job,
		WorkflowID:     workflowID,
		WorkflowDevice: workflowDevice,
		ParentRuntime:  parentRuntime,
		Properties:     properties,
		Retries:        job.Retries,
		RetryDelay:     job.RetryDelay,
		WaitingTime:    job.WaitingTime,
		HasTargets:     job.HasTargets,
		StartedAt:      time.Now(),
	}
	if job.Kind == KindService {
		r.Multiprocessing = job.Service.Multiprocessing
		r.MaxProcesses = job.Service.MaxProcesses
	}
	if v, ok := properties["multiprocessing"].(bool); ok {
		r.Multiprocessing = v
	}
	if v, ok := properties["max_processes"].(int); ok {
		r.MaxProcesses = v
	}
	return r
}

// RequestStop flags the Run for cooperative cancellation.
func (r *Run) RequestStop() { r.stop.Store(true) }

// Stopped reports whether RequestStop has been called. Idempotent: calling
// RequestStop more than once never changes the observed result.
func (r *Run) Stopped() bool { return r.stop.Load() }

// PropertyDeviceIDs returns run.Properties["devices"] as uuid.UUIDs, if set.
func (r *Run) PropertyDeviceIDs() ([]uuid.UUID, bool) {
	raw, ok := r.Properties["devices"]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []uuid.UUID:
		return v, true
	case []string:
		ids := make([]uuid.UUID, 0, len(v))
		for _, s := range v {
			if id, err := uuid.Parse(s); err == nil {
				ids = append(ids, id)
			}
		}
		return ids, true
	default:
		return nil, false
	}
}
