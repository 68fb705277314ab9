package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job is the tagged variant described in spec.md §9 ("Polymorphism over
// Jobs"): a single struct carries the fields common to Services and
// Workflows, plus exactly one of Service/Workflow populated according to
// Kind. Two distinguished Services named "Start" and "End" exist
// process-wide and must be present in every Workflow.
type Job struct {
	ID   uuid.UUID
	Name string
	Kind JobKind

	// Retry policy.
	Retries    int
	RetryDelay time.Duration

	// WaitingTime is the post-execution sleep applied when this Job is
	// embedded in a Workflow.
	WaitingTime time.Duration

	Skip        bool
	SkipQuery   string
	TargetQuery string
	HasTargets  bool

	QueryPropertyType QueryPropertyType

	Devices []uuid.UUID
	Pools   []uuid.UUID

	PushToGit           bool
	SendNotification    bool
	NotificationMethod  string
	Recipients          []string
	SuccessQuery        string

	Service  *ServiceSpec
	Workflow *WorkflowSpec
}

// ServiceSpec holds the fields specific to a leaf Service Job.
type ServiceSpec struct {
	// HandlerKind selects the handler family; "swiss_army" is the one
	// built-in family.
	HandlerKind string
	// HandlerName is the name dispatched within the handler family
	// (start, end, job1, job2, notify_mail, ...).
	HandlerName string

	Multiprocessing bool
	MaxProcesses    int
}

// WorkflowSpec holds the fields specific to a composite Workflow Job.
type WorkflowSpec struct {
	Members            []uuid.UUID
	StartJobs           []uuid.UUID
	UseWorkflowDevices  bool
	TraversalMode       TraversalMode
}

// IsStart reports whether this is the process-wide "Start" pseudo-service.
func (j *Job) IsStart() bool { return j.Name == "Start" }

// IsEnd reports whether this is the process-wide "End" pseudo-service.
func (j *Job) IsEnd() bool { return j.Name == "End" }

// JobNumber counts this Job's members, recursively adding 1 for every
// nested Workflow plus that Workflow's own JobNumber. Leaf Services count
// as 1. lookup resolves a member id to its Job.
func (j *Job) JobNumber(lookup func(uuid.UUID) (*Job, error)) (int, error) {
	if j.Kind == KindService {
		return 1, nil
	}
	total := 0
	for _, memberID := range j.Workflow.Members {
		member, err := lookup(memberID)
		if err != nil {
			return 0, err
		}
		if member.Kind == KindWorkflow {
			n, err := member.JobNumber(lookup)
			if err != nil {
				return 0, err
			}
			total += 1 + n
		} else {
			total++
		}
	}
	return total, nil
}
