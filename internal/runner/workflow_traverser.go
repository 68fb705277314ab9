package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/netauto/jobengine/internal/domain"
)

// Dispatcher runs a single Run to completion, selecting ServiceRunner or
// WorkflowTraverser by the Run's Job kind (this is the Coordinator's role,
// spec.md §4.4). WorkflowTraverser depends on a Dispatcher rather than the
// Coordinator directly so that it can recursively invoke child Runs of
// either kind without a hard reference back to the Coordinator type.
type Dispatcher interface {
	Run(ctx context.Context, run *domain.Run, payload domain.Payload) domain.Result
}

// WorkflowTraverser walks a Workflow graph, manages per-node allowed-device
// sets, and dispatches sub-Runs, per spec.md §4.3. This is the hardest, and
// largest, component of the engine.
type WorkflowTraverser struct {
	store      domain.EntityStore
	resolver   *DeviceResolver
	eval       domain.Evaluator
	results    *InMemoryResultStore
	dispatcher Dispatcher
	newRuntime func() string
	logger     zerolog.Logger
}

func NewWorkflowTraverser(store domain.EntityStore, resolver *DeviceResolver, eval domain.Evaluator, results *InMemoryResultStore, newRuntime func() string, logger zerolog.Logger) *WorkflowTraverser {
	return &WorkflowTraverser{store: store, resolver: resolver, eval: eval, results: results, newRuntime: newRuntime, logger: logger}
}

// SetDispatcher wires the Coordinator in after construction, breaking the
// Coordinator/WorkflowTraverser construction cycle.
func (t *WorkflowTraverser) SetDispatcher(d Dispatcher) { t.dispatcher = d }

// BuildResults executes run.Job (a Workflow) to completion.
func (t *WorkflowTraverser) BuildResults(ctx context.Context, run *domain.Run, payload domain.Payload) domain.Result {
	workflow := run.Job
	graph, err := buildWorkflowGraph(ctx, t.store, workflow.ID)
	if err != nil {
		return domain.NewFailure(domain.NewDomainError(domain.ErrCodePersistence, "load workflow graph", err))
	}

	mode := workflow.Workflow.TraversalMode
	if mode == "" {
		mode = domain.TraversalService
	}

	if mode == domain.TraversalDevice {
		return t.buildDeviceModeResults(ctx, run, workflow, graph, payload)
	}
	result, err := t.traverseOnce(ctx, run, workflow, graph, payload, mode, nil)
	if err != nil {
		return domain.NewFailure(err)
	}
	return result
}

// buildDeviceModeResults implements spec.md §4.3 mode "device": the
// Workflow runs independently per device; the outer result aggregates
// per-device sub-results, and success is the conjunction of all of them.
func (t *WorkflowTraverser) buildDeviceModeResults(ctx context.Context, run *domain.Run, workflow *domain.Job, graph *workflowGraph, payload domain.Payload) domain.Result {
	targets, err := t.resolver.Compute(ctx, run, payload)
	if err != nil {
		return domain.NewFailure(err)
	}

	devicesOut := make(map[string]any, targets.Len())
	allSuccess := true
	for _, device := range targets.Devices() {
		if run.Stopped() {
			break
		}
		sub, err := t.traverseOnce(ctx, run, workflow, graph, payload.DeepCopy(), domain.TraversalDevice, device)
		if err != nil {
			sub = domain.NewFailure(err)
		}
		devicesOut[device.Name] = sub.AsMap()
		if !sub.Success.Bool() {
			allSuccess = false
		}
	}
	return domain.Result{
		Runtime: run.Runtime,
		Results: map[string]any{"devices": devicesOut},
		Success: domain.BoolState(allSuccess),
	}
}

// traverseOnce runs a single stack-based pass over the Workflow's members,
// per spec.md §4.3's numbered algorithm. outerDevice is non-nil only in
// mode "device" traversal.
func (t *WorkflowTraverser) traverseOnce(ctx context.Context, run *domain.Run, workflow *domain.Job, graph *workflowGraph, payload domain.Payload, mode domain.TraversalMode, outerDevice *domain.Device) (domain.Result, error) {
	visited := make(map[uuid.UUID]bool)
	allowed := make(map[uuid.UUID]*domain.DeviceSet)
	pending := append([]uuid.UUID{}, workflow.Workflow.StartJobs...)
	resultsOut := make(map[string]any)

	useSplit := workflow.Workflow.UseWorkflowDevices && mode == domain.TraversalService

	var initialTargets *domain.DeviceSet
	if workflow.Workflow.UseWorkflowDevices {
		var err error
		initialTargets, err = t.resolver.Compute(ctx, run, payload)
		if err != nil {
			return domain.Result{}, err
		}
		if useSplit {
			for _, startID := range workflow.Workflow.StartJobs {
				allowed[startID] = initialTargets.Clone()
			}
		}
	}

	reachedEnd := false

	for len(pending) > 0 {
		if run.Stopped() {
			break // cancellation: return accumulated results immediately
		}

		jobID := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		if visited[jobID] {
			continue
		}
		if !graph.allPrerequisitesVisited(jobID, visited) {
			// join barrier: do not re-enqueue, it returns when the
			// predecessor's own successor enqueueing re-adds it.
			continue
		}

		job, err := t.store.FetchJob(ctx, jobID)
		if err != nil {
			return domain.Result{}, domain.NewDomainError(domain.ErrCodePersistence, "fetch job during traversal", err)
		}

		visited[jobID] = true
		t.results.CurrentJob(ctx, run.Runtime, job)

		jobResult, skipped, err := t.executeNode(ctx, run, job, workflow, payload, mode, useSplit, allowed[jobID], outerDevice)
		if err != nil {
			jobResult = domain.NewFailure(err)
		}

		// Payload update happens before successor enqueueing, so successors
		// observe predecessor outputs the moment they are scheduled.
		payload[job.Name] = jobResult.AsMap()
		resultsOut[job.Name] = jobResult.AsMap()

		successEdges, failureEdges := t.selectSuccessors(graph, job, jobResult, skipped, useSplit, allowed)
		var endJobID uuid.UUID
		var haveEndJob bool
		if !useSplit {
			if endJob, err := t.store.FetchJobByName(ctx, "End"); err == nil {
				endJobID, haveEndJob = endJob.ID, true
			}
		}
		for _, edge := range successEdges {
			pending = append(pending, edge.ToJobID)
			t.results.IncrementEdgeCount(run.Runtime, edge.ID)
			if haveEndJob && edge.ToJobID == endJobID {
				reachedEnd = true
			}
		}
		for _, edge := range failureEdges {
			pending = append(pending, edge.ToJobID)
			t.results.IncrementEdgeCount(run.Runtime, edge.ID)
			if haveEndJob && edge.ToJobID == endJobID {
				reachedEnd = true
			}
		}
		// Prerequisite edges enqueue their destination whatever this node's
		// outcome; the join barrier above holds it back until every
		// prerequisite predecessor has been visited.
		for _, edge := range graph.successors(job.ID, domain.EdgePrerequisite) {
			pending = append(pending, edge.ToJobID)
			t.results.IncrementEdgeCount(run.Runtime, edge.ID)
		}

		if !skipped {
			t.sleep(ctx, job.WaitingTime)
		}
	}

	result := domain.Result{Runtime: run.Runtime, Results: resultsOut}
	if useSplit {
		endJob, err := t.store.FetchJobByName(ctx, "End")
		if err != nil {
			return domain.Result{}, domain.NewDomainError(domain.ErrCodePersistence, "fetch End job", err)
		}
		endDevices := allowed[endJob.ID]
		if endDevices == nil {
			endDevices = domain.NewDeviceSet()
		}
		devicesMap := make(map[string]any, initialTargets.Len())
		for _, d := range initialTargets.Devices() {
			devicesMap[d.Name] = map[string]any{"success": endDevices.Contains(d.ID)}
		}
		result.Results["devices"] = devicesMap
		result.Success = domain.BoolState(initialTargets.Equal(endDevices))
	} else {
		result.Success = domain.BoolState(reachedEnd)
	}
	return result, nil
}

// executeNode decides and runs one node's execution form: skip, per-target
// sub-run, or ordinary child-Run execution (spec.md §4.3 step 6).
func (t *WorkflowTraverser) executeNode(ctx context.Context, run *domain.Run, job, workflow *domain.Job, payload domain.Payload, mode domain.TraversalMode, useSplit bool, incomingAllowed *domain.DeviceSet, outerDevice *domain.Device) (domain.Result, bool, error) {
	if job.Skip {
		return domain.NewSkipped(), true, nil
	}
	if job.SkipQuery != "" {
		truthy, err := t.eval.EvalBool(ctx, job.SkipQuery, domain.EvaluationContext{Payload: payload, Job: job})
		if err != nil {
			return domain.Result{}, false, domain.NewDomainError(domain.ErrCodeEvaluator, "skip_query evaluation failed for "+job.Name, err)
		}
		if truthy {
			return domain.NewSkipped(), true, nil
		}
	}

	if useSplit && job.TargetQuery != "" {
		return t.runPerTargetSubRuns(ctx, run, job, workflow, payload, incomingAllowed), false, nil
	}

	validDevices := t.computeValidDevices(ctx, run, job, workflow, mode, useSplit, incomingAllowed, outerDevice, payload)
	result, err := t.runChild(ctx, run, job, workflow, payload, validDevices, nil)
	return result, false, err
}

// runPerTargetSubRuns implements spec.md §4.3 step 6's per-target sub-run
// form: one child Run per device in the node's allowed set, aggregated with
// AND semantics. A child Run's dispatch error becomes a per-target failure
// and does not abort sibling targets.
func (t *WorkflowTraverser) runPerTargetSubRuns(ctx context.Context, run *domain.Run, job, workflow *domain.Job, payload domain.Payload, targets *domain.DeviceSet) domain.Result {
	if targets == nil {
		targets = domain.NewDeviceSet()
	}
	devicesOut := make(map[string]any, targets.Len())
	success := true
	for _, device := range targets.Devices() {
		device := device
		single := domain.NewDeviceSet()
		single.Add(device)
		childResult, err := t.invokeChild(ctx, run, job, workflow, payload, single, &device.ID)
		if err != nil {
			childResult = domain.NewFailure(err)
		}
		devicesOut[device.Name] = childResult.AsMap()
		if !childResult.Success.Bool() {
			success = false
		}
	}
	return domain.Result{Results: map[string]any{"devices": devicesOut}, Success: domain.BoolState(success)}
}

// computeValidDevices implements spec.md §4.3 step 6's "Ordinary execution"
// valid_devices computation.
func (t *WorkflowTraverser) computeValidDevices(ctx context.Context, run *domain.Run, job, workflow *domain.Job, mode domain.TraversalMode, useSplit bool, incomingAllowed *domain.DeviceSet, outerDevice *domain.Device, payload domain.Payload) *domain.DeviceSet {
	if mode == domain.TraversalDevice {
		set := domain.NewDeviceSet()
		if outerDevice != nil {
			set.Add(outerDevice)
		}
		return set
	}

	useWFDevices := workflow.Workflow.UseWorkflowDevices
	switch {
	case (job.Kind == domain.KindWorkflow || !job.HasTargets) && !useWFDevices:
		return t.resolveJobDevices(ctx, run, job, payload)
	case useWFDevices:
		if incomingAllowed == nil {
			return domain.NewDeviceSet()
		}
		return incomingAllowed
	default:
		return t.resolveJobDevices(ctx, run, job, payload)
	}
}

func (t *WorkflowTraverser) resolveJobDevices(ctx context.Context, run *domain.Run, job *domain.Job, payload domain.Payload) *domain.DeviceSet {
	probe := domain.NewRun(t.newRuntime(), job, nil, nil, run.Runtime, nil)
	set, err := t.resolver.Compute(ctx, probe, payload)
	if err != nil {
		return domain.NewDeviceSet()
	}
	return set
}

// runChild creates and dispatches a child Run scoped to validDevices.
func (t *WorkflowTraverser) runChild(ctx context.Context, run *domain.Run, job, workflow *domain.Job, payload domain.Payload, validDevices *domain.DeviceSet, workflowDevice *uuid.UUID) (domain.Result, error) {
	return t.invokeChild(ctx, run, job, workflow, payload, validDevices, workflowDevice)
}

func (t *WorkflowTraverser) invokeChild(ctx context.Context, run *domain.Run, job, workflow *domain.Job, payload domain.Payload, validDevices *domain.DeviceSet, workflowDevice *uuid.UUID) (domain.Result, error) {
	properties := map[string]any{}
	if validDevices != nil {
		properties["devices"] = validDevices.IDs()
	}
	childRun := domain.NewRun(t.newRuntime(), job, &workflow.ID, workflowDevice, run.Runtime, properties)

	if err := t.store.CreateRun(ctx, childRun); err != nil {
		return domain.Result{}, domain.NewDomainError(domain.ErrCodePersistence, "create child run", err)
	}
	if err := t.store.Commit(ctx); err != nil {
		return domain.Result{}, domain.NewDomainError(domain.ErrCodePersistence, "commit before child run", err)
	}

	return t.dispatcher.Run(ctx, childRun, payload.DeepCopy()), nil
}

// selectSuccessors implements spec.md §4.3 step 8.
func (t *WorkflowTraverser) selectSuccessors(graph *workflowGraph, job *domain.Job, jobResult domain.Result, skipped bool, useSplit bool, allowed map[uuid.UUID]*domain.DeviceSet) (successEdges, failureEdges []*domain.Edge) {
	if !useSplit {
		if jobResult.Success.Bool() {
			return graph.successors(job.ID, domain.EdgeSuccess), nil
		}
		return nil, graph.successors(job.ID, domain.EdgeFailure)
	}

	incoming := allowed[job.ID]
	if incoming == nil {
		incoming = domain.NewDeviceSet()
	}

	passed := domain.NewDeviceSet()
	failed := domain.NewDeviceSet()

	devicesMap, hasFanout := deviceSuccessMap(jobResult)
	if !skipped && job.HasTargets && hasFanout {
		for _, d := range incoming.Devices() {
			if devicesMap[d.Name] {
				passed.Add(d)
			} else {
				failed.Add(d)
			}
		}
	} else if jobResult.Success.Bool() {
		passed = incoming.Clone()
	} else {
		failed = incoming.Clone()
	}

	successEdges = graph.successors(job.ID, domain.EdgeSuccess)
	for _, edge := range successEdges {
		allowed[edge.ToJobID] = unionAllowed(allowed[edge.ToJobID], passed)
	}
	failureEdges = graph.successors(job.ID, domain.EdgeFailure)
	for _, edge := range failureEdges {
		allowed[edge.ToJobID] = unionAllowed(allowed[edge.ToJobID], failed)
	}
	return successEdges, failureEdges
}

func unionAllowed(existing, addition *domain.DeviceSet) *domain.DeviceSet {
	if existing == nil {
		return addition.Clone()
	}
	return existing.Union(addition)
}

// deviceSuccessMap extracts a device-name -> success map from a job's
// result, if it carries a per-device "devices" breakdown.
func deviceSuccessMap(result domain.Result) (map[string]bool, bool) {
	if result.Results == nil {
		return nil, false
	}
	raw, ok := result.Results["devices"]
	if !ok {
		return nil, false
	}
	devices, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]bool, len(devices))
	for name, entry := range devices {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		switch s := m["success"].(type) {
		case bool:
			out[name] = s
		case domain.SuccessState:
			out[name] = s.Bool()
		}
	}
	return out, true
}

func (t *WorkflowTraverser) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
