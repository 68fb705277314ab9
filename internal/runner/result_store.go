package runner

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/netauto/jobengine/internal/domain"
)

// InMemoryResultStore keeps per-Run state and exposes progress counters,
// per spec.md §4 / §9 ("run_state as a mapping runtime -> {current_job,
// jobs, edges, progress}"): the latest success of each Job, per-edge
// traversal counts, the current job, and the progress counters. It does not
// keep per-device results; Record only logs them. Each Run's entry is
// owned exclusively by that Run; the map itself is guarded by a single
// mutex, the same idiom as the teacher's in-memory event/run-state maps.
type InMemoryResultStore struct {
	mu    sync.RWMutex
	runs  map[string]*domain.RunState
	persist domain.EntityStore // optional, nil for pure in-memory use

	logger zerolog.Logger
}

func NewInMemoryResultStore(logger zerolog.Logger) *InMemoryResultStore {
	return &InMemoryResultStore{
		runs:   make(map[string]*domain.RunState),
		logger: logger,
	}
}

func (s *InMemoryResultStore) state(runtime string) *domain.RunState {
	st, ok := s.runs[runtime]
	if !ok {
		st = &domain.RunState{
			Runtime:    runtime,
			JobSuccess: make(map[uuid.UUID]domain.SuccessState),
			EdgeCounts: make(map[uuid.UUID]int),
		}
		s.runs[runtime] = st
	}
	return st
}

// Record stores result.Success as jobID's latest outcome in the Run's state,
// overwriting any earlier one, and logs the result with its device (if any).
// The per-device result itself is not stored.
func (s *InMemoryResultStore) Record(ctx context.Context, runtime string, jobID uuid.UUID, device *domain.Device, result domain.Result) error {
	s.mu.Lock()
	st := s.state(runtime)
	st.JobSuccess[jobID] = result.Success
	s.mu.Unlock()

	ev := s.logger.Debug().Str("runtime", runtime).Str("job_id", jobID.String()).Str("success", result.Success.String())
	if device != nil {
		ev = ev.Str("device", device.Name)
	}
	ev.Msg("runner: result recorded")
	return nil
}

func (s *InMemoryResultStore) Progress(ctx context.Context, runtime string, completed, failed, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(runtime)
	st.Completed, st.Failed, st.Total = completed, failed, total
	return nil
}

func (s *InMemoryResultStore) ResetProgress(ctx context.Context, runtime string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(runtime)
	st.Completed, st.Failed = 0, 0
}

func (s *InMemoryResultStore) CurrentJob(ctx context.Context, runtime string, job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(runtime).CurrentJob = job
}

// Snapshot returns a shallow copy of a Run's progress state, safe for
// concurrent observers (e.g. a UI) to read without racing the owning Run.
func (s *InMemoryResultStore) Snapshot(ctx context.Context, runtime string) (domain.RunState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.runs[runtime]
	if !ok {
		return domain.RunState{}, false
	}
	copyState := *st
	copyState.JobSuccess = make(map[uuid.UUID]domain.SuccessState, len(st.JobSuccess))
	for k, v := range st.JobSuccess {
		copyState.JobSuccess[k] = v
	}
	copyState.EdgeCounts = make(map[uuid.UUID]int, len(st.EdgeCounts))
	for k, v := range st.EdgeCounts {
		copyState.EdgeCounts[k] = v
	}
	return copyState, true
}

// IncrementEdgeCount records one traversal over edgeID, used by
// WorkflowTraverser to publish per-edge traversal counts (spec.md §9).
func (s *InMemoryResultStore) IncrementEdgeCount(runtime string, edgeID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(runtime)
	st.EdgeCounts[edgeID]++
}
