package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/netauto/jobengine/internal/domain"
)

// ServiceRunner fans out one Service invocation across a target set with
// optional multiprocessing and retries, per spec.md §4.2.
type ServiceRunner struct {
	resolver *DeviceResolver
	handlers HandlerRegistry
	results  *InMemoryResultStore
	logger   zerolog.Logger
}

func NewServiceRunner(resolver *DeviceResolver, handlers HandlerRegistry, results *InMemoryResultStore, logger zerolog.Logger) *ServiceRunner {
	return &ServiceRunner{resolver: resolver, handlers: handlers, results: results, logger: logger}
}

// BuildResults executes run.Job (a Service) to completion, applying the
// fixed-delay retry policy described in spec.md §4.2.
func (sr *ServiceRunner) BuildResults(ctx context.Context, run *domain.Run, payload domain.Payload) domain.Result {
	handler, err := sr.handlers.Resolve(run.Job.Service.HandlerKind, run.Job.Service.HandlerName)
	if err != nil {
		return domain.NewFailure(domain.NewDomainError(domain.ErrCodeHandler, "resolve handler", err))
	}

	var targets *domain.DeviceSet
	if run.HasTargets {
		targets, err = sr.resolver.Compute(ctx, run, payload)
		if err != nil {
			return domain.Result{Success: domain.Failure, Error: err.Error()}
		}
	} else {
		targets = domain.NewDeviceSet()
	}

	if targets.Len() == 0 {
		return sr.runTargetless(ctx, run, payload, handler)
	}
	return sr.runWithTargets(ctx, run, payload, handler, targets)
}

// runTargetless implements spec.md §4.2 step 3: without targets, the first
// attempt's success decides termination, retried up to Retries on failure.
func (sr *ServiceRunner) runTargetless(ctx context.Context, run *domain.Run, payload domain.Payload, handler Handler) domain.Result {
	result := domain.Result{Runtime: run.Runtime}
	attempts := map[string]any{}

	for attempt := 0; attempt <= run.Retries; attempt++ {
		if run.Stopped() {
			result.Success = domain.Failure
			result.Attempts = attempts
			return result
		}

		attemptResult := handler.Invoke(ctx, nil, payload)
		_ = sr.results.Record(ctx, run.Runtime, run.JobID, nil, attemptResult)

		final := attempt == run.Retries
		if attemptResult.Success.Bool() || final {
			result.Results = attemptResult.Results
			if attemptResult.Error != "" {
				result.Error = attemptResult.Error
			}
			result.Success = attemptResult.Success
			result.Attempts = attempts
			return result
		}

		if run.Retries > 0 {
			attempts[fmt.Sprintf("Attempt %d", attempt+1)] = attemptResult.AsMap()
		}
		sr.sleep(ctx, run.RetryDelay)
	}
	result.Success = domain.Failure
	result.Attempts = attempts
	return result
}

// runWithTargets implements spec.md §4.2 steps 1-2: retry loop over a
// shrinking target set, never re-running a device that already succeeded.
func (sr *ServiceRunner) runWithTargets(ctx context.Context, run *domain.Run, payload domain.Payload, handler Handler, targets *domain.DeviceSet) domain.Result {
	result := domain.Result{
		Runtime: run.Runtime,
		Results: map[string]any{"devices": map[string]any{}},
	}
	devicesOut := result.Results["devices"].(map[string]any)
	attempts := map[string]any{}
	remaining := targets

	for attempt := 0; attempt <= run.Retries; attempt++ {
		if run.Stopped() {
			result.Success = domain.Failure
			result.Attempts = attempts
			return result
		}

		sr.results.ResetProgress(ctx, run.Runtime)
		attemptResults := sr.runAttempt(ctx, run, payload, handler, remaining)

		succeeded := domain.NewDeviceSet()
		for _, d := range remaining.Devices() {
			r := attemptResults[d.ID]
			if r.Success.Bool() {
				devicesOut[d.Name] = r.AsMap()
				succeeded.Add(d)
			}
		}
		for _, d := range succeeded.Devices() {
			remaining.Remove(d.ID)
		}

		if remaining.Len() == 0 {
			result.Success = domain.Success
			result.Attempts = attempts
			return result
		}

		final := attempt == run.Retries
		if !final {
			if run.Retries > 0 {
				attempts[fmt.Sprintf("Attempt %d", attempt+1)] = renderAttempt(remaining, attemptResults)
			}
			sr.sleep(ctx, run.RetryDelay)
			continue
		}

		for _, d := range remaining.Devices() {
			devicesOut[d.Name] = attemptResults[d.ID].AsMap()
		}
		result.Success = domain.Failure
		result.Attempts = attempts
		return result
	}

	result.Success = domain.Failure
	result.Attempts = attempts
	return result
}

func renderAttempt(targets *domain.DeviceSet, results map[uuid.UUID]domain.Result) map[string]any {
	out := map[string]any{}
	for _, d := range targets.Devices() {
		out[d.Name] = results[d.ID].AsMap()
	}
	return map[string]any{"devices": out}
}

// runAttempt executes one attempt of the handler across targets, either in
// parallel (bounded by MaxProcesses) or sequentially in insertion order.
func (sr *ServiceRunner) runAttempt(ctx context.Context, run *domain.Run, payload domain.Payload, handler Handler, targets *domain.DeviceSet) map[uuid.UUID]domain.Result {
	results := make(map[uuid.UUID]domain.Result, targets.Len())

	if !run.Multiprocessing {
		completed, failed := 0, 0
		for _, device := range targets.Devices() {
			r := sr.invokeOne(ctx, run, payload, handler, device)
			results[device.ID] = r
			if r.Success.Bool() {
				completed++
			} else {
				failed++
			}
			_ = sr.results.Progress(ctx, run.Runtime, completed, failed, targets.Len())
		}
		return results
	}

	// Multiprocessing: up to min(|targets|, max_processes) workers in
	// parallel. Each worker writes its per-device entry into a shared map
	// under a single mutex — the map write is the only shared mutation
	// (spec.md §5), grounded on the teacher's executeWave semaphore idiom.
	workers := run.MaxProcesses
	if workers <= 0 {
		workers = 1
	}
	if workers > targets.Len() {
		workers = targets.Len()
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var completed, failed int

	for _, device := range targets.Devices() {
		device := device
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			r := sr.invokeOne(ctx, run, payload, handler, device)

			mu.Lock()
			results[device.ID] = r
			if r.Success.Bool() {
				completed++
			} else {
				failed++
			}
			c, f := completed, failed
			mu.Unlock()

			_ = sr.results.Progress(ctx, run.Runtime, c, f, targets.Len())
		}()
	}
	wg.Wait()
	return results
}

func (sr *ServiceRunner) invokeOne(ctx context.Context, run *domain.Run, payload domain.Payload, handler Handler, device *domain.Device) domain.Result {
	r := handler.Invoke(ctx, device, payload)
	_ = sr.results.Record(ctx, run.Runtime, run.JobID, device, r)
	return r
}

func (sr *ServiceRunner) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
