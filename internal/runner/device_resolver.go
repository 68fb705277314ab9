// Package runner implements the core execution engine: DeviceResolver,
// ServiceRunner, WorkflowTraverser, and the Coordinator that dispatches
// between them.
package runner

import (
	"context"
	"fmt"

	"github.com/netauto/jobengine/internal/domain"
)

// DeviceResolver computes the Set of target Devices for a Run, per
// spec.md §4.1.
type DeviceResolver struct {
	store domain.EntityStore
	eval  domain.Evaluator
}

func NewDeviceResolver(store domain.EntityStore, eval domain.Evaluator) *DeviceResolver {
	return &DeviceResolver{store: store, eval: eval}
}

// Compute resolves run's target Devices.
//
//   - If run.Properties["devices"] is set, those ids are resolved directly.
//   - Else union run.Job.Devices with every device from every Pool in
//     run.Job.Pools.
//   - If run.Job.TargetQuery is set, evaluate it in the payload context;
//     the result is a list of strings interpreted according to
//     QueryPropertyType and mapped to Devices.
//
// Failure to resolve any queried entry raises a ResolutionError.
func (r *DeviceResolver) Compute(ctx context.Context, run *domain.Run, payload domain.Payload) (*domain.DeviceSet, error) {
	if ids, ok := run.PropertyDeviceIDs(); ok {
		devices, err := r.store.FetchDevices(ctx, ids)
		if err != nil {
			return nil, domain.NewDomainError(domain.ErrCodeResolution, "resolve run.properties.devices", err)
		}
		return toSet(devices), nil
	}

	set := domain.NewDeviceSet()
	if len(run.Job.Devices) > 0 {
		devices, err := r.store.FetchDevices(ctx, run.Job.Devices)
		if err != nil {
			return nil, domain.NewDomainError(domain.ErrCodeResolution, "resolve job.devices", err)
		}
		for _, d := range devices {
			set.Add(d)
		}
	}
	if len(run.Job.Pools) > 0 {
		devices, err := r.store.FetchPoolDevices(ctx, run.Job.Pools)
		if err != nil {
			return nil, domain.NewDomainError(domain.ErrCodeResolution, "resolve job.pools", err)
		}
		for _, d := range devices {
			set.Add(d)
		}
	}

	if run.Job.TargetQuery != "" {
		if r.eval == nil {
			return nil, domain.NewDomainError(domain.ErrCodeResolution, "target_query set but no evaluator configured", nil)
		}
		names, err := r.eval.EvalList(ctx, run.Job.TargetQuery, domain.EvaluationContext{Payload: payload, Job: run.Job})
		if err != nil {
			return nil, domain.NewDomainError(domain.ErrCodeResolution, "target_query evaluation failed", err)
		}
		for _, name := range names {
			var (
				device *domain.Device
				err    error
			)
			switch run.Job.QueryPropertyType {
			case domain.QueryByIPAddress:
				device, err = r.store.FetchDeviceByAddress(ctx, name)
			default:
				var entity any
				entity, err = r.store.FetchByName(ctx, domain.KindDeviceEntity, name)
				if err == nil {
					var ok bool
					device, ok = entity.(*domain.Device)
					if !ok {
						return nil, domain.NewDomainError(domain.ErrCodeResolution, fmt.Sprintf("target_query entry %q is not a device", name), nil)
					}
				}
			}
			if err != nil {
				return nil, domain.NewDomainError(domain.ErrCodeResolution, fmt.Sprintf("target_query entry %q did not resolve to a device", name), err)
			}
			set.Add(device)
		}
	}

	return set, nil
}

func toSet(devices []*domain.Device) *domain.DeviceSet {
	set := domain.NewDeviceSet()
	for _, d := range devices {
		set.Add(d)
	}
	return set
}
