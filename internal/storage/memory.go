// Package storage provides EntityStore implementations: an in-memory store
// for tests and small deployments, and a Postgres-backed store using bun.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/netauto/jobengine/internal/domain"
)

// MemoryStore is a mutex-guarded in-memory EntityStore, grounded on the
// teacher's map-backed storage.MemoryStore idiom.
type MemoryStore struct {
	mu sync.RWMutex

	devices map[uuid.UUID]*domain.Device
	jobs    map[uuid.UUID]*domain.Job
	edges   map[uuid.UUID]*domain.Edge
	runs    map[string]*domain.Run

	devicesByName    map[string]uuid.UUID
	devicesByAddress map[string]uuid.UUID
	jobsByName       map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:          make(map[uuid.UUID]*domain.Device),
		jobs:             make(map[uuid.UUID]*domain.Job),
		edges:            make(map[uuid.UUID]*domain.Edge),
		runs:             make(map[string]*domain.Run),
		devicesByName:    make(map[string]uuid.UUID),
		devicesByAddress: make(map[string]uuid.UUID),
		jobsByName:       make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) PutDevice(d *domain.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.ID] = d
	s.devicesByName[d.Name] = d.ID
	if d.Address != "" {
		s.devicesByAddress[d.Address] = d.ID
	}
}

func (s *MemoryStore) PutJob(j *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	s.jobsByName[j.Name] = j.ID
}

func (s *MemoryStore) PutEdge(e *domain.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[e.ID] = e
}

func (s *MemoryStore) FetchByID(ctx context.Context, kind domain.EntityKind, id uuid.UUID) (any, error) {
	switch kind {
	case domain.KindDeviceEntity:
		s.mu.RLock()
		defer s.mu.RUnlock()
		d, ok := s.devices[id]
		if !ok {
			return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("device %s not found", id), nil)
		}
		return d, nil
	case domain.KindJobEntity:
		return s.FetchJob(ctx, id)
	case domain.KindEdgeEntity:
		s.mu.RLock()
		defer s.mu.RUnlock()
		e, ok := s.edges[id]
		if !ok {
			return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("edge %s not found", id), nil)
		}
		return e, nil
	default:
		return nil, domain.NewDomainError(domain.ErrCodeInvalid, fmt.Sprintf("unsupported entity kind %s", kind), nil)
	}
}

func (s *MemoryStore) FetchByName(ctx context.Context, kind domain.EntityKind, name string) (any, error) {
	switch kind {
	case domain.KindDeviceEntity:
		s.mu.RLock()
		id, ok := s.devicesByName[name]
		s.mu.RUnlock()
		if !ok {
			return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("device %q not found", name), nil)
		}
		return s.FetchByID(ctx, kind, id)
	case domain.KindJobEntity:
		return s.FetchJobByName(ctx, name)
	default:
		return nil, domain.NewDomainError(domain.ErrCodeInvalid, fmt.Sprintf("unsupported entity kind %s", kind), nil)
	}
}

func (s *MemoryStore) FetchDeviceByAddress(ctx context.Context, address string) (*domain.Device, error) {
	s.mu.RLock()
	id, ok := s.devicesByAddress[address]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("device with address %q not found", address), nil)
	}
	d, err := s.FetchByID(ctx, domain.KindDeviceEntity, id)
	if err != nil {
		return nil, err
	}
	return d.(*domain.Device), nil
}

func (s *MemoryStore) FetchDevices(ctx context.Context, ids []uuid.UUID) ([]*domain.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Device, 0, len(ids))
	for _, id := range ids {
		d, ok := s.devices[id]
		if !ok {
			return nil, domain.NewDomainError(domain.ErrCodeResolution, fmt.Sprintf("device %s not found", id), nil)
		}
		out = append(out, d)
	}
	return out, nil
}

// FetchPoolDevices is not modeled by a Pool entity in this reference store;
// it always returns an empty slice (no pool currently registered resolves
// to any devices). A real deployment's EntityStore owns the pool/device
// membership join that spec.md §4.1 sources from.
func (s *MemoryStore) FetchPoolDevices(ctx context.Context, poolIDs []uuid.UUID) ([]*domain.Device, error) {
	return nil, nil
}

func (s *MemoryStore) FetchJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("job %s not found", id), nil)
	}
	return j, nil
}

func (s *MemoryStore) FetchJobByName(ctx context.Context, name string) (*domain.Job, error) {
	s.mu.RLock()
	id, ok := s.jobsByName[name]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("job %q not found", name), nil)
	}
	return s.FetchJob(ctx, id)
}

func (s *MemoryStore) FetchEdgesFrom(ctx context.Context, workflowID, jobID uuid.UUID) ([]*domain.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Edge
	for _, e := range s.edges {
		if e.WorkflowID == workflowID && e.FromJobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) FetchEdgesTo(ctx context.Context, workflowID, jobID uuid.UUID) ([]*domain.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Edge
	for _, e := range s.edges {
		if e.WorkflowID == workflowID && e.ToJobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) FetchEdgesByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*domain.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Edge
	for _, e := range s.edges {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.Runtime] = run
	return nil
}

// Commit is a no-op for the in-memory store: every write above is already
// visible the instant it is made.
func (s *MemoryStore) Commit(ctx context.Context) error { return nil }
