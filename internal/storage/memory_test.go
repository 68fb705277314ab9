package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netauto/jobengine/internal/domain"
)

func TestMemoryStore_DeviceRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	d := &domain.Device{ID: uuid.New(), Name: "router1", Vendor: "cisco"}
	s.PutDevice(d)

	got, err := s.FetchByID(context.Background(), domain.KindDeviceEntity, d.ID)
	require.NoError(t, err)
	assert.Same(t, d, got)

	byName, err := s.FetchByName(context.Background(), domain.KindDeviceEntity, "router1")
	require.NoError(t, err)
	assert.Same(t, d, byName)

	_, err = s.FetchByID(context.Background(), domain.KindDeviceEntity, uuid.New())
	assert.Error(t, err)
}

func TestMemoryStore_JobRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	j := &domain.Job{ID: uuid.New(), Name: "Start", Kind: domain.KindService}
	s.PutJob(j)

	got, err := s.FetchJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Same(t, j, got)

	byName, err := s.FetchJobByName(context.Background(), "Start")
	require.NoError(t, err)
	assert.Same(t, j, byName)

	_, err = s.FetchJobByName(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMemoryStore_FetchDevices_FailsOnUnknownID(t *testing.T) {
	s := NewMemoryStore()
	r1 := &domain.Device{ID: uuid.New(), Name: "r1"}
	s.PutDevice(r1)

	_, err := s.FetchDevices(context.Background(), []uuid.UUID{r1.ID, uuid.New()})
	assert.Error(t, err)
}

func TestMemoryStore_EdgeQueries(t *testing.T) {
	s := NewMemoryStore()
	workflowID := uuid.New()
	other := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	e1 := &domain.Edge{ID: uuid.New(), WorkflowID: workflowID, FromJobID: a, ToJobID: b, Subtype: domain.EdgeSuccess}
	e2 := &domain.Edge{ID: uuid.New(), WorkflowID: workflowID, FromJobID: b, ToJobID: c, Subtype: domain.EdgeFailure}
	e3 := &domain.Edge{ID: uuid.New(), WorkflowID: other, FromJobID: a, ToJobID: b, Subtype: domain.EdgeSuccess}
	s.PutEdge(e1)
	s.PutEdge(e2)
	s.PutEdge(e3)

	all, err := s.FetchEdgesByWorkflow(context.Background(), workflowID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []*domain.Edge{e1, e2}, all, "edges from a different workflow must not leak in")

	from, err := s.FetchEdgesFrom(context.Background(), workflowID, a)
	require.NoError(t, err)
	assert.Equal(t, []*domain.Edge{e1}, from)

	to, err := s.FetchEdgesTo(context.Background(), workflowID, c)
	require.NoError(t, err)
	assert.Equal(t, []*domain.Edge{e2}, to)
}

func TestMemoryStore_CreateRunThenCommitIsNoop(t *testing.T) {
	s := NewMemoryStore()
	job := &domain.Job{ID: uuid.New(), Name: "svc", Kind: domain.KindService}
	run := domain.NewRun("rt-1", job, nil, nil, "", nil)

	require.NoError(t, s.CreateRun(context.Background(), run))
	require.NoError(t, s.Commit(context.Background()))
}

func TestMemoryStore_FetchPoolDevices_AlwaysEmpty(t *testing.T) {
	s := NewMemoryStore()
	devices, err := s.FetchPoolDevices(context.Background(), []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	assert.Empty(t, devices)
}
