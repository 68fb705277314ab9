package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/netauto/jobengine/internal/domain"
)

// BunStore is the Postgres-backed EntityStore reference implementation,
// grounded on the teacher's bun_store.go (same NewDB/pgdriver/pgdialect
// wiring and schema-bootstrap idiom).
type BunStore struct {
	db *bun.DB
}

func NewBunStore(dsn string) *BunStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunStore{db: db}
}

func (s *BunStore) InitSchema(ctx context.Context) error {
	models := []any{
		(*DeviceModel)(nil),
		(*JobModel)(nil),
		(*EdgeModel)(nil),
		(*RunModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *BunStore) Close() error { return s.db.Close() }

// DeviceModel is the row shape for Devices.
type DeviceModel struct {
	bun.BaseModel `bun:"table:devices,alias:d"`

	ID         uuid.UUID      `bun:"id,pk"`
	Name       string         `bun:"name,unique"`
	Vendor     string         `bun:"vendor"`
	OS         string         `bun:"os"`
	Address    string         `bun:"address"`
	Attributes map[string]any `bun:"attributes,type:jsonb"`
}

func (m *DeviceModel) ToDomain() *domain.Device {
	return &domain.Device{
		ID: m.ID, Name: m.Name, Vendor: m.Vendor, OS: m.OS, Address: m.Address,
		Attributes: m.Attributes,
	}
}

func NewDeviceModel(d *domain.Device) *DeviceModel {
	return &DeviceModel{ID: d.ID, Name: d.Name, Vendor: d.Vendor, OS: d.OS, Address: d.Address, Attributes: d.Attributes}
}

// JobModel is the row shape for Jobs; Service/Workflow specific fields are
// stored as a single jsonb "spec" column, mirroring the teacher's
// WorkflowModel.Spec jsonb column.
type JobModel struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID                uuid.UUID `bun:"id,pk"`
	Name              string    `bun:"name,unique"`
	Kind              string    `bun:"kind"`
	Retries           int       `bun:"retries"`
	RetryDelaySeconds int64     `bun:"retry_delay_seconds"`
	WaitingTimeSeconds int64    `bun:"waiting_time_seconds"`
	Skip              bool      `bun:"skip"`
	SkipQuery         string    `bun:"skip_query"`
	TargetQuery       string    `bun:"target_query"`
	HasTargets        bool      `bun:"has_targets"`
	Spec              []byte    `bun:"spec,type:jsonb"`
}

func (s *BunStore) SaveJob(ctx context.Context, j *domain.Job, specJSON []byte) error {
	model := &JobModel{
		ID: j.ID, Name: j.Name, Kind: string(j.Kind),
		Retries: j.Retries, RetryDelaySeconds: int64(j.RetryDelay.Seconds()),
		WaitingTimeSeconds: int64(j.WaitingTime.Seconds()),
		Skip: j.Skip, SkipQuery: j.SkipQuery, TargetQuery: j.TargetQuery,
		HasTargets: j.HasTargets, Spec: specJSON,
	}
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

// EdgeModel is the row shape for Edges.
type EdgeModel struct {
	bun.BaseModel `bun:"table:edges,alias:e"`

	ID         uuid.UUID `bun:"id,pk"`
	WorkflowID uuid.UUID `bun:"workflow_id"`
	FromJobID  uuid.UUID `bun:"from_job_id"`
	ToJobID    uuid.UUID `bun:"to_job_id"`
	Subtype    string    `bun:"subtype"`
}

func (m *EdgeModel) ToDomain() *domain.Edge {
	return &domain.Edge{ID: m.ID, WorkflowID: m.WorkflowID, FromJobID: m.FromJobID, ToJobID: m.ToJobID, Subtype: domain.EdgeSubtype(m.Subtype)}
}

func NewEdgeModel(e *domain.Edge) *EdgeModel {
	return &EdgeModel{ID: e.ID, WorkflowID: e.WorkflowID, FromJobID: e.FromJobID, ToJobID: e.ToJobID, Subtype: string(e.Subtype)}
}

func (s *BunStore) SaveEdge(ctx context.Context, e *domain.Edge) error {
	_, err := s.db.NewInsert().Model(NewEdgeModel(e)).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

// RunModel persists a Run for audit/history purposes; Runs are otherwise
// owned exclusively in memory by the executor that created them for the
// duration of traversal (spec.md §3 "Lifecycles").
type RunModel struct {
	bun.BaseModel `bun:"table:runs,alias:r"`

	Runtime       string    `bun:"runtime,pk"`
	JobID         uuid.UUID `bun:"job_id"`
	ParentRuntime string    `bun:"parent_runtime"`
	Properties    []byte    `bun:"properties,type:jsonb"`
}

func (s *BunStore) CreateRun(ctx context.Context, run *domain.Run) error {
	props, err := json.Marshal(run.Properties)
	if err != nil {
		return domain.NewDomainError(domain.ErrCodePersistence, "marshal run properties", err)
	}
	model := &RunModel{Runtime: run.Runtime, JobID: run.JobID, ParentRuntime: run.ParentRuntime, Properties: props}
	if _, err := s.db.NewInsert().Model(model).Exec(ctx); err != nil {
		return domain.NewDomainError(domain.ErrCodePersistence, "insert run", err)
	}
	return nil
}

func (s *BunStore) Commit(ctx context.Context) error { return nil }

func (s *BunStore) FetchByID(ctx context.Context, kind domain.EntityKind, id uuid.UUID) (any, error) {
	switch kind {
	case domain.KindDeviceEntity:
		model := new(DeviceModel)
		if err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx); err != nil {
			return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("device %s", id), err)
		}
		return model.ToDomain(), nil
	case domain.KindJobEntity:
		return s.FetchJob(ctx, id)
	case domain.KindEdgeEntity:
		model := new(EdgeModel)
		if err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx); err != nil {
			return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("edge %s", id), err)
		}
		return model.ToDomain(), nil
	default:
		return nil, domain.NewDomainError(domain.ErrCodeInvalid, fmt.Sprintf("unsupported entity kind %s", kind), nil)
	}
}

func (s *BunStore) FetchByName(ctx context.Context, kind domain.EntityKind, name string) (any, error) {
	switch kind {
	case domain.KindDeviceEntity:
		model := new(DeviceModel)
		if err := s.db.NewSelect().Model(model).Where("name = ?", name).Scan(ctx); err != nil {
			return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("device %q", name), err)
		}
		return model.ToDomain(), nil
	case domain.KindJobEntity:
		return s.FetchJobByName(ctx, name)
	default:
		return nil, domain.NewDomainError(domain.ErrCodeInvalid, fmt.Sprintf("unsupported entity kind %s", kind), nil)
	}
}

func (s *BunStore) FetchDeviceByAddress(ctx context.Context, address string) (*domain.Device, error) {
	model := new(DeviceModel)
	if err := s.db.NewSelect().Model(model).Where("address = ?", address).Scan(ctx); err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("device with address %q", address), err)
	}
	return model.ToDomain(), nil
}

func (s *BunStore) FetchDevices(ctx context.Context, ids []uuid.UUID) ([]*domain.Device, error) {
	var models []DeviceModel
	if err := s.db.NewSelect().Model(&models).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeResolution, "fetch devices", err)
	}
	out := make([]*domain.Device, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

// FetchPoolDevices is left unimplemented for the reference store: pool
// membership is a persistence-layer join outside the engine's scope (spec.md
// §1 excludes the ORM/schema layer); a production deployment provides its
// own join here.
func (s *BunStore) FetchPoolDevices(ctx context.Context, poolIDs []uuid.UUID) ([]*domain.Device, error) {
	return nil, nil
}

func (s *BunStore) FetchJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	model := new(JobModel)
	if err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("job %s", id), err)
	}
	return jobFromModel(model)
}

func (s *BunStore) FetchJobByName(ctx context.Context, name string) (*domain.Job, error) {
	model := new(JobModel)
	if err := s.db.NewSelect().Model(model).Where("name = ?", name).Scan(ctx); err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("job %q", name), err)
	}
	return jobFromModel(model)
}

func jobFromModel(model *JobModel) (*domain.Job, error) {
	j := &domain.Job{
		ID: model.ID, Name: model.Name, Kind: domain.JobKind(model.Kind),
		Retries:     model.Retries,
		Skip:        model.Skip,
		SkipQuery:   model.SkipQuery,
		TargetQuery: model.TargetQuery,
		HasTargets:  model.HasTargets,
	}
	switch j.Kind {
	case domain.KindService:
		var spec domain.ServiceSpec
		if len(model.Spec) > 0 {
			if err := json.Unmarshal(model.Spec, &spec); err != nil {
				return nil, domain.NewDomainError(domain.ErrCodePersistence, "decode service spec", err)
			}
		}
		j.Service = &spec
	case domain.KindWorkflow:
		var spec domain.WorkflowSpec
		if len(model.Spec) > 0 {
			if err := json.Unmarshal(model.Spec, &spec); err != nil {
				return nil, domain.NewDomainError(domain.ErrCodePersistence, "decode workflow spec", err)
			}
		}
		j.Workflow = &spec
	}
	return j, nil
}

func (s *BunStore) FetchEdgesFrom(ctx context.Context, workflowID, jobID uuid.UUID) ([]*domain.Edge, error) {
	var models []EdgeModel
	if err := s.db.NewSelect().Model(&models).Where("workflow_id = ? AND from_job_id = ?", workflowID, jobID).Scan(ctx); err != nil {
		return nil, domain.NewDomainError(domain.ErrCodePersistence, "fetch edges from", err)
	}
	out := make([]*domain.Edge, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

func (s *BunStore) FetchEdgesTo(ctx context.Context, workflowID, jobID uuid.UUID) ([]*domain.Edge, error) {
	var models []EdgeModel
	if err := s.db.NewSelect().Model(&models).Where("workflow_id = ? AND to_job_id = ?", workflowID, jobID).Scan(ctx); err != nil {
		return nil, domain.NewDomainError(domain.ErrCodePersistence, "fetch edges to", err)
	}
	out := make([]*domain.Edge, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

func (s *BunStore) FetchEdgesByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*domain.Edge, error) {
	var models []EdgeModel
	if err := s.db.NewSelect().Model(&models).Where("workflow_id = ?", workflowID).Scan(ctx); err != nil {
		return nil, domain.NewDomainError(domain.ErrCodePersistence, "fetch edges by workflow", err)
	}
	out := make([]*domain.Edge, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}
