// Command jobengine boots a minimal in-memory engine, seeds a demo
// Start -> job1 -> End Workflow with two Devices, runs it once, and prints
// the resulting envelope.
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/netauto/jobengine"
	"github.com/netauto/jobengine/internal/config"
	"github.com/netauto/jobengine/internal/domain"
	"github.com/netauto/jobengine/internal/storage"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	store := storage.NewMemoryStore()
	workflowID := seedDemoWorkflow(store)

	engine := jobengine.New(jobengine.Options{
		Store:  store,
		Config: *cfg,
		Logger: logger,
	})

	result, err := engine.Submit(context.Background(), workflowID, domain.Payload{})
	if err != nil {
		logger.Fatal().Err(err).Msg("jobengine: run failed")
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	logger.Info().RawJSON("result", out).Msg("jobengine: run finished")
}

// seedDemoWorkflow builds the smallest Workflow that exercises the engine
// end to end: Start -> job1 (fanned out over two Devices) -> End.
func seedDemoWorkflow(store *storage.MemoryStore) uuid.UUID {
	router1 := &domain.Device{ID: uuid.New(), Name: "router1", Vendor: "cisco", OS: "ios"}
	router2 := &domain.Device{ID: uuid.New(), Name: "router2", Vendor: "juniper", OS: "junos"}
	store.PutDevice(router1)
	store.PutDevice(router2)

	start := &domain.Job{
		ID: uuid.New(), Name: "Start", Kind: domain.KindService,
		Service: &domain.ServiceSpec{HandlerKind: "swiss_army", HandlerName: "Start"},
	}
	end := &domain.Job{
		ID: uuid.New(), Name: "End", Kind: domain.KindService,
		Service: &domain.ServiceSpec{HandlerKind: "swiss_army", HandlerName: "End"},
	}
	job1 := &domain.Job{
		ID: uuid.New(), Name: "job1", Kind: domain.KindService, HasTargets: true,
		Devices: []uuid.UUID{router1.ID, router2.ID},
		Service: &domain.ServiceSpec{HandlerKind: "swiss_army", HandlerName: "job1", Multiprocessing: true, MaxProcesses: 2},
	}
	store.PutJob(start)
	store.PutJob(end)
	store.PutJob(job1)

	workflow := &domain.Job{
		ID: uuid.New(), Name: "demo-workflow", Kind: domain.KindWorkflow,
		Workflow: &domain.WorkflowSpec{
			Members:    []uuid.UUID{start.ID, job1.ID, end.ID},
			StartJobs:  []uuid.UUID{start.ID},
			TraversalMode: domain.TraversalService,
		},
	}
	store.PutJob(workflow)

	store.PutEdge(&domain.Edge{ID: uuid.New(), WorkflowID: workflow.ID, FromJobID: start.ID, ToJobID: job1.ID, Subtype: domain.EdgeSuccess})
	store.PutEdge(&domain.Edge{ID: uuid.New(), WorkflowID: workflow.ID, FromJobID: job1.ID, ToJobID: end.ID, Subtype: domain.EdgeSuccess})

	return workflow.ID
}
