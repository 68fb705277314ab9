// Package jobengine wires the internal runner, storage, evaluator, handler,
// notification, git-export, and progress packages into a single entry
// point for embedding applications.
package jobengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/rs/zerolog"

	"github.com/netauto/jobengine/internal/config"
	"github.com/netauto/jobengine/internal/domain"
	"github.com/netauto/jobengine/internal/evalexpr"
	"github.com/netauto/jobengine/internal/gitexport"
	"github.com/netauto/jobengine/internal/handlers"
	"github.com/netauto/jobengine/internal/notify"
	"github.com/netauto/jobengine/internal/progress"
	"github.com/netauto/jobengine/internal/runner"
	"github.com/netauto/jobengine/internal/storage"
)

// Engine is the package's single public facade: submit a Job by id and get
// back its stable result envelope.
type Engine struct {
	store       domain.EntityStore
	coordinator *runner.Coordinator
	results     *runner.InMemoryResultStore
	progress    *progress.Hub
	handlers    *handlers.Registry

	mu     sync.Mutex
	active map[string]*domain.Run // runtime -> top-level Run, for Stop
}

// Options configures the pieces an embedding application usually wants to
// override; zero-value Options is a usable in-memory, handler-only engine
// with no git export, no mail/webhook notification, and no AI summarizer.
type Options struct {
	Store        domain.EntityStore // nil uses a fresh storage.MemoryStore
	Config       config.Config
	OpenAIAPIKey string
	AIModel      string
	SlackWebhook string
	MattermostWebhook string
	SMTPFrom     string
	AuthChecker  progress.AuthChecker
	Logger       zerolog.Logger
}

func New(opts Options) *Engine {
	store := opts.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}

	logger := opts.Logger
	eval := evalexpr.New(logger)
	resolver := runner.NewDeviceResolver(store, eval)
	results := runner.NewInMemoryResultStore(logger)

	var mail *notify.MailNotifier
	if opts.Config.SMTPAddr != "" {
		mail = notify.NewMailNotifier(opts.Config.SMTPAddr, opts.SMTPFrom, nil)
	}
	var slack, mattermost *notify.WebhookNotifier
	if opts.SlackWebhook != "" {
		slack = notify.NewWebhookNotifier(opts.SlackWebhook)
	}
	if opts.MattermostWebhook != "" {
		mattermost = notify.NewWebhookNotifier(opts.MattermostWebhook)
	}
	notifier := notify.NewMultiplexer(mail, slack, mattermost, logger)

	var aiClient *openai.Client
	if opts.OpenAIAPIKey != "" {
		aiClient = openai.NewClient(opts.OpenAIAPIKey)
	}
	registry := handlers.New(notifier, aiClient, opts.AIModel, logger)

	serviceRunner := runner.NewServiceRunner(resolver, registry, results, logger)
	traverser := runner.NewWorkflowTraverser(store, resolver, eval, results, newRuntimeID, logger)
	exporter := gitexport.New(logger)
	coordinator := runner.NewCoordinator(serviceRunner, traverser, eval, results, notifier, exporter, opts.Config.GitExportRepoPath, logger)

	hub := progress.NewHub(opts.AuthChecker, logger)

	return &Engine{
		store:       store,
		coordinator: coordinator,
		results:     results,
		progress:    hub,
		handlers:    registry,
		active:      make(map[string]*domain.Run),
	}
}

// Handlers exposes the swiss-army handler registry so an embedding
// application can Register its own job1/job2-style bodies.
func (e *Engine) Handlers() *handlers.Registry { return e.handlers }

// Progress exposes the websocket progress broadcaster.
func (e *Engine) Progress() *progress.Hub { return e.progress }

// Store exposes the underlying EntityStore so callers can seed Devices,
// Jobs, and Edges (or swap in a Postgres-backed storage.BunStore).
func (e *Engine) Store() domain.EntityStore { return e.store }

// Submit creates a top-level Run of jobID, executes it to completion, and
// publishes one progress event for it on the Hub once it has finished.
func (e *Engine) Submit(ctx context.Context, jobID uuid.UUID, payload domain.Payload) (domain.Result, error) {
	job, err := e.store.FetchJob(ctx, jobID)
	if err != nil {
		return domain.Result{}, fmt.Errorf("jobengine: submit: %w", err)
	}
	if payload == nil {
		payload = domain.Payload{}
	}

	runtime := newRuntimeID()
	run := domain.NewRun(runtime, job, nil, nil, "", nil)
	if err := e.store.CreateRun(ctx, run); err != nil {
		return domain.Result{}, fmt.Errorf("jobengine: create run: %w", err)
	}
	if err := e.store.Commit(ctx); err != nil {
		return domain.Result{}, fmt.Errorf("jobengine: commit run: %w", err)
	}

	e.mu.Lock()
	e.active[runtime] = run
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, runtime)
		e.mu.Unlock()
	}()

	result := e.coordinator.Run(ctx, run, payload)
	e.progress.Publish(progress.Event{Runtime: runtime, Completed: 1, Failed: boolToInt(!result.Success.Bool()), Total: 1})
	return result, nil
}

// Stop requests cooperative cancellation of the top-level Run identified by
// runtime (spec.md §5 "Cancellation"). It has no effect on Runs that have
// already completed or that are unknown to this Engine.
func (e *Engine) Stop(runtime string) bool {
	e.mu.Lock()
	run, ok := e.active[runtime]
	e.mu.Unlock()
	if !ok {
		return false
	}
	run.RequestStop()
	return true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func newRuntimeID() string {
	return time.Now().UTC().Format(time.RFC3339Nano) + "-" + uuid.NewString()
}
