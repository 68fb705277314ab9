package runner

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/netauto/jobengine/internal/domain"
)

// Coordinator is the engine's single public entry point (spec.md §4.4): it
// selects ServiceRunner vs WorkflowTraverser by run.Job.Kind, composes the
// outer result envelope, and best-effort invokes git export and
// notifications — neither of which may alter the computed success.
type Coordinator struct {
	serviceRunner *ServiceRunner
	traverser     *WorkflowTraverser
	eval          domain.Evaluator
	results       *InMemoryResultStore
	notifier      domain.Notifier
	gitExporter   domain.GitExporter
	gitRepoPath   string
	logger        zerolog.Logger
}

func NewCoordinator(serviceRunner *ServiceRunner, traverser *WorkflowTraverser, eval domain.Evaluator, results *InMemoryResultStore, notifier domain.Notifier, gitExporter domain.GitExporter, gitRepoPath string, logger zerolog.Logger) *Coordinator {
	c := &Coordinator{
		serviceRunner: serviceRunner,
		traverser:     traverser,
		eval:          eval,
		results:       results,
		notifier:      notifier,
		gitExporter:   gitExporter,
		gitRepoPath:   gitRepoPath,
		logger:        logger,
	}
	traverser.SetDispatcher(c)
	return c
}

// Run executes run to completion and returns its stable result envelope.
// No error ever crosses this boundary: every failure is reified into the
// Result itself (spec.md §7).
func (c *Coordinator) Run(ctx context.Context, run *domain.Run, payload domain.Payload) domain.Result {
	c.results.ResetProgress(ctx, run.Runtime)

	var result domain.Result
	switch run.Job.Kind {
	case domain.KindService:
		result = c.serviceRunner.BuildResults(ctx, run, payload)
	case domain.KindWorkflow:
		result = c.traverser.BuildResults(ctx, run, payload)
	default:
		result = domain.NewFailure(domain.NewDomainError(domain.ErrCodeInvalid, "unknown job kind", nil))
	}
	result.Runtime = run.Runtime

	if run.Job.SuccessQuery != "" {
		if overridden, err := c.eval.EvalBool(ctx, run.Job.SuccessQuery, domain.EvaluationContext{
			Payload: resultPayload(result),
			Job:     run.Job,
		}); err == nil {
			result.Success = domain.BoolState(overridden)
		} else {
			c.logger.Warn().Err(err).Str("job", run.Job.Name).Msg("runner: success_query evaluation failed, keeping computed success")
		}
	}

	_ = c.results.Record(ctx, run.Runtime, run.JobID, nil, result)

	if run.Job.PushToGit && c.gitExporter != nil {
		c.exportToGit(ctx, run.Job.Name, result)
	}
	if run.Job.SendNotification && c.notifier != nil {
		c.notify(ctx, run, result)
	}

	return result
}

// exportToGit is best-effort: a failure is logged and never reflected in
// the Run's result (spec.md §6 "Failure is swallowed").
func (c *Coordinator) exportToGit(ctx context.Context, jobName string, result domain.Result) {
	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		c.logger.Warn().Err(err).Str("job", jobName).Msg("runner: marshal result for git export failed")
		return
	}
	if err := c.gitExporter.PushResults(ctx, jobName, string(text), c.gitRepoPath); err != nil {
		c.logger.Warn().Err(err).Str("job", jobName).Msg("runner: git export failed")
	}
}

// notify is best-effort: a delivery failure is logged and never reflected
// in the Run's result.
func (c *Coordinator) notify(ctx context.Context, run *domain.Run, result domain.Result) {
	channel := domain.NotifyChannel(run.Job.NotificationMethod)
	if channel == "" {
		channel = domain.ChannelMail
	}
	if err := c.notifier.Notify(ctx, channel, run, result, run.Job.Recipients); err != nil {
		c.logger.Warn().Err(err).Str("job", run.Job.Name).Str("channel", string(channel)).Msg("runner: notification failed")
	}
}

// resultPayload exposes a completed Result to success_query as a read-only
// payload so the query can inspect e.g. results.devices.<name>.success.
func resultPayload(result domain.Result) domain.Payload {
	return domain.Payload{"results": result.Results, "success": result.Success.Bool(), "error": result.Error}
}
