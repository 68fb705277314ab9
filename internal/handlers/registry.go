// Package handlers implements the process-wide swiss-army handler family:
// the built-in Service bodies dispatched by name (spec.md §9's "process-
// wide handler registry"), grounded on the original implementation's
// SwissArmyKnifeService.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/netauto/jobengine/internal/domain"
	"github.com/netauto/jobengine/internal/runner"
)

// HandlerKindSwissArmy is the one built-in handler family name.
const HandlerKindSwissArmy = "swiss_army"

// Registry resolves (kind, name) to a concrete runner.Handler. It is the Go
// rendition of the original's single class with one method per handler
// name, dispatched via getattr(self, self.name).
type Registry struct {
	notifier domain.Notifier
	ai       *openai.Client
	aiModel  string
	logger   zerolog.Logger

	extra map[string]runner.Handler
}

func New(notifier domain.Notifier, ai *openai.Client, aiModel string, logger zerolog.Logger) *Registry {
	if aiModel == "" {
		aiModel = openai.GPT4oMini
	}
	return &Registry{notifier: notifier, ai: ai, aiModel: aiModel, logger: logger, extra: map[string]runner.Handler{}}
}

// Register adds or overrides a handler name, for embedding applications
// that supply their own job1/job2-style bodies.
func (r *Registry) Register(name string, h runner.Handler) {
	r.extra[name] = h
}

func (r *Registry) Resolve(kind, name string) (runner.Handler, error) {
	if kind != HandlerKindSwissArmy {
		return nil, domain.NewDomainError(domain.ErrCodeHandler, fmt.Sprintf("unknown handler kind %q", kind), nil)
	}
	if h, ok := r.extra[name]; ok {
		return h, nil
	}
	switch name {
	case "Start", "start":
		return runner.HandlerFunc(handleStart), nil
	case "End", "end":
		return runner.HandlerFunc(handleEnd), nil
	case "job1":
		return runner.HandlerFunc(handleJob1), nil
	case "job2":
		return runner.HandlerFunc(handleJob2), nil
	case "process_payload1":
		return runner.HandlerFunc(handleProcessPayload1), nil
	case "notify_mail", "mail_feedback_notification":
		return runner.HandlerFunc(r.notifyHandler(domain.ChannelMail)), nil
	case "notify_slack", "slack_feedback_notification":
		return runner.HandlerFunc(r.notifyHandler(domain.ChannelSlack)), nil
	case "notify_mattermost", "mattermost_feedback_notification":
		return runner.HandlerFunc(r.notifyHandler(domain.ChannelMattermost)), nil
	case "ai_summarize":
		return runner.HandlerFunc(r.handleAISummarize), nil
	default:
		return nil, domain.NewDomainError(domain.ErrCodeHandler, fmt.Sprintf("unknown handler %q", name), nil)
	}
}

// handleStart/handleEnd are the two process-wide pseudo-services every
// Workflow must contain; both always succeed.
func handleStart(ctx context.Context, device *domain.Device, payload domain.Payload) domain.Result {
	return domain.Result{Success: domain.Success}
}

func handleEnd(ctx context.Context, device *domain.Device, payload domain.Payload) domain.Result {
	return domain.Result{Success: domain.Success}
}

// handleJob1 is invoked per device, with multiprocessing typically set.
func handleJob1(ctx context.Context, device *domain.Device, payload domain.Payload) domain.Result {
	return domain.Result{Success: domain.Success, Results: map[string]any{"result": ""}}
}

// handleJob2 is target-less, invoked once per Run.
func handleJob2(ctx context.Context, device *domain.Device, payload domain.Payload) domain.Result {
	return domain.Result{Success: domain.Success, Results: map[string]any{"result": ""}}
}

// handleProcessPayload1 reads a prior node's per-device result out of the
// payload for the device currently being visited — the idiom the original
// names explicitly: "we use the name of the device to get the result for
// that particular device."
func handleProcessPayload1(ctx context.Context, device *domain.Device, payload domain.Payload) domain.Result {
	if device == nil {
		return domain.NewFailure(domain.NewDomainError(domain.ErrCodeHandler, "process_payload1 requires a device", nil))
	}
	getFacts, ok := payload["get_facts"].(map[string]any)
	if !ok {
		return domain.NewFailure(domain.NewDomainError(domain.ErrCodeHandler, "process_payload1: payload.get_facts missing", nil))
	}
	uptime, err := extractUptime(getFacts, device.Name)
	if err != nil {
		return domain.NewFailure(domain.NewDomainError(domain.ErrCodeHandler, "process_payload1", err))
	}
	return domain.Result{
		Success: domain.Success,
		Results: map[string]any{"uptime_less_50000": uptime < 50000},
	}
}

func extractUptime(getFacts map[string]any, deviceName string) (float64, error) {
	results, ok := getFacts["results"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("get_facts.results missing")
	}
	devices, ok := results["devices"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("get_facts.results.devices missing")
	}
	entry, ok := devices[deviceName].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("no get_facts result for device %q", deviceName)
	}
	inner, ok := entry["result"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("device %q result missing", deviceName)
	}
	facts, ok := inner["get_facts"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("device %q get_facts missing", deviceName)
	}
	uptime, ok := facts["uptime"].(float64)
	if !ok {
		return 0, fmt.Errorf("device %q uptime missing or not numeric", deviceName)
	}
	return uptime, nil
}

// notifyHandler adapts the Registry's Notifier collaborator into a
// target-less Handler, one per channel, matching the original's three
// separate *_feedback_notification methods.
func (r *Registry) notifyHandler(channel domain.NotifyChannel) func(ctx context.Context, device *domain.Device, payload domain.Payload) domain.Result {
	return func(ctx context.Context, device *domain.Device, payload domain.Payload) domain.Result {
		if r.notifier == nil {
			return domain.NewFailure(domain.NewDomainError(domain.ErrCodeHandler, "no notifier configured", nil))
		}
		recipients, _ := payload["recipients"].([]string)
		if err := r.notifier.Notify(ctx, channel, nil, domain.Result{Results: payload}, recipients); err != nil {
			return domain.NewFailure(domain.NewDomainError(domain.ErrCodeHandler, "feedback notification failed", err))
		}
		return domain.Result{Success: domain.Success}
	}
}

// handleAISummarize is a supplement beyond the original's handler family:
// it asks a language model to summarize the payload accumulated so far,
// storing the prose under result.summary. Any OpenAI API error becomes a
// per-device (or target-less) handler failure — never a panic, never a
// Run abort.
func (r *Registry) handleAISummarize(ctx context.Context, device *domain.Device, payload domain.Payload) domain.Result {
	if r.ai == nil {
		return domain.NewFailure(domain.NewDomainError(domain.ErrCodeHandler, "ai_summarize: no OpenAI client configured", nil))
	}
	prompt, ok := payload["summarize_prompt"].(string)
	if !ok || prompt == "" {
		prompt = "Summarize the automation results gathered so far in two sentences."
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.NewFailure(domain.NewDomainError(domain.ErrCodeHandler, "ai_summarize: encode payload", err))
	}
	resp, err := r.ai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.aiModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You summarize network automation run results concisely for an operator."},
			{Role: openai.ChatMessageRoleUser, Content: prompt + "\n\n" + string(data)},
		},
	})
	if err != nil {
		return domain.NewFailure(domain.NewDomainError(domain.ErrCodeHandler, "ai_summarize: chat completion failed", err))
	}
	if len(resp.Choices) == 0 {
		return domain.NewFailure(domain.NewDomainError(domain.ErrCodeHandler, "ai_summarize: empty completion", nil))
	}
	return domain.Result{Success: domain.Success, Results: map[string]any{"summary": resp.Choices[0].Message.Content}}
}
