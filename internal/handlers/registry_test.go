package handlers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netauto/jobengine/internal/domain"
	"github.com/netauto/jobengine/internal/runner"
)

func TestRegistry_Resolve_UnknownKind(t *testing.T) {
	r := New(nil, nil, "", zerolog.Nop())
	_, err := r.Resolve("other", "job1")
	assert.Error(t, err)
}

func TestRegistry_Resolve_UnknownName(t *testing.T) {
	r := New(nil, nil, "", zerolog.Nop())
	_, err := r.Resolve(HandlerKindSwissArmy, "nope")
	assert.Error(t, err)
}

func TestRegistry_StartAndEndAlwaysSucceed(t *testing.T) {
	r := New(nil, nil, "", zerolog.Nop())

	start, err := r.Resolve(HandlerKindSwissArmy, "Start")
	require.NoError(t, err)
	assert.True(t, start.Invoke(context.Background(), nil, domain.Payload{}).Success.Bool())

	end, err := r.Resolve(HandlerKindSwissArmy, "End")
	require.NoError(t, err)
	assert.True(t, end.Invoke(context.Background(), nil, domain.Payload{}).Success.Bool())
}

func TestRegistry_Register_OverridesBuiltin(t *testing.T) {
	r := New(nil, nil, "", zerolog.Nop())
	r.Register("job1", runner.HandlerFunc(func(ctx context.Context, d *domain.Device, p domain.Payload) domain.Result {
		return domain.Result{Success: domain.Failure, Error: "custom"}
	}))

	h, err := r.Resolve(HandlerKindSwissArmy, "job1")
	require.NoError(t, err)
	result := h.Invoke(context.Background(), nil, domain.Payload{})
	assert.False(t, result.Success.Bool())
	assert.Equal(t, "custom", result.Error)
}

func TestHandleProcessPayload1_ExtractsUptimeForDevice(t *testing.T) {
	r := New(nil, nil, "", zerolog.Nop())
	h, err := r.Resolve(HandlerKindSwissArmy, "process_payload1")
	require.NoError(t, err)

	device := &domain.Device{ID: uuid.New(), Name: "router1"}
	payload := domain.Payload{
		"get_facts": map[string]any{
			"results": map[string]any{
				"devices": map[string]any{
					"router1": map[string]any{
						"result": map[string]any{
							"get_facts": map[string]any{"uptime": float64(10000)},
						},
					},
				},
			},
		},
	}

	result := h.Invoke(context.Background(), device, payload)
	require.True(t, result.Success.Bool())
	assert.Equal(t, true, result.Results["uptime_less_50000"])
}

func TestHandleProcessPayload1_MissingDeviceFails(t *testing.T) {
	r := New(nil, nil, "", zerolog.Nop())
	h, err := r.Resolve(HandlerKindSwissArmy, "process_payload1")
	require.NoError(t, err)

	result := h.Invoke(context.Background(), nil, domain.Payload{})
	assert.False(t, result.Success.Bool())
}

func TestHandleProcessPayload1_MissingGetFactsFails(t *testing.T) {
	r := New(nil, nil, "", zerolog.Nop())
	h, err := r.Resolve(HandlerKindSwissArmy, "process_payload1")
	require.NoError(t, err)

	device := &domain.Device{ID: uuid.New(), Name: "router1"}
	result := h.Invoke(context.Background(), device, domain.Payload{})
	assert.False(t, result.Success.Bool())
}

// fakeNotifier records every call so tests can assert on channel/recipients
// without a real transport.
type fakeNotifier struct {
	calls []struct {
		channel    domain.NotifyChannel
		recipients []string
	}
	err error
}

func (f *fakeNotifier) Notify(ctx context.Context, channel domain.NotifyChannel, run *domain.Run, result domain.Result, recipients []string) error {
	f.calls = append(f.calls, struct {
		channel    domain.NotifyChannel
		recipients []string
	}{channel, recipients})
	return f.err
}

func TestNotifyHandler_DispatchesToConfiguredChannel(t *testing.T) {
	notifier := &fakeNotifier{}
	r := New(notifier, nil, "", zerolog.Nop())

	h, err := r.Resolve(HandlerKindSwissArmy, "slack_feedback_notification")
	require.NoError(t, err)

	result := h.Invoke(context.Background(), nil, domain.Payload{"recipients": []string{"#ops"}})
	require.True(t, result.Success.Bool())
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, domain.ChannelSlack, notifier.calls[0].channel)
}

func TestNotifyHandler_NoNotifierConfiguredFails(t *testing.T) {
	r := New(nil, nil, "", zerolog.Nop())
	h, err := r.Resolve(HandlerKindSwissArmy, "mail_feedback_notification")
	require.NoError(t, err)

	result := h.Invoke(context.Background(), nil, domain.Payload{})
	assert.False(t, result.Success.Bool())
}

func TestHandleAISummarize_NoClientConfiguredFails(t *testing.T) {
	r := New(nil, nil, "", zerolog.Nop())
	h, err := r.Resolve(HandlerKindSwissArmy, "ai_summarize")
	require.NoError(t, err)

	result := h.Invoke(context.Background(), nil, domain.Payload{})
	assert.False(t, result.Success.Bool())
}
