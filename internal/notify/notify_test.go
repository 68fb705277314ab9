package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netauto/jobengine/internal/domain"
)

func TestMultiplexer_UnconfiguredChannelErrors(t *testing.T) {
	m := NewMultiplexer(nil, nil, nil, zerolog.Nop())
	err := m.Notify(context.Background(), domain.ChannelSlack, nil, domain.Result{}, nil)
	assert.Error(t, err)
}

func TestMultiplexer_UnknownChannelErrors(t *testing.T) {
	m := NewMultiplexer(nil, nil, nil, zerolog.Nop())
	err := m.Notify(context.Background(), domain.NotifyChannel("pager"), nil, domain.Result{}, nil)
	assert.Error(t, err)
}

func TestMultiplexer_RoutesToConfiguredWebhook(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	slack := NewWebhookNotifier(srv.URL)
	m := NewMultiplexer(nil, slack, nil, zerolog.Nop())

	job := &domain.Job{Name: "demo"}
	run := domain.NewRun("rt-1", job, nil, nil, "", nil)
	err := m.Notify(context.Background(), domain.ChannelSlack, run, domain.Result{Success: domain.Success}, []string{"alice"})
	require.NoError(t, err)
	assert.Contains(t, gotBody["text"], "demo finished")
	assert.Contains(t, gotBody["text"], "alice")
}

func TestWebhookNotifier_NonSuccessStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Notify(context.Background(), nil, domain.Result{}, nil)
	assert.Error(t, err)
}

func TestMailNotifier_NoRecipientsErrors(t *testing.T) {
	n := NewMailNotifier("localhost:25", "bot@example.com", nil)
	err := n.Notify(context.Background(), nil, domain.Result{Success: domain.Success}, nil)
	assert.Error(t, err)
}
