package progress

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type allowAll struct{}

func (allowAll) Allow(r *http.Request) bool { return true }

type denyAll struct{}

func (denyAll) Allow(r *http.Request) bool { return false }

func TestHub_ServeWS_RejectsWhenAuthCheckerDenies(t *testing.T) {
	hub := NewHub(denyAll{}, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?runtime=rt-1"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_ServeWS_RequiresRuntimeParam(t *testing.T) {
	hub := NewHub(allowAll{}, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_PublishDeliversToSubscriberOfSameRuntime(t *testing.T) {
	hub := NewHub(allowAll{}, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?runtime=rt-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub's register channel time to process before publishing.
	time.Sleep(50 * time.Millisecond)
	hub.Publish(Event{Runtime: "rt-1", JobName: "job1", Completed: 1, Total: 2})

	var got Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "job1", got.JobName)
	assert.Equal(t, 1, got.Completed)
}

func TestHub_PublishToOtherRuntimeDoesNotDeliver(t *testing.T) {
	hub := NewHub(allowAll{}, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?runtime=rt-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	hub.Publish(Event{Runtime: "rt-other", JobName: "job1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var got Event
	err = conn.ReadJSON(&got)
	assert.Error(t, err, "a subscriber of rt-1 must not receive events for rt-other")
}
