package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhook_Send(t *testing.T) {
	var got map[string]any
	var auth string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	ch := NewWebhook(ts.URL, "tok-9", 5*time.Second)
	event := Event{
		Kind:        KindPersistenceDegraded,
		Severity:    SeverityCritical,
		ExecutionID: "exec-3",
		Payload:     map[string]any{"operation": "save execution"},
	}

	err := ch.Send(context.Background(), event, Render(event))
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-9", auth)
	assert.Equal(t, "persistence_degraded", got["kind"])
	assert.Equal(t, "critical", got["severity"])
	assert.Equal(t, "exec-3", got["execution_id"])
	assert.Contains(t, got["subject"], "[CRITICAL]")
	assert.Contains(t, got["body"], "save execution")
}

func TestWebhook_Send_OmitsAuthHeaderWithoutToken(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer ts.Close()

	ch := NewWebhook(ts.URL, "", 0)
	require.NoError(t, ch.Send(context.Background(), Event{Kind: KindQueueEmpty}, Message{}))
	assert.Empty(t, auth)
}

func TestWebhook_Send_EndpointError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer ts.Close()

	ch := NewWebhook(ts.URL, "tok", 0)
	err := ch.Send(context.Background(), Event{Kind: KindQueueEmpty}, Message{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
