// ABOUTME: Tests for the OpenAI Assistants invoker against an httptest server.
// ABOUTME: Covers the thread/run/reply flow, thread reuse and the busy signal.

package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type assistantsAPI struct {
	threadsCreated atomic.Int32
	runPolls       atomic.Int32
	pollsUntilDone int32
	busyOnMessage  bool
	reply          string
}

func (a *assistantsAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/threads":
			a.threadsCreated.Add(1)
			json.NewEncoder(w).Encode(map[string]any{"id": "thread-1"})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
			if a.busyOnMessage {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": "Can't add messages to thread while a run is active"},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"id": "msg-1"})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/runs"):
			json.NewEncoder(w).Encode(map[string]any{"id": "run-1", "status": "queued"})
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/runs/"):
			status := "in_progress"
			if a.runPolls.Add(1) >= a.pollsUntilDone {
				status = "completed"
			}
			json.NewEncoder(w).Encode(map[string]any{"id": "run-1", "status": status})
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/messages"):
			json.NewEncoder(w).Encode(map[string]any{
				"data": []any{
					map[string]any{
						"role": "assistant",
						"content": []any{
							map[string]any{"text": map[string]any{"value": a.reply}},
						},
					},
					map[string]any{"role": "user", "content": []any{}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func newInvoker(t *testing.T, api *assistantsAPI) *OpenAIInvoker {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return NewOpenAIInvoker(OpenAIConfig{
		BaseURL:      srv.URL,
		APIKey:       "sk-test",
		AssistantID:  "asst_1",
		PollInterval: time.Millisecond,
	}, nil)
}

func TestInvoke_ReturnsAssistantReply(t *testing.T) {
	api := &assistantsAPI{pollsUntilDone: 2, reply: "Hola, ¿en qué te ayudo?"}
	inv := newInvoker(t, api)

	reply, err := inv.Invoke(context.Background(), "conv-1", "hola")

	require.NoError(t, err)
	assert.Equal(t, "Hola, ¿en qué te ayudo?", reply)
	assert.GreaterOrEqual(t, api.runPolls.Load(), int32(2))
}

func TestInvoke_ReusesThreadPerConversation(t *testing.T) {
	api := &assistantsAPI{pollsUntilDone: 1, reply: "ok"}
	inv := newInvoker(t, api)

	_, err := inv.Invoke(context.Background(), "conv-1", "primero")
	require.NoError(t, err)
	_, err = inv.Invoke(context.Background(), "conv-1", "segundo")
	require.NoError(t, err)

	assert.Equal(t, int32(1), api.threadsCreated.Load())
}

func TestInvoke_BusySignalMapsToErrBusy(t *testing.T) {
	api := &assistantsAPI{busyOnMessage: true}
	inv := newInvoker(t, api)

	_, err := inv.Invoke(context.Background(), "conv-1", "hola")

	require.Error(t, err)
	assert.True(t, IsBusy(err))
}
