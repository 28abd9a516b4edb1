// ABOUTME: HTTP webhook surface for inbound channel messages.
// ABOUTME: Provides POST /webhook/message and a health endpoint.

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// WebhookMessage is the JSON request body for POST /webhook/message.
type WebhookMessage struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	Channel        string `json:"channel,omitempty"`
	Sender         string `json:"sender,omitempty"`
	Text           string `json:"text"`
}

// APIServer exposes the gateway over HTTP for channel connectors.
type APIServer struct {
	gateway *Gateway
	logger  *slog.Logger
}

// NewAPIServer creates an APIServer for the given gateway.
func NewAPIServer(gateway *Gateway, logger *slog.Logger) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIServer{gateway: gateway, logger: logger.With("component", "api")}
}

// Routes registers the webhook endpoints on mux.
func (s *APIServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/webhook/message", s.handleMessage)
	mux.HandleFunc("/healthz", s.handleHealth)
}

func (s *APIServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req WebhookMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "conversation_id and text are required", http.StatusBadRequest)
		return
	}
	if req.MessageID == "" {
		req.MessageID = uuid.New().String()
	}
	if req.Channel == "" {
		req.Channel = "webhook"
	}

	// Processing continues after the response; the channel only needs the
	// ack, so the unit of work must outlive the request context.
	s.gateway.HandleInbound(context.WithoutCancel(r.Context()), InboundMessage{
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		Channel:        req.Channel,
		Sender:         req.Sender,
		Text:           req.Text,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "message_id": req.MessageID})
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
