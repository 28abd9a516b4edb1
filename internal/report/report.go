// ABOUTME: Operator notifications for failures and reservation summaries.
// ABOUTME: Sends to a designated operator conversation with a webhook fallback.

package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Sender delivers a message to a conversation on the chat channel.
type Sender interface {
	Send(ctx context.Context, conversationID, text string) error
}

// Reporter notifies the operator conversation about unanswered questions and
// completed reservations. Delivery failures are logged, never propagated;
// reporting must not break the user-facing flow.
type Reporter struct {
	sender     Sender
	operatorID string
	webhookURL string
	hc         *http.Client
	logger     *slog.Logger
}

// New creates a Reporter. webhookURL is an optional fallback; empty disables it.
func New(sender Sender, operatorID, webhookURL string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		sender:     sender,
		operatorID: operatorID,
		webhookURL: webhookURL,
		hc:         &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With("component", "report"),
	}
}

// ReportError tells the operator about a conversation the bot could not handle.
func (r *Reporter) ReportError(ctx context.Context, conversationID string, err error) {
	if r.operatorID == "" {
		return
	}
	text := fmt.Sprintf("⚠ pregunta que NO supe responder ⚠\nNo supe: %v\nconversación = %s", err, conversationID)
	r.deliver(ctx, text)
}

// ReportReservation sends the operator a summary of a completed reservation.
func (r *Reporter) ReportReservation(ctx context.Context, conversationID, reservationID, date string, partySize int) {
	if r.operatorID == "" {
		return
	}
	text := fmt.Sprintf("Nueva reserva %s\nFecha: %s\nPersonas: %d\nconversación = %s",
		reservationID, date, partySize, conversationID)
	r.deliver(ctx, text)
}

func (r *Reporter) deliver(ctx context.Context, text string) {
	err := r.sender.Send(ctx, r.operatorID, text)
	if err == nil {
		return
	}
	r.logger.Warn("operator message failed, trying webhook", "error", err)
	if r.webhookURL == "" {
		return
	}
	if err := r.postWebhook(ctx, text); err != nil {
		r.logger.Error("webhook fallback failed", "error", err)
	}
}

func (r *Reporter) postWebhook(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]any{"content": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
