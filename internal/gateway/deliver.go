// ABOUTME: Outbound delivery over a channel connector webhook.
// ABOUTME: Posts chunks as JSON; with no URL configured it only logs.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// WebhookDeliverer posts outbound messages to a channel connector endpoint.
// It also serves as the operator reporter's send path.
type WebhookDeliverer struct {
	url    string
	hc     *http.Client
	logger *slog.Logger
}

// NewWebhookDeliverer creates a deliverer. An empty url means log-only,
// which keeps local runs working without a connector.
func NewWebhookDeliverer(url string, logger *slog.Logger) *WebhookDeliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDeliverer{
		url:    url,
		hc:     &http.Client{Timeout: 15 * time.Second},
		logger: logger.With("component", "deliver"),
	}
}

// Deliver sends the chunks for one conversation in order.
func (d *WebhookDeliverer) Deliver(ctx context.Context, conversationID string, chunks []string) error {
	if d.url == "" {
		for _, chunk := range chunks {
			d.logger.Info("outbound message", "conversation_id", conversationID, "text", chunk)
		}
		return nil
	}
	return d.post(ctx, map[string]any{
		"conversation_id": conversationID,
		"messages":        chunks,
	})
}

// Send delivers a single text, used for operator notifications.
func (d *WebhookDeliverer) Send(ctx context.Context, conversationID, text string) error {
	return d.Deliver(ctx, conversationID, []string{text})
}

func (d *WebhookDeliverer) post(ctx context.Context, body map[string]any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("connector returned status %d", resp.StatusCode)
	}
	return nil
}
