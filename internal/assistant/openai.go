// ABOUTME: OpenAI Assistants API invoker with per-conversation threads.
// ABOUTME: Posts the prompt, runs the assistant and polls until the reply is ready.

package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// busySignal is the API's message when a thread still has an active run.
const busySignal = "Can't add messages to thread"

// OpenAIConfig holds invoker construction parameters.
type OpenAIConfig struct {
	BaseURL      string
	APIKey       string
	AssistantID  string
	PollInterval time.Duration
	Timeout      time.Duration
}

// OpenAIInvoker implements Invoker on the Assistants REST API. Each
// conversation maps to one thread, created on first use.
type OpenAIInvoker struct {
	hc          *http.Client
	baseURL     string
	apiKey      string
	assistantID string
	poll        time.Duration

	mu      sync.Mutex
	threads map[string]string
	logger  *slog.Logger
}

// NewOpenAIInvoker creates an invoker. Zero-value config fields get defaults.
func NewOpenAIInvoker(cfg OpenAIConfig, logger *slog.Logger) *OpenAIInvoker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIInvoker{
		hc:          &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		assistantID: cfg.AssistantID,
		poll:        cfg.PollInterval,
		threads:     map[string]string{},
		logger:      logger.With("component", "openai"),
	}
}

// Invoke sends one prompt on the conversation's thread and returns the
// assistant's reply text. A thread with an active run yields ErrBusy.
func (o *OpenAIInvoker) Invoke(ctx context.Context, conversationID, prompt string) (string, error) {
	threadID, err := o.threadFor(ctx, conversationID)
	if err != nil {
		return "", err
	}

	if err := o.addMessage(ctx, threadID, prompt); err != nil {
		return "", err
	}

	runID, err := o.createRun(ctx, threadID)
	if err != nil {
		return "", err
	}

	if err := o.waitForRun(ctx, threadID, runID); err != nil {
		return "", err
	}

	return o.latestReply(ctx, threadID)
}

func (o *OpenAIInvoker) threadFor(ctx context.Context, conversationID string) (string, error) {
	o.mu.Lock()
	id, ok := o.threads[conversationID]
	o.mu.Unlock()
	if ok {
		return id, nil
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := o.call(ctx, http.MethodPost, "/threads", map[string]any{}, &out); err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}

	o.mu.Lock()
	// Another goroutine may have won; keep the first thread.
	if existing, ok := o.threads[conversationID]; ok {
		o.mu.Unlock()
		return existing, nil
	}
	o.threads[conversationID] = out.ID
	o.mu.Unlock()

	o.logger.Debug("created thread", "conversation_id", conversationID, "thread_id", out.ID)
	return out.ID, nil
}

func (o *OpenAIInvoker) addMessage(ctx context.Context, threadID, prompt string) error {
	body := map[string]any{"role": "user", "content": prompt}
	if err := o.call(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, nil); err != nil {
		return fmt.Errorf("adding message: %w", err)
	}
	return nil
}

func (o *OpenAIInvoker) createRun(ctx context.Context, threadID string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	body := map[string]any{"assistant_id": o.assistantID}
	if err := o.call(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &out); err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}
	return out.ID, nil
}

func (o *OpenAIInvoker) waitForRun(ctx context.Context, threadID, runID string) error {
	for {
		var out struct {
			Status    string `json:"status"`
			LastError *struct {
				Message string `json:"message"`
			} `json:"last_error"`
		}
		if err := o.call(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &out); err != nil {
			return fmt.Errorf("polling run: %w", err)
		}

		switch out.Status {
		case "completed":
			return nil
		case "failed", "cancelled", "expired":
			msg := out.Status
			if out.LastError != nil && out.LastError.Message != "" {
				msg = out.LastError.Message
			}
			return fmt.Errorf("run ended without reply: %s", msg)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.poll):
		}
	}
}

func (o *OpenAIInvoker) latestReply(ctx context.Context, threadID string) (string, error) {
	var out struct {
		Data []struct {
			Role    string `json:"role"`
			Content []struct {
				Text struct {
					Value string `json:"value"`
				} `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	if err := o.call(ctx, http.MethodGet, "/threads/"+threadID+"/messages?order=desc&limit=5", nil, &out); err != nil {
		return "", fmt.Errorf("fetching messages: %w", err)
	}

	for _, msg := range out.Data {
		if msg.Role != "assistant" {
			continue
		}
		var parts []string
		for _, c := range msg.Content {
			if c.Text.Value != "" {
				parts = append(parts, c.Text.Value)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}
	return "", fmt.Errorf("no assistant reply on thread %s", threadID)
}

func (o *OpenAIInvoker) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := o.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(apiErr.Error.Message, busySignal) {
			return fmt.Errorf("%w: %s", ErrBusy, apiErr.Error.Message)
		}
		if apiErr.Error.Message != "" {
			return fmt.Errorf("api error (status %d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}
