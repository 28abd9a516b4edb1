// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing and defaults

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "0.0.0.0:9090"

assistant:
  base_url: "https://api.openai.com/v1"
  api_key: "sk-test"
  assistant_id: "asst_123"
  timeout: "90s"
  backoff: "3s"
  max_attempts: 4

backend:
  base_url: "https://partners.riservi.com/api/v1/restaurants"
  api_key: "riservi-key"
  timeout: "15s"

dispatch:
  max_feedback_depth: 3
  timezone: "America/Argentina/Buenos_Aires"

database:
  path: "./test.db"

dedupe:
  ttl: "5m"
  max_size: 500

report:
  operator_conversation: "group-1"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("unexpected http_addr: %s", cfg.Server.HTTPAddr)
	}
	if cfg.Assistant.AssistantID != "asst_123" {
		t.Errorf("unexpected assistant_id: %s", cfg.Assistant.AssistantID)
	}
	if cfg.Assistant.Timeout != 90*time.Second {
		t.Errorf("unexpected assistant timeout: %v", cfg.Assistant.Timeout)
	}
	if cfg.Assistant.Backoff != 3*time.Second {
		t.Errorf("unexpected assistant backoff: %v", cfg.Assistant.Backoff)
	}
	if cfg.Assistant.MaxAttempts != 4 {
		t.Errorf("unexpected max_attempts: %d", cfg.Assistant.MaxAttempts)
	}
	if cfg.Backend.Timeout != 15*time.Second {
		t.Errorf("unexpected backend timeout: %v", cfg.Backend.Timeout)
	}
	if cfg.Dispatch.MaxFeedbackDepth != 3 {
		t.Errorf("unexpected max_feedback_depth: %d", cfg.Dispatch.MaxFeedbackDepth)
	}
	if cfg.Dedupe.TTL != 5*time.Minute {
		t.Errorf("unexpected dedupe ttl: %v", cfg.Dedupe.TTL)
	}
	if cfg.Report.OperatorConversation != "group-1" {
		t.Errorf("unexpected operator_conversation: %s", cfg.Report.OperatorConversation)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("unexpected logging level: %s", cfg.Logging.Level)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
assistant:
  base_url: "https://api.openai.com/v1"
  assistant_id: "asst_123"

backend:
  api_key: "riservi-key"

database:
  path: "./test.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("expected default http_addr, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Assistant.Timeout != 2*time.Minute {
		t.Errorf("expected default timeout, got %v", cfg.Assistant.Timeout)
	}
	if cfg.Assistant.MaxAttempts != 5 {
		t.Errorf("expected default max_attempts, got %d", cfg.Assistant.MaxAttempts)
	}
	if cfg.Dispatch.MaxFeedbackDepth != 5 {
		t.Errorf("expected default max_feedback_depth, got %d", cfg.Dispatch.MaxFeedbackDepth)
	}
	if cfg.Dispatch.Timezone != "America/Argentina/Buenos_Aires" {
		t.Errorf("expected default timezone, got %s", cfg.Dispatch.Timezone)
	}
	if cfg.Dedupe.TTL != 10*time.Minute {
		t.Errorf("expected default dedupe ttl, got %v", cfg.Dedupe.TTL)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_RISERVI_KEY", "secret-from-env")

	path := writeConfig(t, `
assistant:
  base_url: "https://api.openai.com/v1"
  assistant_id: "asst_123"

backend:
  api_key: "${TEST_RISERVI_KEY}"

database:
  path: "./test.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.APIKey != "secret-from-env" {
		t.Errorf("env var not expanded: %s", cfg.Backend.APIKey)
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing assistant base_url",
			content: `
assistant:
  assistant_id: "asst_123"
backend:
  api_key: "k"
database:
  path: "./test.db"
`,
			wantErr: "assistant.base_url",
		},
		{
			name: "missing backend api_key",
			content: `
assistant:
  base_url: "https://api.openai.com/v1"
  assistant_id: "asst_123"
database:
  path: "./test.db"
`,
			wantErr: "backend.api_key",
		},
		{
			name: "missing database path",
			content: `
assistant:
  base_url: "https://api.openai.com/v1"
  assistant_id: "asst_123"
backend:
  api_key: "k"
`,
			wantErr: "database.path",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
assistant:
  base_url: "https://api.openai.com/v1"
  assistant_id: "asst_123"
  timeout: "not-a-duration"
backend:
  api_key: "k"
database:
  path: "./test.db"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "assistant.timeout") {
		t.Errorf("error %q does not mention assistant.timeout", err)
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	path := writeConfig(t, `
assistant:
  base_url: "https://api.openai.com/v1"
  assistant_id: "asst_123"
backend:
  api_key: "k"
dispatch:
  timezone: "Mars/Olympus"
database:
  path: "./test.db"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "timezone") {
		t.Errorf("error %q does not mention timezone", err)
	}
}
