// Package config handles configuration loading for mesa-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	backend:
//	  api_key: "${RISERVI_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	assistant:
//	  timeout: "2m"
//	  backoff: "2s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Inbound webhook listener:
//
//	server:
//	  http_addr: ":8080"
//
// Generative assistant:
//
//	assistant:
//	  base_url: "https://api.openai.com/v1"
//	  api_key: "${OPENAI_API_KEY}"
//	  assistant_id: "asst_..."
//	  timeout: "2m"
//	  backoff: "2s"
//	  max_attempts: 5
//
// Reservation backend:
//
//	backend:
//	  base_url: "https://partners.riservi.com/api/v1/restaurants"
//	  api_key: "${RISERVI_API_KEY}"
//	  timeout: "30s"
//
// Command processing:
//
//	dispatch:
//	  max_feedback_depth: 5
//	  timezone: "America/Argentina/Buenos_Aires"
//
// Ledger database:
//
//	database:
//	  path: "/var/lib/mesa/ledger.db"
//
// Inbound deduplication:
//
//	dedupe:
//	  ttl: "10m"
//	  max_size: 10000
//
// Operator notifications:
//
//	report:
//	  operator_conversation: "120363abc@g.us"
//	  webhook_url: "${REPORT_WEBHOOK_URL}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
