// ABOUTME: Scripted assistant for end-to-end exercising of the gateway.
// ABOUTME: Emulates the Assistants REST API with TOML-driven reply rules.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/google/uuid"
)

// Scenario is the TOML file shape: ordered substring rules plus a fallback.
type Scenario struct {
	DefaultReply string `toml:"default_reply"`
	Rules        []Rule `toml:"rule"`
}

// Rule answers the first prompt containing its substring.
type Rule struct {
	Contains string `toml:"contains"`
	Reply    string `toml:"reply"`
	// Once makes the rule fire a single time, for scripted multi-turn flows.
	Once bool `toml:"once"`
}

func main() {
	addr := flag.String("addr", "localhost:9400", "listen address")
	scenarioPath := flag.String("scenarios", "scenarios.toml", "TOML scenario file")
	flag.Parse()

	var scenario Scenario
	if _, err := toml.DecodeFile(*scenarioPath, &scenario); err != nil {
		log.Fatalf("loading scenarios: %v", err)
	}
	if scenario.DefaultReply == "" {
		scenario.DefaultReply = "Hola! Soy el asistente de prueba. ¿En qué te ayudo?"
	}

	srv := newServer(&scenario)
	color.Cyan("fake-assistant listening on %s (%d rules)", *addr, len(scenario.Rules))
	if err := http.ListenAndServe(*addr, srv.routes()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type server struct {
	scenario *Scenario

	mu      sync.Mutex
	replies map[string]string // thread id -> pending assistant reply
	used    map[int]bool      // fired once-rules by index
}

func newServer(scenario *Scenario) *server {
	return &server{
		scenario: scenario,
		replies:  map[string]string{},
		used:     map[int]bool{},
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/threads", s.handleCreateThread)
	mux.HandleFunc("/threads/", s.handleThread)
	return mux
}

func (s *server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := "thread_" + uuid.New().String()[:8]
	color.Yellow("new thread %s", id)
	writeJSON(w, map[string]any{"id": id})
}

// handleThread covers messages, runs and run polling under /threads/{id}/...
func (s *server) handleThread(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/threads/"), "/")
	threadID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "messages" && r.Method == http.MethodPost:
		s.handleAddMessage(w, r, threadID)
	case len(parts) == 2 && parts[1] == "messages" && r.Method == http.MethodGet:
		s.handleListMessages(w, threadID)
	case len(parts) == 2 && parts[1] == "runs" && r.Method == http.MethodPost:
		writeJSON(w, map[string]any{"id": "run_" + uuid.New().String()[:8], "status": "queued"})
	case len(parts) == 3 && parts[1] == "runs" && r.Method == http.MethodGet:
		writeJSON(w, map[string]any{"id": parts[2], "status": "completed"})
	default:
		http.NotFound(w, r)
	}
}

func (s *server) handleAddMessage(w http.ResponseWriter, r *http.Request, threadID string) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	color.Cyan("[%s] <- %s", threadID, body.Content)
	reply := s.replyFor(body.Content)
	color.Green("[%s] -> %s", threadID, reply)

	s.mu.Lock()
	s.replies[threadID] = reply
	s.mu.Unlock()

	writeJSON(w, map[string]any{"id": "msg_" + uuid.New().String()[:8]})
}

func (s *server) handleListMessages(w http.ResponseWriter, threadID string) {
	s.mu.Lock()
	reply := s.replies[threadID]
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"data": []any{
			map[string]any{
				"role": "assistant",
				"content": []any{
					map[string]any{"text": map[string]any{"value": reply}},
				},
			},
		},
	})
}

func (s *server) replyFor(prompt string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lower := strings.ToLower(prompt)
	for i, rule := range s.scenario.Rules {
		if rule.Once && s.used[i] {
			continue
		}
		if strings.Contains(lower, strings.ToLower(rule.Contains)) {
			if rule.Once {
				s.used[i] = true
			}
			return rule.Reply
		}
	}
	return s.scenario.DefaultReply
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
