// ABOUTME: Entry point for the mesa-gateway reservation bot server.
// ABOUTME: Wires config, store, assistant and backend clients into the gateway.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mesabot/mesa-gateway/internal/apiqueue"
	"github.com/mesabot/mesa-gateway/internal/assistant"
	"github.com/mesabot/mesa-gateway/internal/config"
	"github.com/mesabot/mesa-gateway/internal/dedupe"
	"github.com/mesabot/mesa-gateway/internal/dispatch"
	"github.com/mesabot/mesa-gateway/internal/gateway"
	"github.com/mesabot/mesa-gateway/internal/report"
	"github.com/mesabot/mesa-gateway/internal/riservi"
	"github.com/mesabot/mesa-gateway/internal/session"
	"github.com/mesabot/mesa-gateway/internal/store"
	"github.com/mesabot/mesa-gateway/internal/temporal"
)

// getConfigPath returns the path to the gateway config file.
// Priority: MESA_CONFIG env var > ./config.yaml > ~/.config/mesa/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MESA_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(homeDir, ".config", "mesa", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mesa-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the gateway server")
		fmt.Println("  health    Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ledger, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer ledger.Close()

	loc, err := time.LoadLocation(cfg.Dispatch.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}

	invoker := assistant.NewOpenAIInvoker(assistant.OpenAIConfig{
		BaseURL:     cfg.Assistant.BaseURL,
		APIKey:      cfg.Assistant.APIKey,
		AssistantID: cfg.Assistant.AssistantID,
	}, logger)
	asker := assistant.NewGateway(invoker, assistant.Options{
		Timeout:       cfg.Assistant.Timeout,
		MaxAttempts:   cfg.Assistant.MaxAttempts,
		Backoff:       cfg.Assistant.Backoff,
		ControlPrompt: cfg.Assistant.ControlPrompt,
	}, logger)

	backend := riservi.New(riservi.Config{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.Timeout,
	}, logger)

	sessions := session.NewRegistry(logger)
	deliverer := gateway.NewWebhookDeliverer(cfg.Server.OutboundURL, logger)
	reporter := report.New(deliverer, cfg.Report.OperatorConversation, cfg.Report.WebhookURL, logger)

	dispatcher := dispatch.New(
		backend,
		sessions,
		apiqueue.New(logger),
		temporal.New(loc, nil),
		&ledgerAuditor{ledger: ledger},
		logger,
	)
	loop := dispatch.NewLoop(dispatcher, asker, cfg.Dispatch.MaxFeedbackDepth, logger)

	gw := gateway.New(
		sessions,
		dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize),
		asker,
		loop,
		deliverer,
		ledger,
		reporter,
		logger,
	)

	mux := http.NewServeMux()
	gateway.NewAPIServer(gw, logger).Routes(mux)

	srv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runHealth(ctx context.Context) error {
	addr := os.Getenv("MESA_GATEWAY_URL")
	if addr == "" {
		addr = "http://localhost:8080"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway unhealthy: status %d", resp.StatusCode)
	}
	fmt.Println("gateway is healthy")
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// ledgerAuditor adapts the ledger store to the dispatcher's audit hook.
type ledgerAuditor struct {
	ledger *store.SQLiteStore
}

func (a *ledgerAuditor) RecordReservation(ctx context.Context, conversationID, reservationID, kind, date string, partySize int) error {
	return a.ledger.RecordReservation(ctx, store.Reservation{
		ConversationID: conversationID,
		ReservationID:  reservationID,
		Operation:      kind,
		Date:           date,
		PartySize:      partySize,
	})
}
