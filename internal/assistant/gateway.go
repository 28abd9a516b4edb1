// ABOUTME: Wraps assistant calls with bounded busy-retry and a timeout race.
// ABOUTME: Keeps at most one live timeout timer per conversation; stale timers are cancelled.

package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Timer is the minimal timer surface the gateway needs. Abstracted so tests
// can drive the race with fake timers instead of real clocks.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// NewTimerFunc constructs a Timer for the given duration.
type NewTimerFunc func(d time.Duration) Timer

type realTimer struct {
	t *time.Timer
}

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

func newRealTimer(d time.Duration) Timer {
	return realTimer{t: time.NewTimer(d)}
}

// Options configures the gateway. Zero values get sensible defaults.
type Options struct {
	// Timeout is the race duration before the control prompt is issued.
	Timeout time.Duration
	// MaxAttempts bounds the busy-retry loop, initial attempt included.
	MaxAttempts int
	// Backoff is the fixed wait between busy retries.
	Backoff time.Duration
	// ControlPrompt is sent when the timer wins the race, asking the
	// assistant to proceed without further user input.
	ControlPrompt string
	// NewTimer overrides timer construction, for tests.
	NewTimer NewTimerFunc
	// Now overrides the reference clock used in prompt context, for tests.
	Now func() time.Time
}

const defaultControlPrompt = "No hubo respuesta a tiempo. Continuá con la conversación sin esperar más datos del usuario."

// Request is one assistant invocation.
type Request struct {
	ConversationID string
	Prompt         string
	// Nudge is an optional extra instruction prepended to the context
	// block (e.g. "respondé aunque sea brevemente").
	Nudge string
	// ContactPhone, when known, is added to the context block so the
	// assistant can prefill reservation contact fields.
	ContactPhone string
}

// Gateway mediates every call to the generative assistant. Guarantees:
// a bounded retry on the transient busy signal, a timeout race resolved
// exactly once, and at most one outstanding timeout timer per conversation.
type Gateway struct {
	invoker  Invoker
	opts     Options
	newTimer NewTimerFunc
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]Timer
}

// NewGateway creates a Gateway around invoker.
func NewGateway(invoker Invoker, opts Options, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.ControlPrompt == "" {
		opts.ControlPrompt = defaultControlPrompt
	}
	nt := opts.NewTimer
	if nt == nil {
		nt = newRealTimer
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Gateway{
		invoker:  invoker,
		opts:     opts,
		newTimer: nt,
		now:      now,
		logger:   logger.With("component", "assistant"),
		timers:   make(map[string]Timer),
	}
}

type askResult struct {
	text string
	err  error
}

// Ask sends prompt to the assistant for the conversation and returns its
// reply. The call races against the timeout timer: if the timer fires first,
// a supplementary control call (same retry policy) provides the result and
// the original call's eventual outcome is discarded. Exactly one resolution
// is delivered per invocation.
func (g *Gateway) Ask(ctx context.Context, req Request) (string, error) {
	timer := g.newTimer(g.opts.Timeout)
	g.replaceTimer(req.ConversationID, timer)
	defer g.clearTimer(req.ConversationID, timer)

	prompt := g.buildPrompt(req)

	resultCh := make(chan askResult, 1)
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		text, err := g.invokeWithRetry(callCtx, req.ConversationID, prompt)
		resultCh <- askResult{text: text, err: err}
	}()

	select {
	case res := <-resultCh:
		timer.Stop()
		return res.text, res.err

	case <-timer.C():
		g.logger.Warn("assistant call timed out, issuing control prompt",
			"conversation_id", req.ConversationID,
			"timeout", g.opts.Timeout)
		// The original call keeps running on the backend side; its result
		// is simply discarded in favor of the control call's.
		return g.invokeWithRetry(ctx, req.ConversationID, g.buildPrompt(Request{
			ConversationID: req.ConversationID,
			Prompt:         g.opts.ControlPrompt,
			ContactPhone:   req.ContactPhone,
		}))

	case <-ctx.Done():
		timer.Stop()
		return "", ctx.Err()
	}
}

// invokeWithRetry retries the invoker on the busy signal up to MaxAttempts
// with a fixed backoff. Other errors propagate immediately.
func (g *Gateway) invokeWithRetry(ctx context.Context, conversationID, prompt string) (string, error) {
	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		text, err := g.invoker.Invoke(ctx, conversationID, prompt)
		if err == nil {
			return text, nil
		}
		if !IsBusy(err) {
			return "", err
		}
		g.logger.Debug("assistant busy, backing off",
			"conversation_id", conversationID,
			"attempt", attempt,
			"backoff", g.opts.Backoff)
		select {
		case <-time.After(g.opts.Backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, g.opts.MaxAttempts)
}

// buildPrompt prepends the reference context block the assistant expects:
// optional nudge, current date-time, and the user's contact number.
func (g *Gateway) buildPrompt(req Request) string {
	header := ""
	if req.Nudge != "" {
		header += req.Nudge + "\n"
	}
	header += "Fecha y hora actual de referencia: " + g.now().Format(time.RFC3339)
	if req.ContactPhone != "" {
		header += "\nNúmero de contacto del usuario: " + req.ContactPhone
	}
	if req.Prompt == "" {
		return header
	}
	return header + "\n" + req.Prompt
}

// replaceTimer records timer as the single live timer for the conversation,
// stopping any previous one so a stale timeout cannot fire after a newer
// call has started.
func (g *Gateway) replaceTimer(conversationID string, timer Timer) {
	g.mu.Lock()
	prev := g.timers[conversationID]
	g.timers[conversationID] = timer
	g.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
}

// clearTimer removes timer from the registry if it is still the live one.
func (g *Gateway) clearTimer(conversationID string, timer Timer) {
	g.mu.Lock()
	if g.timers[conversationID] == timer {
		delete(g.timers, conversationID)
	}
	g.mu.Unlock()
	timer.Stop()
}
