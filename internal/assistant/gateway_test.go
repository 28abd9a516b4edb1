// ABOUTME: Tests for the assistant call gateway.
// ABOUTME: Fake invoker and fake timers drive retry, race, and supersede cases.

package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInvoker returns scripted results per call, in order. When fn is set it
// takes precedence and decides the reply from the prompt itself.
type fakeInvoker struct {
	mu      sync.Mutex
	results []askResult
	prompts []string
	block   chan struct{} // when set, Invoke waits on it first
	fn      func(prompt string) (string, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, conversationID, prompt string) (string, error) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		f.mu.Lock()
		f.prompts = append(f.prompts, prompt)
		f.mu.Unlock()
		return fn(prompt)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if len(f.results) == 0 {
		return "ok", nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res.text, res.err
}

func (f *fakeInvoker) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// fakeTimer never fires unless told to, and records Stop calls.
type fakeTimer struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{ch: make(chan time.Time, 1)}
}

func (f *fakeTimer) C() <-chan time.Time { return f.ch }
func (f *fakeTimer) Stop() bool          { f.stopped.Store(true); return true }
func (f *fakeTimer) fire()               { f.ch <- time.Now() }

// timerRecorder hands out fake timers and tracks them safely across goroutines.
type timerRecorder struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (r *timerRecorder) newTimer(time.Duration) Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	ft := newFakeTimer()
	r.timers = append(r.timers, ft)
	return ft
}

func (r *timerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *timerRecorder) at(i int) *fakeTimer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timers[i]
}

func testOptions(rec *timerRecorder) Options {
	return Options{
		Timeout:     time.Minute,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		NewTimer:    rec.newTimer,
		Now: func() time.Time {
			return time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
		},
	}
}

func TestAsk_ReturnsAssistantReply(t *testing.T) {
	rec := &timerRecorder{}
	inv := &fakeInvoker{results: []askResult{{text: "hola"}}}
	g := NewGateway(inv, testOptions(rec), nil)

	text, err := g.Ask(context.Background(), Request{ConversationID: "c1", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hola", text)

	require.Equal(t, 1, rec.count())
	assert.True(t, rec.at(0).stopped.Load(), "timer must be cancelled on completion")
}

func TestAsk_PromptCarriesContext(t *testing.T) {
	rec := &timerRecorder{}
	inv := &fakeInvoker{}
	g := NewGateway(inv, testOptions(rec), nil)

	_, err := g.Ask(context.Background(), Request{
		ConversationID: "c1",
		Prompt:         "quiero reservar",
		Nudge:          "Por favor, respondé aunque sea brevemente.",
		ContactPhone:   "+5491155550000",
	})
	require.NoError(t, err)

	require.Len(t, inv.prompts, 1)
	assert.Contains(t, inv.prompts[0], "Por favor, respondé")
	assert.Contains(t, inv.prompts[0], "Fecha y hora actual de referencia")
	assert.Contains(t, inv.prompts[0], "+5491155550000")
	assert.Contains(t, inv.prompts[0], "quiero reservar")
}

func TestAsk_RetriesOnBusy(t *testing.T) {
	rec := &timerRecorder{}
	inv := &fakeInvoker{results: []askResult{
		{err: fmt.Errorf("thread locked: %w", ErrBusy)},
		{err: fmt.Errorf("thread locked: %w", ErrBusy)},
		{text: "listo"},
	}}
	g := NewGateway(inv, testOptions(rec), nil)

	text, err := g.Ask(context.Background(), Request{ConversationID: "c1", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "listo", text)
	assert.Equal(t, 3, inv.calls())
}

func TestAsk_BusyExhaustionIsFatal(t *testing.T) {
	rec := &timerRecorder{}
	busy := askResult{err: fmt.Errorf("conflicting run: %w", ErrBusy)}
	inv := &fakeInvoker{results: []askResult{busy, busy, busy, busy}}
	g := NewGateway(inv, testOptions(rec), nil)

	_, err := g.Ask(context.Background(), Request{ConversationID: "c1", Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, inv.calls(), "MaxAttempts bounds the retry loop")
}

func TestAsk_OtherErrorsDoNotRetry(t *testing.T) {
	rec := &timerRecorder{}
	inv := &fakeInvoker{results: []askResult{{err: errors.New("401 unauthorized")}}}
	g := NewGateway(inv, testOptions(rec), nil)

	_, err := g.Ask(context.Background(), Request{ConversationID: "c1", Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, 1, inv.calls())
}

func TestAsk_TimeoutWinsRace(t *testing.T) {
	rec := &timerRecorder{}
	block := make(chan struct{})
	inv := &fakeInvoker{}
	inv.fn = func(prompt string) (string, error) {
		if strings.Contains(prompt, "CONTROL") {
			return "control reply", nil
		}
		<-block
		return "original reply", nil
	}
	opts := testOptions(rec)
	opts.ControlPrompt = "CONTROL"
	g := NewGateway(inv, opts, nil)

	done := make(chan struct{})
	var text string
	var err error
	go func() {
		defer close(done)
		text, err = g.Ask(context.Background(), Request{ConversationID: "c1", Prompt: "hi"})
	}()

	// Let the original call get stuck, then fire the timer.
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	rec.at(0).fire()
	defer close(block) // let the discarded original call finish

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Ask never resolved after timeout")
	}
	require.NoError(t, err)
	assert.Equal(t, "control reply", text)
}

func TestAsk_SecondCallCancelsFirstTimer(t *testing.T) {
	rec := &timerRecorder{}
	block := make(chan struct{})
	inv := &fakeInvoker{block: block}
	g := NewGateway(inv, testOptions(rec), nil)

	first := make(chan struct{})
	go func() {
		defer close(first)
		_, _ = g.Ask(context.Background(), Request{ConversationID: "c1", Prompt: "first"})
	}()
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)

	second := make(chan struct{})
	go func() {
		defer close(second)
		_, _ = g.Ask(context.Background(), Request{ConversationID: "c1", Prompt: "second"})
	}()
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, time.Millisecond)

	// The stale timer from the first call must already be stopped.
	assert.True(t, rec.at(0).stopped.Load(), "superseded timer must be cancelled, not ignored")

	close(block)
	<-first
	<-second
}

func TestAsk_ContextCancellation(t *testing.T) {
	rec := &timerRecorder{}
	inv := &fakeInvoker{block: make(chan struct{})}
	g := NewGateway(inv, testOptions(rec), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := g.Ask(ctx, Request{ConversationID: "c1", Prompt: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}
