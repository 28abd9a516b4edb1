// ABOUTME: Per-conversation work serialization and reservation pending flags.
// ABOUTME: One FIFO queue per conversation, drained sequentially; entries are GC'd when idle.

package session

import (
	"context"
	"log/slog"
	"sync"
)

// UnitOfWork is one complete agent-call-and-dispatch cycle. It runs to
// completion, including everything it blocks on, before the next unit for the
// same conversation starts.
type UnitOfWork func(ctx context.Context)

// entry is the queue state for one active conversation.
type entry struct {
	queue []UnitOfWork
	busy  bool
}

// Registry serializes units of work per conversation. Distinct conversations
// run fully in parallel; within one conversation the order is strict FIFO.
// Queue entries exist only while work is queued or running, so idle
// conversations cost nothing.
type Registry struct {
	mu           sync.Mutex
	entries      map[string]*entry
	reservations map[string]bool
	logger       *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries:      make(map[string]*entry),
		reservations: make(map[string]bool),
		logger:       logger.With("component", "session"),
	}
}

// Enqueue appends unit to the conversation's queue. If no drain is running
// for that conversation, one is started; otherwise the unit silently waits
// its turn.
func (r *Registry) Enqueue(ctx context.Context, conversationID string, unit UnitOfWork) {
	r.mu.Lock()
	e, ok := r.entries[conversationID]
	if !ok {
		e = &entry{}
		r.entries[conversationID] = e
	}
	e.queue = append(e.queue, unit)
	if e.busy {
		r.mu.Unlock()
		return
	}
	e.busy = true
	r.mu.Unlock()

	go r.drain(ctx, conversationID)
}

// drain runs queued units one at a time until the queue empties, then removes
// the registry entry. A failure inside one unit must not abort the drain.
func (r *Registry) drain(ctx context.Context, conversationID string) {
	for {
		r.mu.Lock()
		e, ok := r.entries[conversationID]
		if !ok || len(e.queue) == 0 {
			delete(r.entries, conversationID)
			r.mu.Unlock()
			return
		}
		unit := e.queue[0]
		e.queue = e.queue[1:]
		r.mu.Unlock()

		r.runUnit(ctx, conversationID, unit)
	}
}

// runUnit executes one unit, recovering panics so the drain loop survives.
func (r *Registry) runUnit(ctx context.Context, conversationID string, unit UnitOfWork) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("unit of work panicked",
				"conversation_id", conversationID,
				"panic", rec)
		}
	}()
	unit(ctx)
}

// ActiveConversations returns the number of conversations with queued or
// running work. Exposed for tests and diagnostics.
func (r *Registry) ActiveConversations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// BeginReservation sets the reservation-in-progress flag for the
// conversation. It returns false when a reservation is already pending, in
// which case the caller must reject the new one immediately rather than
// queue or merge it.
func (r *Registry) BeginReservation(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reservations[conversationID] {
		return false
	}
	r.reservations[conversationID] = true
	return true
}

// EndReservation clears the reservation-in-progress flag. It must run on
// every exit path of a create dispatch: success, backend error, or panic.
func (r *Registry) EndReservation(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reservations, conversationID)
}

// ReservationPending reports whether a reservation is in flight for the
// conversation.
func (r *Registry) ReservationPending(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reservations[conversationID]
}
