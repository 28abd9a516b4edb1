// ABOUTME: Named FIFO queues that run backend operations one at a time.
// ABOUTME: Callers block until their operation runs; order per name is arrival order.

package apiqueue

import (
	"context"
	"log/slog"
	"sync"
)

// Queues serializes operations sharing a name. Operations with different
// names run independently.
type Queues struct {
	mu     sync.Mutex
	queues map[string]*queue
	logger *slog.Logger
}

type queue struct {
	mu      sync.Mutex
	pending []*job
	running bool
}

type job struct {
	fn   func(context.Context)
	ctx  context.Context
	done chan struct{}
}

// New creates an empty queue set.
func New(logger *slog.Logger) *Queues {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queues{
		queues: map[string]*queue{},
		logger: logger.With("component", "apiqueue"),
	}
}

// Do enqueues fn under name and blocks until it has run or ctx is cancelled
// while still waiting. A cancelled waiter's fn is skipped; an fn already
// running is never interrupted by Do returning.
func (q *Queues) Do(ctx context.Context, name string, fn func(context.Context)) error {
	q.mu.Lock()
	qu, ok := q.queues[name]
	if !ok {
		qu = &queue{}
		q.queues[name] = qu
	}
	q.mu.Unlock()

	j := &job{fn: fn, ctx: ctx, done: make(chan struct{})}

	qu.mu.Lock()
	qu.pending = append(qu.pending, j)
	start := !qu.running
	if start {
		qu.running = true
	}
	qu.mu.Unlock()

	if start {
		go q.drain(name, qu)
	}

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain runs pending jobs for one name in arrival order.
func (q *Queues) drain(name string, qu *queue) {
	for {
		qu.mu.Lock()
		if len(qu.pending) == 0 {
			qu.running = false
			qu.mu.Unlock()
			return
		}
		j := qu.pending[0]
		qu.pending = qu.pending[1:]
		qu.mu.Unlock()

		if j.ctx.Err() != nil {
			q.logger.Debug("skipping cancelled operation", "queue", name)
			close(j.done)
			continue
		}
		q.run(name, j)
	}
}

func (q *Queues) run(name string, j *job) {
	defer close(j.done)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued operation panicked", "queue", name, "panic", r)
		}
	}()
	j.fn(j.ctx)
}
