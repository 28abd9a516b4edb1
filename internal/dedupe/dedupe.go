// ABOUTME: Duplicate detection for inbound chat messages.
// ABOUTME: Remembers conversation/message pairs for a TTL window with a size cap.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Tracker remembers recently processed messages so redelivered webhooks do
// not reach the assistant twice. Expired entries are pruned lazily on insert.
type Tracker struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type entry struct {
	at   time.Time
	elem *list.Element
}

// New creates a Tracker. maxSize bounds memory when traffic outruns the TTL.
func New(ttl time.Duration, maxSize int) *Tracker {
	return &Tracker{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen reports whether the message was already processed, marking it as
// processed if not. The check and mark are a single atomic step.
func (t *Tracker) Seen(conversationID, messageID string) bool {
	key := conversationID + "\x00" + messageID

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.pruneExpired(now)

	if e, ok := t.seen[key]; ok {
		e.at = now
		t.order.MoveToBack(e.elem)
		return true
	}

	if len(t.seen) >= t.maxSize {
		t.evictOldest()
	}
	t.seen[key] = &entry{at: now, elem: t.order.PushBack(key)}
	return false
}

// Len returns the number of tracked messages.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// pruneExpired drops entries older than the TTL. Must be called with mu held.
func (t *Tracker) pruneExpired(now time.Time) {
	for {
		front := t.order.Front()
		if front == nil {
			return
		}
		key := front.Value.(string)
		if now.Sub(t.seen[key].at) < t.ttl {
			return
		}
		t.order.Remove(front)
		delete(t.seen, key)
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (t *Tracker) evictOldest() {
	front := t.order.Front()
	if front == nil {
		return
	}
	key := front.Value.(string)
	t.order.Remove(front)
	delete(t.seen, key)
}
