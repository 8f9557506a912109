package kv

import (
	"context"
	"strings"
	"sync"

	"github.com/tbourn/go-socialcart-backend/internal/observability"
)

// Bus fans changes out to in-process subscribers. Delivery never blocks the
// publisher: a subscriber whose buffer is full misses the change.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	next   uint64
	buffer int
	closed bool
}

type subscriber struct {
	prefix string
	ch     chan Change
}

// NewBus creates a bus whose subscriptions buffer up to buffer changes.
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// Publish delivers c to every subscriber whose prefix matches its key.
func (b *Bus) Publish(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !strings.HasPrefix(c.Key, s.prefix) {
			continue
		}
		select {
		case s.ch <- c:
		default:
			observability.DroppedNotifications.WithLabelValues("kv").Inc()
		}
	}
}

// Subscribe registers a subscription that lives until ctx is done. The
// registration is complete when Subscribe returns.
func (b *Bus) Subscribe(ctx context.Context, prefix string) (<-chan Change, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	id := b.next
	b.next++
	s := &subscriber{prefix: prefix, ch: make(chan Change, b.buffer)}
	b.subs[id] = s
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(id)
	}()
	return s.ch, nil
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(s.ch)
	}
}

// Close closes every subscription; further Subscribe calls fail.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}
