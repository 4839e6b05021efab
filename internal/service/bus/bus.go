// Package bus implements the per-session progress fan-out. Events reach
// every subscriber of a session in publish order; slow subscribers lose the
// oldest buffered non-terminal events first, but terminal events are retried
// until delivered or the subscriber goes away.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Draymont/StockCouncil/internal/domain/analysis"
)

// DefaultBuffer is the per-subscriber event buffer used when no size is
// configured.
const DefaultBuffer = 64

// terminalRetryInterval paces redelivery attempts for terminal events.
const terminalRetryInterval = 10 * time.Millisecond

type subscriber struct {
	mu     sync.Mutex
	ch     chan analysis.ProgressEvent
	closed bool
}

// Bus fans progress events out to zero or more subscribers per session.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscriber
	buffer int
}

// New creates a Bus with the given per-subscriber buffer size.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[string][]*subscriber),
		buffer: buffer,
	}
}

// Subscribe registers an observer for one session. The returned channel
// yields events in publish order; the cancel function detaches the observer
// and closes the channel.
func (b *Bus) Subscribe(sessionID string) (<-chan analysis.ProgressEvent, func()) {
	sub := &subscriber{ch: make(chan analysis.ProgressEvent, b.buffer)}

	b.mu.Lock()
	b.subs[sessionID] = append(b.subs[sessionID], sub)
	b.mu.Unlock()

	cancel := func() { b.unsubscribe(sessionID, sub) }
	return sub.ch, cancel
}

func (b *Bus) unsubscribe(sessionID string, sub *subscriber) {
	b.mu.Lock()
	list := b.subs[sessionID]
	for i, s := range list {
		if s == sub {
			b.subs[sessionID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[sessionID]) == 0 {
		delete(b.subs, sessionID)
	}
	b.mu.Unlock()

	sub.mu.Lock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
	sub.mu.Unlock()
}

// Publish delivers the event to every current subscriber of its session.
// Terminal events are handed to a retry goroutine per slow subscriber so
// the publisher never blocks.
func (b *Bus) Publish(_ context.Context, ev analysis.ProgressEvent) {
	b.mu.RLock()
	subs := append([]*subscriber(nil), b.subs[ev.SessionID]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(ev)
	}
}

// SubscriberCount returns the number of observers for a session.
func (b *Bus) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

func (s *subscriber) deliver(ev analysis.ProgressEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	select {
	case s.ch <- ev:
		s.mu.Unlock()
		return
	default:
	}

	if !ev.IsTerminal() {
		// Buffer full: drop the oldest queued event for this subscriber
		// only. A terminal event can never be evicted here because nothing
		// is published after it.
		select {
		case dropped := <-s.ch:
			slog.Debug("progress event dropped for slow subscriber",
				"session_id", ev.SessionID, "kind", dropped.Kind)
		default:
		}
		select {
		case s.ch <- ev:
		default:
		}
		s.mu.Unlock()
		return
	}

	s.mu.Unlock()
	go s.deliverTerminal(ev)
}

// deliverTerminal retries until the terminal event is accepted or the
// subscriber detaches. Terminal events are the last for their session, so
// retrying preserves order.
func (s *subscriber) deliverTerminal(ev analysis.ProgressEvent) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		select {
		case s.ch <- ev:
			s.mu.Unlock()
			return
		default:
		}
		s.mu.Unlock()
		time.Sleep(terminalRetryInterval)
	}
}
