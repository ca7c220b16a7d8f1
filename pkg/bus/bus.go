// Package bus carries session events from the driver to observers such as
// the console narrator. Publishing never blocks the driver for long: when the
// buffer stays full the event is dropped and counted.
package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type EventKind string

const (
	EventSessionReady  EventKind = "session_ready"
	EventRoundStarted  EventKind = "round_started"
	EventReplySent     EventKind = "reply_sent"
	EventRoundFinished EventKind = "round_finished"
	EventResync        EventKind = "resync"
	EventSessionClosed EventKind = "session_closed"
)

type Event struct {
	Kind     EventKind
	Round    int
	RoundID  string
	Persona  string
	Topic    string
	State    string // prompt state for reply events
	Text     string // command or reply text
	Outcome  string
	Fallback bool
	Err      string
	At       time.Time
	Duration time.Duration
}

// EventBus is a bounded queue with one consumer.
type EventBus struct {
	events  chan Event
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

const (
	defaultBuffer  = 100
	publishTimeout = 100 * time.Millisecond
)

func NewEventBus() *EventBus {
	return NewEventBusSize(defaultBuffer)
}

// NewEventBusSize buffers size events; a non-positive size uses the default.
func NewEventBusSize(size int) *EventBus {
	if size <= 0 {
		size = defaultBuffer
	}
	return &EventBus{events: make(chan Event, size)}
}

// Publish waits briefly for buffer space, then drops ev. Publishing after
// Close is a no-op.
func (b *EventBus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	select {
	case b.events <- ev:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.events <- ev:
		case <-timer.C:
			b.dropped.Add(1)
		}
	}
}

// Consume blocks for the next event; ok is false once the bus is closed and
// drained, or ctx is done.
func (b *EventBus) Consume(ctx context.Context) (Event, bool) {
	select {
	case ev, ok := <-b.events:
		if !ok {
			return Event{}, false
		}
		return ev, true
	case <-ctx.Done():
		return Event{}, false
	}
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.events)
}

// Dropped counts events lost to a full buffer.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}
