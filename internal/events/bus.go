package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiorewind/rewind-go/internal/logging"
)

// Bus fans recording events out to subscribers with non-blocking guarantees:
// a slow subscriber drops events rather than stalling the publisher. The
// publisher side is safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan RecordingEvent
	bufferSize  int
	closed      bool

	published atomic.Uint64
	dropped   atomic.Uint64

	logger *slog.Logger
}

// DefaultBufferSize is the per-subscriber channel depth.
const DefaultBufferSize = 64

// NewBus creates an event bus with the given per-subscriber buffer size.
// A non-positive size falls back to DefaultBufferSize.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		bufferSize: bufferSize,
		logger:     logging.ForService("events"),
	}
}

// Subscribe registers a new subscriber and returns its receive channel along
// with an unsubscribe function. The channel is closed on unsubscribe or bus
// shutdown.
func (b *Bus) Subscribe() (<-chan RecordingEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan RecordingEvent, b.bufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subscribers = append(b.subscribers, ch)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { b.remove(ch) })
	}
	return ch, unsubscribe
}

// remove detaches and closes a subscriber channel.
func (b *Bus) remove(ch chan RecordingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish delivers an event to all subscribers without blocking. Events for
// subscribers with full buffers are dropped and counted.
func (b *Bus) Publish(event RecordingEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.published.Add(1)
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.Warn("dropping event for slow subscriber",
				"event_type", event.Type,
				"dropped_total", b.dropped.Load())
		}
	}
}

// Close shuts the bus down and closes all subscriber channels. Publish calls
// after Close are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}

// Stats reports the number of events published and dropped.
func (b *Bus) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}
