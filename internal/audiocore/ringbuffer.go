package audiocore

import (
	"sync"

	"github.com/audiorewind/rewind-go/internal/errors"
)

// RingBuffer is a fixed-capacity circular store of interleaved float32 audio
// frames. The capture callback is the only writer; Snapshot reconstructs the
// chronological history for pre-roll extraction. The lock is held only for
// the duration of a memcpy, keeping the write path bounded.
type RingBuffer struct {
	mu       sync.Mutex
	data     []float32 // capacity * channels, interleaved
	capacity int       // frames
	channels int
	cursor   int // next write position in frames, always in [0, capacity)
	filled   bool
}

// NewRingBuffer allocates a ring buffer holding capacityFrames frames of
// channels-channel audio.
func NewRingBuffer(capacityFrames, channels int) (*RingBuffer, error) {
	if capacityFrames <= 0 {
		return nil, errors.Newf("invalid ring buffer capacity: %d frames", capacityFrames).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("operation", "create_ring_buffer").
			Build()
	}
	if channels <= 0 {
		return nil, errors.Newf("invalid channel count: %d", channels).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("operation", "create_ring_buffer").
			Build()
	}

	// Refuse absurd allocations (over 1GB)
	if capacityFrames*channels*4 > 1<<30 {
		return nil, errors.Newf("requested ring buffer too large: %d frames x %d channels", capacityFrames, channels).
			Component("audiocore").
			Category(errors.CategoryBuffer).
			Build()
	}

	return &RingBuffer{
		data:     make([]float32, capacityFrames*channels),
		capacity: capacityFrames,
		channels: channels,
	}, nil
}

// Write stores frameCount frames of interleaved samples at the cursor,
// wrapping across the buffer end with a tail-then-head split. It never
// allocates and never blocks beyond the buffer lock.
func (rb *RingBuffer) Write(samples []float32, frameCount int) {
	if frameCount <= 0 || len(samples) < frameCount*rb.channels {
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	src := samples[:frameCount*rb.channels]
	for len(src) > 0 {
		remaining := rb.capacity - rb.cursor
		chunk := len(src) / rb.channels
		if chunk > remaining {
			chunk = remaining
		}

		copy(rb.data[rb.cursor*rb.channels:], src[:chunk*rb.channels])
		src = src[chunk*rb.channels:]

		rb.cursor += chunk
		if rb.cursor >= rb.capacity {
			rb.cursor = 0
			rb.filled = true
		}
	}
}

// Snapshot returns a copy of the buffered history in chronological order: if
// the buffer has wrapped, the segment after the cursor (oldest audio) comes
// first, followed by the segment before it; otherwise only the written
// prefix is returned. The copy is point-in-time; writes landing after the
// snapshot are not reflected in it.
func (rb *RingBuffer) Snapshot() []float32 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.filled {
		out := make([]float32, rb.cursor*rb.channels)
		copy(out, rb.data[:rb.cursor*rb.channels])
		return out
	}

	out := make([]float32, rb.capacity*rb.channels)
	tail := rb.data[rb.cursor*rb.channels:]
	copy(out, tail)
	copy(out[len(tail):], rb.data[:rb.cursor*rb.channels])
	return out
}

// Cursor returns the current write position in frames.
func (rb *RingBuffer) Cursor() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.cursor
}

// Filled reports whether the buffer has wrapped at least once.
func (rb *RingBuffer) Filled() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.filled
}

// Capacity returns the buffer capacity in frames.
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

// Channels returns the channel count the buffer was built with.
func (rb *RingBuffer) Channels() int {
	return rb.channels
}
