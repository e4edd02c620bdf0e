package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	bus := NewBus(4)
	defer bus.Close()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(RecordingEvent{Type: ManualStarted, Path: "/tmp/take.wav"})

	select {
	case event := <-ch:
		assert.Equal(t, ManualStarted, event.Type)
		assert.Equal(t, "/tmp/take.wav", event.Path)
		assert.False(t, event.Timestamp.IsZero(), "timestamp is stamped on publish")
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_FanOut(t *testing.T) {
	t.Parallel()

	bus := NewBus(4)
	defer bus.Close()

	ch1, unsub1 := bus.Subscribe()
	defer unsub1()
	ch2, unsub2 := bus.Subscribe()
	defer unsub2()

	bus.Publish(RecordingEvent{Type: SignalDetected})

	assert.Equal(t, SignalDetected, (<-ch1).Type)
	assert.Equal(t, SignalDetected, (<-ch2).Type)
}

func TestBus_SlowSubscriberDropsNotBlocks(t *testing.T) {
	t.Parallel()

	bus := NewBus(2)
	defer bus.Close()

	_, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	// Nobody reads; the third publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			bus.Publish(RecordingEvent{Type: StateChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	published, dropped := bus.Stats()
	assert.Equal(t, uint64(3), published)
	assert.Equal(t, uint64(1), dropped)
}

func TestBus_Unsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewBus(4)
	defer bus.Close()

	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	// Channel is closed; publishes after unsubscribe go nowhere.
	bus.Publish(RecordingEvent{Type: ManualStarted})

	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is harmless.
	unsubscribe()
}

func TestBus_Close(t *testing.T) {
	t.Parallel()

	bus := NewBus(4)
	ch, _ := bus.Subscribe()

	bus.Close()
	bus.Close() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Publishing and subscribing after close are safe no-ops.
	bus.Publish(RecordingEvent{Type: ManualStarted})
	late, _ := bus.Subscribe()
	_, open = <-late
	require.False(t, open)
}
