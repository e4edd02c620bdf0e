// Package events delivers recording lifecycle notifications to subscribers.
package events

import "time"

// EventType identifies a recording lifecycle notification.
type EventType string

const (
	AutoStarted     EventType = "auto_started"     // Auto-record triggered
	AutoStopped     EventType = "auto_stopped"     // Auto-stopped due to silence
	ManualStarted   EventType = "manual_started"   // User started recording
	ManualStopped   EventType = "manual_stopped"   // User stopped recording
	SilenceDetected EventType = "silence_detected" // Silence countdown active
	SignalDetected  EventType = "signal_detected"  // Signal detected while armed
	StateChanged    EventType = "state_changed"    // State transition occurred
)

// RecordingEvent is a tagged notification emitted by the recording
// controller. Only the fields relevant to the event type are populated.
// Events are ephemeral; subscribers must not retain slices past delivery.
type RecordingEvent struct {
	Type      EventType
	Timestamp time.Time

	// Recording start/stop payload
	Path string

	// SignalDetected payload
	RMSDecibels []float64

	// SilenceDetected payload
	SilenceDuration  time.Duration
	SilenceThreshold time.Duration
	Remaining        time.Duration

	// StateChanged payload
	OldState string
	NewState string
	Reason   string
}
