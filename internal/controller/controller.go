// Package controller implements the recording state machine, unifying manual
// user intent with loudness-triggered automatic capture.
package controller

import (
	"log/slog"
	"sync"
	"time"

	"github.com/audiorewind/rewind-go/internal/audiocore"
	"github.com/audiorewind/rewind-go/internal/detector"
	"github.com/audiorewind/rewind-go/internal/errors"
	"github.com/audiorewind/rewind-go/internal/events"
	"github.com/audiorewind/rewind-go/internal/logging"
)

// State identifies a recording state machine state.
type State string

const (
	StateIdle            State = "idle"             // not recording, auto-record disabled
	StateArmed           State = "armed"            // auto-record enabled, monitoring for signal
	StateRecordingManual State = "recording_manual" // user-initiated recording
	StateRecordingAuto   State = "recording_auto"   // loudness-triggered recording
	StateStopping        State = "stopping"         // cleanup in progress
)

// Recorder is the slice of the audio engine the controller drives.
type Recorder interface {
	StartRecording(outputPath string) (string, error)
	StopRecording() (*audiocore.RecordingInfo, error)
}

// SilenceTracker is the slice of the signal detector the controller reads.
type SilenceTracker interface {
	ResetSilenceTimer()
	SilenceDuration() time.Duration
	SilenceThresholdExceeded() bool
	SilenceThreshold() time.Duration
}

// AutoRecordStore persists the auto-record enabled flag across runs.
type AutoRecordStore interface {
	GetAutoRecordEnabled() bool
	SetAutoRecordEnabled(enabled bool) error
}

// Registrar receives finished recordings for session bookkeeping.
type Registrar interface {
	RegisterRecording(path string, duration time.Duration, channels, sampleRate int)
}

// Controller is the single place deciding whether audio is being captured to
// disk. It holds references to the engine and detector but never their
// internal locks; all state transitions go through one mutex and events are
// emitted only after the state is committed.
type Controller struct {
	engine   Recorder
	silence  SilenceTracker
	store    AutoRecordStore // may be nil
	registry Registrar       // may be nil

	mu                sync.Mutex
	state             State
	autoRecordEnabled bool
	currentPath       string

	bus    *events.Bus
	logger *slog.Logger
}

// New constructs a controller in the Idle state. When a store is supplied
// the persisted auto-record flag is read at construction; the caller is
// trusted to persist later changes through the same store.
func New(engine Recorder, silence SilenceTracker, store AutoRecordStore, registry Registrar, bus *events.Bus) *Controller {
	c := &Controller{
		engine:   engine,
		silence:  silence,
		store:    store,
		registry: registry,
		state:    StateIdle,
		bus:      bus,
		logger:   logging.ForService("controller"),
	}

	if store != nil {
		c.autoRecordEnabled = store.GetAutoRecordEnabled()
	}

	c.logger.Info("recording controller initialized", "state", c.state)
	return c
}

// publish sends an event through the bus, if one is attached.
func (c *Controller) publish(event events.RecordingEvent) {
	if c.bus != nil {
		c.bus.Publish(event)
	}
}

// transition commits a state change and then emits StateChanged. The lock is
// taken here; callers must not hold it.
func (c *Controller) transition(newState State, reason string) {
	c.mu.Lock()
	oldState := c.state
	c.state = newState
	c.mu.Unlock()

	c.logger.Info("state transition",
		"from", oldState,
		"to", newState,
		"reason", reason)

	c.publish(events.RecordingEvent{
		Type:     events.StateChanged,
		OldState: string(oldState),
		NewState: string(newState),
		Reason:   reason,
	})
}

// State returns the current recording state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsRecording reports whether capture to disk is active in any mode.
func (c *Controller) IsRecording() bool {
	s := c.State()
	return s == StateRecordingManual || s == StateRecordingAuto
}

// IsAutoRecordEnabled reports whether auto-record mode is enabled.
func (c *Controller) IsAutoRecordEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoRecordEnabled
}

// EnableAutoRecord arms the controller. Enabling while already armed is a
// no-op success; enabling from any state other than Idle fails.
func (c *Controller) EnableAutoRecord() bool {
	switch c.State() {
	case StateArmed:
		return true
	case StateIdle:
	default:
		c.logger.Warn("cannot enable auto-record", "state", c.State())
		return false
	}

	c.mu.Lock()
	c.autoRecordEnabled = true
	c.mu.Unlock()

	c.persistAutoRecord(true)
	c.transition(StateArmed, "auto-record enabled")
	c.silence.ResetSilenceTimer()
	return true
}

// DisableAutoRecord disarms the controller. An active auto recording is
// stopped; a manual recording continues with only the flag cleared.
func (c *Controller) DisableAutoRecord() bool {
	c.mu.Lock()
	c.autoRecordEnabled = false
	state := c.state
	c.mu.Unlock()

	c.persistAutoRecord(false)

	switch state {
	case StateRecordingAuto:
		c.stopRecording(false)
	case StateArmed:
		c.transition(StateIdle, "auto-record disabled")
	case StateIdle:
		// already disabled
	default:
		c.logger.Info("auto-record disabled, manual recording continues")
	}
	return true
}

// ManualStartRecording starts a recording at outputPath on the user's (or
// the armed trigger handler's) behalf. From Armed the session becomes an
// auto recording; otherwise a manual one. An engine start failure leaves the
// state unchanged and returns false.
func (c *Controller) ManualStartRecording(outputPath string) bool {
	state := c.State()

	switch state {
	case StateRecordingManual, StateRecordingAuto:
		c.logger.Warn("already recording")
		return false
	case StateStopping:
		c.logger.Warn("cannot start while stopping previous recording")
		return false
	}

	resolved, err := c.engine.StartRecording(outputPath)
	if err != nil {
		c.logger.Error("engine failed to start recording", "path", outputPath, "error", err)
		return false
	}

	c.mu.Lock()
	c.currentPath = resolved
	c.mu.Unlock()
	c.silence.ResetSilenceTimer()

	if state == StateArmed {
		c.transition(StateRecordingAuto, "signal triggered recording")
		c.publish(events.RecordingEvent{Type: events.AutoStarted, Path: resolved})
	} else {
		c.transition(StateRecordingManual, "manual start requested")
		c.publish(events.RecordingEvent{Type: events.ManualStarted, Path: resolved})
	}
	return true
}

// ManualStopRecording stops the active recording. Returns false when no
// recording is active.
func (c *Controller) ManualStopRecording() bool {
	state := c.State()

	if state != StateRecordingManual && state != StateRecordingAuto {
		c.logger.Warn("not recording", "state", state)
		return false
	}

	returnToArmed := state == StateRecordingAuto && c.IsAutoRecordEnabled()
	c.stopRecording(returnToArmed)
	return true
}

// stopRecording performs the Stopping transition, stops the engine, registers
// the finished recording, and settles into Armed or Idle.
func (c *Controller) stopRecording(returnToArmed bool) {
	c.transition(StateStopping, "stopping recording")

	info, err := c.engine.StopRecording()
	if err != nil {
		// Report and carry on so the state machine cannot wedge.
		if errors.IsCategory(err, errors.CategoryTimeout) {
			c.logger.Error("recording writer missed its shutdown deadline, file may be incomplete", "error", err)
		} else {
			c.logger.Warn("engine stop reported failure", "error", err)
		}
	}

	c.mu.Lock()
	path := c.currentPath
	c.currentPath = ""
	c.mu.Unlock()

	if info != nil && c.registry != nil {
		c.registry.RegisterRecording(info.Path, info.Duration, info.Channels, info.SampleRate)
	}

	if returnToArmed {
		c.publish(events.RecordingEvent{Type: events.AutoStopped, Path: path})
	} else {
		c.publish(events.RecordingEvent{Type: events.ManualStopped, Path: path})
	}

	c.silence.ResetSilenceTimer()

	if returnToArmed {
		c.transition(StateArmed, "recording stopped")
	} else {
		c.transition(StateIdle, "recording stopped")
	}
}

// CheckAutoTriggers is the periodic integration point, fed with the latest
// detector metrics (typically every 100 ms).
//
// In Armed, a begin-threshold crossing only publishes SignalDetected; actually
// starting the recording is left to the subscriber. That separation lets a
// confirmation or preview step sit between the detection and the act of
// opening a file. While recording, sustained silence past the configured
// duration performs the internal stop, returning to Armed if auto-record is
// still enabled, otherwise to Idle.
func (c *Controller) CheckAutoTriggers(metrics detector.Metrics) {
	state := c.State()

	switch state {
	case StateArmed:
		if metrics.AboveBegin {
			c.publish(events.RecordingEvent{
				Type:        events.SignalDetected,
				RMSDecibels: metrics.RMSDecibels,
			})
		}

	case StateRecordingManual, StateRecordingAuto:
		if metrics.SilenceDuration <= 0 {
			return
		}

		threshold := c.silence.SilenceThreshold()
		remaining := threshold - metrics.SilenceDuration
		if remaining < 0 {
			remaining = 0
		}
		c.publish(events.RecordingEvent{
			Type:             events.SilenceDetected,
			SilenceDuration:  metrics.SilenceDuration,
			SilenceThreshold: threshold,
			Remaining:        remaining,
		})

		if c.silence.SilenceThresholdExceeded() {
			c.logger.Info("silence threshold exceeded, stopping recording")
			returnToArmed := state == StateRecordingAuto && c.IsAutoRecordEnabled()
			c.stopRecording(returnToArmed)
		}
	}
}

// SilenceCountdown derives the time remaining before a silence auto-stop.
// The second return is false when not recording or no silence is accruing.
// Read-only; it never mutates state.
func (c *Controller) SilenceCountdown() (time.Duration, bool) {
	if !c.IsRecording() {
		return 0, false
	}

	silence := c.silence.SilenceDuration()
	if silence == 0 {
		return 0, false
	}

	remaining := c.silence.SilenceThreshold() - silence
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// CurrentRecordingPath returns the output path of the active recording, or
// empty when not recording.
func (c *Controller) CurrentRecordingPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPath
}

// persistAutoRecord writes the flag through the store, if attached.
func (c *Controller) persistAutoRecord(enabled bool) {
	if c.store == nil {
		return
	}
	if err := c.store.SetAutoRecordEnabled(enabled); err != nil {
		c.logger.Warn("failed to persist auto-record flag", "enabled", enabled, "error", err)
	}
}
