package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiorewind/rewind-go/internal/audiocore"
	"github.com/audiorewind/rewind-go/internal/detector"
	"github.com/audiorewind/rewind-go/internal/errors"
	"github.com/audiorewind/rewind-go/internal/events"
)

type fakeRecorder struct {
	recording  bool
	startErr   error
	stopErr    error
	startCalls int
	stopCalls  int
	lastPath   string
	info       *audiocore.RecordingInfo
}

func (f *fakeRecorder) StartRecording(outputPath string) (string, error) {
	f.startCalls++
	if f.startErr != nil {
		return "", f.startErr
	}
	f.recording = true
	f.lastPath = outputPath
	return outputPath, nil
}

func (f *fakeRecorder) StopRecording() (*audiocore.RecordingInfo, error) {
	f.stopCalls++
	f.recording = false
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	if f.info != nil {
		return f.info, nil
	}
	return &audiocore.RecordingInfo{Path: f.lastPath}, nil
}

type fakeSilence struct {
	duration  time.Duration
	threshold time.Duration
	resets    int
}

func (f *fakeSilence) ResetSilenceTimer()            { f.resets++; f.duration = 0 }
func (f *fakeSilence) SilenceDuration() time.Duration { return f.duration }
func (f *fakeSilence) SilenceThresholdExceeded() bool { return f.duration >= f.threshold }
func (f *fakeSilence) SilenceThreshold() time.Duration { return f.threshold }

type fakeStore struct {
	enabled bool
	saves   int
}

func (f *fakeStore) GetAutoRecordEnabled() bool { return f.enabled }
func (f *fakeStore) SetAutoRecordEnabled(enabled bool) error {
	f.enabled = enabled
	f.saves++
	return nil
}

type fakeRegistrar struct {
	paths     []string
	durations []time.Duration
}

func (f *fakeRegistrar) RegisterRecording(path string, duration time.Duration, channels, sampleRate int) {
	f.paths = append(f.paths, path)
	f.durations = append(f.durations, duration)
}

func newTestController(t *testing.T) (*Controller, *fakeRecorder, *fakeSilence, *fakeStore, *fakeRegistrar, <-chan events.RecordingEvent) {
	t.Helper()

	rec := &fakeRecorder{}
	sil := &fakeSilence{threshold: 10 * time.Second}
	store := &fakeStore{}
	reg := &fakeRegistrar{}
	bus := events.NewBus(events.DefaultBufferSize)
	t.Cleanup(bus.Close)

	ch, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)

	return New(rec, sil, store, reg, bus), rec, sil, store, reg, ch
}

// drainEvents collects everything currently buffered on the subscription.
func drainEvents(ch <-chan events.RecordingEvent) []events.RecordingEvent {
	var out []events.RecordingEvent
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventTypes(evts []events.RecordingEvent) []events.EventType {
	types := make([]events.EventType, 0, len(evts))
	for _, e := range evts {
		types = append(types, e.Type)
	}
	return types
}

func TestController_InitialState(t *testing.T) {
	t.Parallel()

	ctl, _, _, _, _, _ := newTestController(t)
	assert.Equal(t, StateIdle, ctl.State())
	assert.False(t, ctl.IsRecording())
	assert.False(t, ctl.IsAutoRecordEnabled())
}

func TestController_PersistedFlagRestored(t *testing.T) {
	t.Parallel()

	store := &fakeStore{enabled: true}
	ctl := New(&fakeRecorder{}, &fakeSilence{}, store, nil, nil)
	assert.True(t, ctl.IsAutoRecordEnabled())
	// Restoring the flag does not arm by itself; the caller decides when.
	assert.Equal(t, StateIdle, ctl.State())
}

func TestController_EnableDisableAutoRecord(t *testing.T) {
	t.Parallel()

	ctl, _, sil, store, _, ch := newTestController(t)

	assert.True(t, ctl.EnableAutoRecord())
	assert.Equal(t, StateArmed, ctl.State())
	assert.True(t, store.enabled)
	assert.Equal(t, 1, sil.resets)

	// Enabling while armed is a no-op success.
	assert.True(t, ctl.EnableAutoRecord())
	assert.Equal(t, StateArmed, ctl.State())

	assert.True(t, ctl.DisableAutoRecord())
	assert.Equal(t, StateIdle, ctl.State())
	assert.False(t, store.enabled)

	types := eventTypes(drainEvents(ch))
	assert.Equal(t, []events.EventType{events.StateChanged, events.StateChanged}, types)
}

func TestController_ManualRecordingLifecycle(t *testing.T) {
	t.Parallel()

	ctl, rec, _, _, reg, ch := newTestController(t)

	require.True(t, ctl.ManualStartRecording("/tmp/take.wav"))
	assert.Equal(t, StateRecordingManual, ctl.State())
	assert.True(t, ctl.IsRecording())
	assert.Equal(t, "/tmp/take.wav", ctl.CurrentRecordingPath())

	// Starting again while recording is refused without touching the engine.
	assert.False(t, ctl.ManualStartRecording("/tmp/other.wav"))
	assert.Equal(t, 1, rec.startCalls)

	require.True(t, ctl.ManualStopRecording())
	assert.Equal(t, StateIdle, ctl.State())
	assert.False(t, ctl.IsRecording())
	assert.Empty(t, ctl.CurrentRecordingPath())
	assert.Equal(t, 1, rec.stopCalls)
	assert.Equal(t, []string{"/tmp/take.wav"}, reg.paths)

	types := eventTypes(drainEvents(ch))
	assert.Equal(t, []events.EventType{
		events.StateChanged,   // -> recording_manual
		events.ManualStarted,
		events.StateChanged,   // -> stopping
		events.ManualStopped,
		events.StateChanged,   // -> idle
	}, types)
}

func TestController_StopWithoutRecording(t *testing.T) {
	t.Parallel()

	ctl, rec, _, _, _, _ := newTestController(t)
	assert.False(t, ctl.ManualStopRecording())
	assert.Zero(t, rec.stopCalls)
}

func TestController_EngineFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	ctl, rec, _, _, _, ch := newTestController(t)
	rec.startErr = assert.AnError

	assert.False(t, ctl.ManualStartRecording("/tmp/take.wav"))
	assert.Equal(t, StateIdle, ctl.State())
	assert.Empty(t, drainEvents(ch))
}

func TestController_ArmedStartBecomesAuto(t *testing.T) {
	t.Parallel()

	ctl, _, _, _, _, ch := newTestController(t)

	require.True(t, ctl.EnableAutoRecord())
	drainEvents(ch)

	require.True(t, ctl.ManualStartRecording("/tmp/auto.wav"))
	assert.Equal(t, StateRecordingAuto, ctl.State())

	types := eventTypes(drainEvents(ch))
	assert.Contains(t, types, events.AutoStarted)
}

func TestController_AutoStopReturnsToArmed(t *testing.T) {
	t.Parallel()

	ctl, rec, sil, _, _, ch := newTestController(t)

	require.True(t, ctl.EnableAutoRecord())
	require.True(t, ctl.ManualStartRecording("/tmp/auto.wav"))
	require.Equal(t, StateRecordingAuto, ctl.State())
	drainEvents(ch)

	// Silence has crossed the threshold.
	sil.duration = 11 * time.Second
	ctl.CheckAutoTriggers(detector.Metrics{SilenceDuration: sil.duration})

	assert.Equal(t, StateArmed, ctl.State())
	assert.Equal(t, 1, rec.stopCalls)

	types := eventTypes(drainEvents(ch))
	assert.Contains(t, types, events.SilenceDetected)
	assert.Contains(t, types, events.AutoStopped)
}

func TestController_AutoStopGoesIdleWhenDisarmed(t *testing.T) {
	t.Parallel()

	ctl, _, _, _, _, _ := newTestController(t)

	require.True(t, ctl.EnableAutoRecord())
	require.True(t, ctl.ManualStartRecording("/tmp/auto.wav"))

	// Disabling mid-recording stops the auto recording and settles in
	// Idle instead of re-arming.
	assert.True(t, ctl.DisableAutoRecord())
	assert.Equal(t, StateIdle, ctl.State())
}

func TestController_SilenceStopOfManualRecordingGoesIdle(t *testing.T) {
	t.Parallel()

	ctl, rec, sil, _, _, _ := newTestController(t)

	require.True(t, ctl.ManualStartRecording("/tmp/take.wav"))
	require.Equal(t, StateRecordingManual, ctl.State())

	// A manual recording stopped by silence never re-arms.
	sil.duration = 11 * time.Second
	ctl.CheckAutoTriggers(detector.Metrics{SilenceDuration: sil.duration})

	assert.Equal(t, StateIdle, ctl.State())
	assert.Equal(t, 1, rec.stopCalls)
}

func TestController_ManualStopOfAutoRecordingRearms(t *testing.T) {
	t.Parallel()

	ctl, _, _, _, _, _ := newTestController(t)

	require.True(t, ctl.EnableAutoRecord())
	require.True(t, ctl.ManualStartRecording("/tmp/auto.wav"))

	require.True(t, ctl.ManualStopRecording())
	assert.Equal(t, StateArmed, ctl.State())
}

func TestController_SignalDetectedOnlyWhileArmed(t *testing.T) {
	t.Parallel()

	ctl, rec, _, _, _, ch := newTestController(t)
	metrics := detector.Metrics{AboveBegin: true, RMSDecibels: []float64{-12.5}}

	// Idle: triggers are ignored.
	ctl.CheckAutoTriggers(metrics)
	assert.Empty(t, drainEvents(ch))

	require.True(t, ctl.EnableAutoRecord())
	drainEvents(ch)

	ctl.CheckAutoTriggers(metrics)
	evts := drainEvents(ch)
	require.Len(t, evts, 1)
	assert.Equal(t, events.SignalDetected, evts[0].Type)
	assert.Equal(t, []float64{-12.5}, evts[0].RMSDecibels)

	// Detection announces; it does not start the recording itself.
	assert.Zero(t, rec.startCalls)
	assert.Equal(t, StateArmed, ctl.State())
}

func TestController_SilenceCountdown(t *testing.T) {
	t.Parallel()

	ctl, _, sil, _, _, _ := newTestController(t)

	_, active := ctl.SilenceCountdown()
	assert.False(t, active)

	require.True(t, ctl.ManualStartRecording("/tmp/take.wav"))

	_, active = ctl.SilenceCountdown()
	assert.False(t, active, "no silence accruing yet")

	sil.duration = 4 * time.Second
	remaining, active := ctl.SilenceCountdown()
	assert.True(t, active)
	assert.Equal(t, 6*time.Second, remaining)

	sil.duration = 15 * time.Second
	remaining, active = ctl.SilenceCountdown()
	assert.True(t, active)
	assert.Equal(t, time.Duration(0), remaining)
}

func TestController_StopTimeoutDoesNotWedge(t *testing.T) {
	t.Parallel()

	ctl, rec, _, _, reg, _ := newTestController(t)
	rec.stopErr = errors.Newf("recording writer did not finish").
		Component("audiocore").
		Category(errors.CategoryTimeout).
		Build()

	require.True(t, ctl.ManualStartRecording("/tmp/take.wav"))
	require.True(t, ctl.ManualStopRecording())

	// The state machine settles even though the engine reported a timeout;
	// nothing is registered because there is no recording info.
	assert.Equal(t, StateIdle, ctl.State())
	assert.Empty(t, reg.paths)
	assert.False(t, ctl.IsRecording())
}

func TestController_RegistrarReceivesRecordingInfo(t *testing.T) {
	t.Parallel()

	ctl, rec, _, _, reg, _ := newTestController(t)
	rec.info = &audiocore.RecordingInfo{
		Path:          "/tmp/take.wav",
		FramesWritten: 48000,
		Duration:      time.Second,
		Channels:      2,
		SampleRate:    48000,
	}

	require.True(t, ctl.ManualStartRecording("/tmp/take.wav"))
	require.True(t, ctl.ManualStopRecording())

	require.Len(t, reg.paths, 1)
	assert.Equal(t, "/tmp/take.wav", reg.paths[0])
	assert.Equal(t, time.Second, reg.durations[0])
}
