// Package detector computes windowed RMS loudness and silence duration for
// threshold-based recording triggers.
package detector

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/audiorewind/rewind-go/internal/conf"
	"github.com/audiorewind/rewind-go/internal/errors"
	"github.com/audiorewind/rewind-go/internal/logging"
)

// Metrics is a per-update snapshot of the detector state. Derived, not
// persisted; recomputed on every Update.
type Metrics struct {
	RMSLevels       []float64     // per-channel RMS, 0.0-1.0
	RMSDecibels     []float64     // per-channel RMS in dB
	AboveBegin      bool          // any channel above the begin threshold
	AboveEnd        bool          // any channel above the end threshold
	SilenceDuration time.Duration // continuous silence so far
}

// Config holds the detector parameters.
type Config struct {
	SampleRate       int
	Channels         int
	BeginThresholdDB float64       // dB level that triggers recording start
	EndThresholdDB   float64       // dB level below which silence is counted
	SilenceDuration  time.Duration // continuous silence that triggers stop
	RMSWindow        time.Duration // RMS sliding window length
}

// SignalDetector maintains a per-channel sliding RMS window and wall-clock
// silence tracking. RMS is used instead of peak amplitude so that sustained
// voice or music energy drives triggering, not brief transients. Safe for
// concurrent use from the update and query contexts.
type SignalDetector struct {
	mu sync.Mutex

	sampleRate int
	channels   int

	beginThresholdDB float64
	endThresholdDB   float64
	silenceDuration  time.Duration

	// Sliding RMS window, interleaved frames x channels, ring-style wraparound
	window       []float32
	windowFrames int
	writePos     int
	windowFilled bool

	rmsLevels   []float64
	rmsDecibels []float64

	// Silence tracking; zero time means not currently silent
	silenceStart time.Time

	now    func() time.Time // injectable clock for tests
	logger *slog.Logger
}

// New constructs a signal detector. Parameters outside the typical range are
// accepted with a warning, since valid use cases exist outside it; only
// nonsensical values are rejected.
func New(cfg Config) (*SignalDetector, error) {
	logger := logging.ForService("detector")

	if cfg.SampleRate <= 0 {
		return nil, errors.Newf("invalid sample rate: %d Hz", cfg.SampleRate).
			Component("detector").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.Channels <= 0 {
		return nil, errors.Newf("invalid channel count: %d", cfg.Channels).
			Component("detector").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.RMSWindow <= 0 {
		cfg.RMSWindow = 100 * time.Millisecond
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = 10 * time.Second
	}

	if cfg.BeginThresholdDB < -100 || cfg.BeginThresholdDB > 0 {
		logger.Warn("begin threshold is outside typical range (-100 to 0 dB)",
			"begin_threshold_db", cfg.BeginThresholdDB)
	}
	if cfg.EndThresholdDB < -100 || cfg.EndThresholdDB > 0 {
		logger.Warn("end threshold is outside typical range (-100 to 0 dB)",
			"end_threshold_db", cfg.EndThresholdDB)
	}
	if cfg.SilenceDuration < 100*time.Millisecond || cfg.SilenceDuration > 300*time.Second {
		logger.Warn("silence duration is outside typical range (0.1 to 300 s)",
			"silence_duration", cfg.SilenceDuration)
	}
	if cfg.RMSWindow < 10*time.Millisecond || cfg.RMSWindow > time.Second {
		logger.Warn("RMS window is outside typical range (0.01 to 1.0 s)",
			"rms_window", cfg.RMSWindow)
	}

	windowFrames := int(float64(cfg.SampleRate) * cfg.RMSWindow.Seconds())
	if windowFrames < 1 {
		windowFrames = 1
	}

	d := &SignalDetector{
		sampleRate:       cfg.SampleRate,
		channels:         cfg.Channels,
		beginThresholdDB: cfg.BeginThresholdDB,
		endThresholdDB:   cfg.EndThresholdDB,
		silenceDuration:  cfg.SilenceDuration,
		window:           make([]float32, windowFrames*cfg.Channels),
		windowFrames:     windowFrames,
		rmsLevels:        make([]float64, cfg.Channels),
		rmsDecibels:      make([]float64, cfg.Channels),
		now:              time.Now,
		logger:           logger,
	}
	for ch := range d.rmsDecibels {
		d.rmsDecibels[ch] = conf.SilenceFloorDB
	}

	logger.Info("signal detector initialized",
		"begin_threshold_db", cfg.BeginThresholdDB,
		"end_threshold_db", cfg.EndThresholdDB,
		"silence_duration", cfg.SilenceDuration,
		"rms_window", cfg.RMSWindow)

	return d, nil
}

// Update pushes one interleaved block into the sliding window, recomputes
// RMS and dB per channel from the filled portion, evaluates the begin/end
// thresholds, and advances or resets the silence timer. Silence resets the
// instant any channel exceeds the end threshold.
func (d *SignalDetector) Update(samples []float32, frameCount int) Metrics {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frameCount > 0 && len(samples) >= frameCount*d.channels {
		d.push(samples, frameCount)
	}

	d.computeRMS()

	aboveBegin := false
	aboveEnd := false
	for ch := 0; ch < d.channels; ch++ {
		if d.rmsDecibels[ch] > d.beginThresholdDB {
			aboveBegin = true
		}
		if d.rmsDecibels[ch] > d.endThresholdDB {
			aboveEnd = true
		}
	}

	if aboveEnd {
		// Signal present, silence timer resets immediately
		d.silenceStart = time.Time{}
	} else if d.silenceStart.IsZero() {
		d.silenceStart = d.now()
	}

	m := Metrics{
		RMSLevels:   make([]float64, d.channels),
		RMSDecibels: make([]float64, d.channels),
		AboveBegin:  aboveBegin,
		AboveEnd:    aboveEnd,
	}
	copy(m.RMSLevels, d.rmsLevels)
	copy(m.RMSDecibels, d.rmsDecibels)
	m.SilenceDuration = d.silenceDurationLocked()

	return m
}

// push writes the block into the window with ring-style wraparound.
func (d *SignalDetector) push(samples []float32, frameCount int) {
	src := samples[:frameCount*d.channels]
	for len(src) > 0 {
		remaining := d.windowFrames - d.writePos
		chunk := len(src) / d.channels
		if chunk > remaining {
			chunk = remaining
		}

		copy(d.window[d.writePos*d.channels:], src[:chunk*d.channels])
		src = src[chunk*d.channels:]

		d.writePos += chunk
		if d.writePos >= d.windowFrames {
			d.writePos = 0
			d.windowFilled = true
		}
	}
}

// computeRMS recalculates per-channel RMS and dB from the filled portion of
// the window.
func (d *SignalDetector) computeRMS() {
	frames := d.windowFrames
	if !d.windowFilled {
		frames = d.writePos
	}

	if frames == 0 {
		for ch := 0; ch < d.channels; ch++ {
			d.rmsLevels[ch] = 0
			d.rmsDecibels[ch] = conf.SilenceFloorDB
		}
		return
	}

	for ch := 0; ch < d.channels; ch++ {
		sum := 0.0
		for f := 0; f < frames; f++ {
			v := float64(d.window[f*d.channels+ch])
			sum += v * v
		}
		rms := math.Sqrt(sum / float64(frames))
		d.rmsLevels[ch] = rms

		if rms > conf.RMSEpsilon {
			d.rmsDecibels[ch] = 20 * math.Log10(rms)
		} else {
			d.rmsDecibels[ch] = conf.SilenceFloorDB
		}
	}
}

// ResetSilenceTimer clears the silence duration counter.
func (d *SignalDetector) ResetSilenceTimer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silenceStart = time.Time{}
}

// SilenceDuration returns the length of the current continuous silence, or
// zero if signal is present. Measured against the wall clock from the
// recorded silence start instant, so it stays correct regardless of capture
// callback jitter.
func (d *SignalDetector) SilenceDuration() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.silenceDurationLocked()
}

func (d *SignalDetector) silenceDurationLocked() time.Duration {
	if d.silenceStart.IsZero() {
		return 0
	}
	return d.now().Sub(d.silenceStart)
}

// SilenceThresholdExceeded reports whether silence has lasted at least the
// configured duration.
func (d *SignalDetector) SilenceThresholdExceeded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.silenceDurationLocked() >= d.silenceDuration
}

// SilenceThreshold returns the configured silence duration.
func (d *SignalDetector) SilenceThreshold() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.silenceDuration
}

// Reconfigure atomically updates thresholds and silence duration without
// reallocating the sliding window. Zero-valued fields are treated as "leave
// unchanged" for the durations; thresholds are updated unconditionally.
func (d *SignalDetector) Reconfigure(beginThresholdDB, endThresholdDB float64, silenceDuration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.beginThresholdDB = beginThresholdDB
	d.endThresholdDB = endThresholdDB
	if silenceDuration > 0 {
		d.silenceDuration = silenceDuration
	}

	d.logger.Info("detector reconfigured",
		"begin_threshold_db", beginThresholdDB,
		"end_threshold_db", endThresholdDB,
		"silence_duration", d.silenceDuration)
}
