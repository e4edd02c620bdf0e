// Package capture implements the capture command, running the full audio
// pipeline: device capture, pre-roll ring buffer, signal detection, and the
// recording state machine.
package capture

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiorewind/rewind-go/internal/audiocore"
	"github.com/audiorewind/rewind-go/internal/conf"
	"github.com/audiorewind/rewind-go/internal/controller"
	"github.com/audiorewind/rewind-go/internal/detector"
	"github.com/audiorewind/rewind-go/internal/events"
	"github.com/audiorewind/rewind-go/internal/logging"
	"github.com/audiorewind/rewind-go/internal/session"
)

// triggerInterval is how often detector metrics are folded into the state
// machine. 100 ms keeps silence countdowns responsive without busy-polling.
const triggerInterval = 100 * time.Millisecond

// Command creates the capture command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "capture",
		Short: "Run the capture pipeline",
		Long:  "Capture audio continuously into a pre-roll buffer and record to disk on demand or on detected signal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(settings)
		},
	}
}

func runCapture(settings *conf.Settings) error {
	logger := logging.ForService("capture")

	engine, err := audiocore.NewEngine(audiocore.Config{
		SampleRate:      conf.SampleRate,
		Channels:        settings.Audio.Channels,
		BufferDuration:  settings.Audio.BufferDuration,
		BlockSize:       settings.Audio.BlockSize,
		QueueSize:       settings.Audio.QueueSize,
		ShutdownTimeout: time.Duration(settings.Audio.ShutdownTimeout) * time.Second,
		Source:          settings.Audio.Source,
		Debug:           settings.Debug,
	})
	if err != nil {
		return err
	}

	det, err := detector.New(detector.Config{
		SampleRate:       conf.SampleRate,
		Channels:         settings.Audio.Channels,
		BeginThresholdDB: settings.Detector.BeginThresholdDB,
		EndThresholdDB:   settings.Detector.EndThresholdDB,
		SilenceDuration:  secondsToDuration(settings.Detector.SilenceDuration),
		RMSWindow:        secondsToDuration(settings.Detector.RMSWindow),
	})
	if err != nil {
		return err
	}

	manager := session.NewManager(settings.Session.TempRoot, settings.Output.Path)
	sess, err := manager.Create()
	if err != nil {
		return err
	}

	bus := events.NewBus(events.DefaultBufferSize)
	defer bus.Close()

	ctl := controller.New(engine, det, settings, sess, bus)

	// Latest detector metrics, shared between the capture tap and the
	// trigger ticker.
	var metricsMu sync.Mutex
	var latest detector.Metrics

	engine.SetSampleTap(func(samples []float32, frameCount int) {
		m := det.Update(samples, frameCount)
		metricsMu.Lock()
		latest = m
		metricsMu.Unlock()
	})

	eventCh, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	go func() {
		for event := range eventCh {
			handleEvent(event, ctl, sess, logger)
		}
	}()

	if err := engine.Start(); err != nil {
		_ = manager.Discard(sess)
		return err
	}

	if settings.AutoRecord.Enabled {
		ctl.EnableAutoRecord()
	}

	logger.Info("capture running",
		"session", sess.ID(),
		"buffer_duration", settings.Audio.BufferDuration,
		"auto_record", ctl.IsAutoRecordEnabled())
	fmt.Printf("Capturing with %ds pre-roll buffer. Press Ctrl+C to stop.\n", settings.Audio.BufferDuration)

	ticker := time.NewTicker(triggerInterval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			metricsMu.Lock()
			m := latest
			metricsMu.Unlock()
			ctl.CheckAutoTriggers(m)

		case sig := <-quit:
			logger.Info("shutdown signal received", "signal", sig.String())
			return shutdown(engine, ctl, manager, sess, logger)
		}
	}
}

// handleEvent reacts to state machine events. Signal detection is decoupled
// from the act of recording: the controller only announces the trigger, and
// this handler decides the file path and starts the session.
func handleEvent(event events.RecordingEvent, ctl *controller.Controller, sess *session.Session, logger *slog.Logger) {
	switch event.Type {
	case events.SignalDetected:
		path := sess.NextRecordingPath()
		if ctl.ManualStartRecording(path) {
			logger.Info("signal triggered recording", "path", path, "levels_db", event.RMSDecibels)
		}

	case events.AutoStarted, events.ManualStarted:
		fmt.Printf("Recording started: %s\n", event.Path)

	case events.AutoStopped, events.ManualStopped:
		fmt.Printf("Recording stopped: %s\n", event.Path)

	case events.SilenceDetected:
		if event.Remaining > 0 {
			fmt.Printf("\rSilence: stopping in %.0fs ", event.Remaining.Seconds())
		}
	}
}

// shutdown stops the pipeline and persists the session. A session with
// recordings is saved to the output directory; an empty one is removed.
func shutdown(engine *audiocore.AudioEngine, ctl *controller.Controller, manager *session.Manager, sess *session.Session, logger *slog.Logger) error {
	if ctl.IsRecording() {
		ctl.ManualStopRecording()
	}

	if err := engine.Stop(); err != nil {
		logger.Warn("engine stop failed", "error", err)
	}

	dest, err := manager.Save(sess)
	if err != nil {
		return err
	}
	if dest != "" {
		fmt.Printf("Session saved: %s\n", dest)
	}

	if settings := conf.Setting(); settings.Session.AutoCleanupDays > 0 {
		if removed, err := manager.CleanupOldSessions(settings.Session.AutoCleanupDays); err == nil && removed > 0 {
			logger.Info("cleaned up stale sessions", "removed", removed)
		}
	}

	return nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
