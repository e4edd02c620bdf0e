package audiocore

import (
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/audiorewind/rewind-go/internal/conf"
	"github.com/audiorewind/rewind-go/internal/errors"
)

// sessionWriter owns the open WAV file of one recording session. It lives on
// the writer goroutine; only the frames counter is read from outside.
type sessionWriter struct {
	path          string
	file          *os.File
	encoder       *wav.Encoder
	channels      int
	framesWritten atomic.Int64
	writeFailures int
	intBuf        []int // reused conversion buffer
	logger        *slog.Logger
}

// newSessionWriter opens the output file and prepares a 16-bit PCM encoder
// at the engine's native sample rate and channel count.
func newSessionWriter(path string, sampleRate, channels int, logger *slog.Logger) (*sessionWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryFileIO).
			Context("operation", "create_recording_file").
			Context("path", path).
			Build()
	}

	return &sessionWriter{
		path:     path,
		file:     file,
		encoder:  wav.NewEncoder(file, sampleRate, conf.BitDepth, channels, 1),
		channels: channels,
		logger:   logger,
	}, nil
}

// writeBlock appends one interleaved float32 block to the file. A failed
// write is logged and the block is skipped; recording continues and the
// final file may simply be short. That degraded outcome is accepted rather
// than crashing audio capture.
func (w *sessionWriter) writeBlock(samples []float32, frameCount int) {
	n := frameCount * w.channels
	if n <= 0 || len(samples) < n {
		return
	}

	if cap(w.intBuf) < n {
		w.intBuf = make([]int, n)
	}
	buf := w.intBuf[:n]
	for i := 0; i < n; i++ {
		buf[i] = float32ToInt16(samples[i])
	}

	err := w.encoder.Write(&audio.IntBuffer{
		Data: buf,
		Format: &audio.Format{
			SampleRate:  w.encoder.SampleRate,
			NumChannels: w.channels,
		},
	})
	if err != nil {
		w.writeFailures++
		w.logger.Error("failed to write audio block, skipping",
			"path", w.path,
			"frames", frameCount,
			"failures", w.writeFailures,
			"error", err)
		return
	}

	w.framesWritten.Add(int64(frameCount))
}

// close finalizes the WAV header and closes the file.
func (w *sessionWriter) close() {
	if err := w.encoder.Close(); err != nil {
		w.logger.Error("failed to finalize recording", "path", w.path, "error", err)
	}
	if err := w.file.Close(); err != nil {
		w.logger.Error("failed to close recording file", "path", w.path, "error", err)
	}
}

// float32ToInt16 clamps a normalized sample into the signed 16-bit range.
func float32ToInt16(sample float32) int {
	switch {
	case sample >= 1.0:
		return 32767
	case sample <= -1.0:
		return -32768
	default:
		return int(sample * 32767)
	}
}
