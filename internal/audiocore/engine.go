// Package audiocore owns the capture device, the retroactive ring buffer and
// the record-to-disk pipeline.
package audiocore

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/audiorewind/rewind-go/internal/errors"
	"github.com/audiorewind/rewind-go/internal/logging"
)

// ErrAlreadyRecording is returned by StartRecording when a recording session
// is already active.
var ErrAlreadyRecording = errors.NewStd("already recording")

// ErrRecordingActive is returned by operations that are refused while a
// recording is in progress, such as changing the capture source.
var ErrRecordingActive = errors.NewStd("operation not allowed while recording")

// Config holds the construction parameters of the audio engine.
type Config struct {
	SampleRate      int           // capture sample rate in Hz
	Channels        int           // capture channel count
	BufferDuration  int           // pre-roll history in seconds
	BlockSize       int           // frames per capture block
	QueueSize       int           // writer queue depth in blocks
	ShutdownTimeout time.Duration // writer join deadline on stop
	Source          string        // capture device name or ID
	Debug           bool
}

// RecordingInfo describes a finished recording.
type RecordingInfo struct {
	Path          string
	FramesWritten int64
	Duration      time.Duration
	Channels      int
	SampleRate    int
}

// audioBlock is a pooled copy of one capture block queued for the writer.
type audioBlock struct {
	buf    []float32
	frames int
}

// AudioEngine accepts fixed-size audio blocks from the capture callback,
// maintains the pre-roll ring buffer and per-channel metering, and streams
// blocks to disk while a recording session is active.
//
// Three execution contexts touch the engine: the capture callback (write
// path, must stay bounded), the writer goroutine (drains the block queue to
// disk), and the control context issuing start/stop/configure calls.
type AudioEngine struct {
	cfg  Config
	ring *RingBuffer
	pool *Float32Pool

	// Metering, updated from the capture path
	levelMu  sync.Mutex
	peaks    []float64
	decibels []float64

	// Recording pipeline
	recMu      sync.Mutex // serializes StartRecording / StopRecording
	recording  atomic.Bool
	queue      chan audioBlock
	writerStop chan struct{}
	writerDone chan struct{}
	writer     *sessionWriter
	dropped    atomic.Uint64

	// Optional observer of every capture block, e.g. a signal detector.
	tap atomic.Pointer[SampleTap]

	// Capture device
	devMu    sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	convBuf  []float32 // capture byte-to-float staging, grows on demand

	logger *slog.Logger
}

// NewEngine constructs an audio engine. The ring buffer's channel dimension
// is fixed here; changing the channel count later requires Rebuild.
func NewEngine(cfg Config) (*AudioEngine, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.Newf("invalid sample rate: %d Hz", cfg.SampleRate).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.Channels <= 0 {
		return nil, errors.Newf("invalid channel count: %d", cfg.Channels).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.BufferDuration <= 0 {
		return nil, errors.Newf("invalid buffer duration: %d seconds", cfg.BufferDuration).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 1024
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	ring, err := NewRingBuffer(cfg.SampleRate*cfg.BufferDuration, cfg.Channels)
	if err != nil {
		return nil, err
	}

	pool, err := NewFloat32Pool(cfg.BlockSize * cfg.Channels)
	if err != nil {
		return nil, err
	}

	return &AudioEngine{
		cfg:      cfg,
		ring:     ring,
		pool:     pool,
		peaks:    make([]float64, cfg.Channels),
		decibels: make([]float64, cfg.Channels),
		logger:   logging.ForService("audiocore"),
	}, nil
}

// Config returns the engine's construction parameters.
func (e *AudioEngine) Config() Config {
	return e.cfg
}

// SampleTap observes every interleaved capture block. It runs on the capture
// thread and must stay bounded.
type SampleTap func(samples []float32, frameCount int)

// SetSampleTap installs tap as the capture block observer. Pass nil to
// remove it.
func (e *AudioEngine) SetSampleTap(tap SampleTap) {
	if tap == nil {
		e.tap.Store(nil)
		return
	}
	e.tap.Store(&tap)
}

// ProcessSamples is the engine's real-time entry point, invoked by the
// capture callback with one interleaved block. It must not block or allocate
// in steady state: ring write and metering are bounded, and the writer
// handoff is a pooled copy into a bounded channel that drops when full.
// Any internal fault is swallowed; a missed block is preferable to a crashed
// capture thread.
func (e *AudioEngine) ProcessSamples(samples []float32, frameCount int) {
	defer func() {
		if r := recover(); r != nil {
			e.dropped.Add(1)
		}
	}()

	if frameCount <= 0 || len(samples) < frameCount*e.cfg.Channels {
		return
	}

	e.ring.Write(samples, frameCount)

	e.levelMu.Lock()
	measureBlockLevels(samples, frameCount, e.cfg.Channels, e.peaks, e.decibels)
	e.levelMu.Unlock()

	if tap := e.tap.Load(); tap != nil {
		(*tap)(samples, frameCount)
	}

	if !e.recording.Load() {
		return
	}

	// Copy the block so the writer never observes ring overwrites. Pooled
	// buffers hold one full block; larger callbacks are clamped.
	n := frameCount * e.cfg.Channels
	buf := e.pool.Get()
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf[:n], samples[:n])

	select {
	case e.queue <- audioBlock{buf: buf, frames: n / e.cfg.Channels}:
	default:
		// Queue full: drop rather than stall the capture path.
		e.pool.Put(buf)
		e.dropped.Add(1)
	}
}

// Levels returns a copy of the current per-channel peak and dB levels for
// VU-meter rendering.
func (e *AudioEngine) Levels() (peaks, decibels []float64) {
	e.levelMu.Lock()
	defer e.levelMu.Unlock()

	peaks = make([]float64, len(e.peaks))
	decibels = make([]float64, len(e.decibels))
	copy(peaks, e.peaks)
	copy(decibels, e.decibels)
	return peaks, decibels
}

// IsRecording reports whether a recording session is active.
func (e *AudioEngine) IsRecording() bool {
	return e.recording.Load()
}

// DroppedBlocks returns the number of capture blocks dropped on the writer
// queue since construction.
func (e *AudioEngine) DroppedBlocks() uint64 {
	return e.dropped.Load()
}

// Ring exposes the pre-roll buffer for inspection.
func (e *AudioEngine) Ring() *RingBuffer {
	return e.ring
}

// StartRecording begins streaming audio to outputPath. The pre-roll history
// is snapshotted first, parent directories are created, and a writer
// goroutine is launched that writes the pre-roll followed by live blocks.
// Returns the resolved output path, or ErrAlreadyRecording if a session is
// already active.
func (e *AudioEngine) StartRecording(outputPath string) (string, error) {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.recording.Load() {
		return "", ErrAlreadyRecording
	}

	// A writer that missed its shutdown deadline may still be flushing the
	// previous file. Starting now would race two writers on the disk, so
	// refuse until it exits.
	if e.writerDone != nil {
		select {
		case <-e.writerDone:
		default:
			return "", errors.Newf("previous recording writer is still shutting down").
				Component("audiocore").
				Category(errors.CategoryState).
				Context("operation", "start_recording").
				Build()
		}
	}

	resolved, err := filepath.Abs(outputPath)
	if err != nil {
		resolved = outputPath
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", errors.New(err).
			Component("audiocore").
			Category(errors.CategoryFileIO).
			Context("operation", "create_recording_dir").
			Build()
	}

	// Snapshot before the recording flag flips so the pre-roll and the live
	// queue never overlap.
	preRoll := e.ring.Snapshot()

	writer, err := newSessionWriter(resolved, e.cfg.SampleRate, e.cfg.Channels, e.logger)
	if err != nil {
		return "", err
	}

	e.writer = writer
	e.queue = make(chan audioBlock, e.cfg.QueueSize)
	e.writerStop = make(chan struct{})
	e.writerDone = make(chan struct{})
	e.recording.Store(true)

	go e.writerLoop(writer, preRoll, e.queue, e.writerStop, e.writerDone)

	e.logger.Info("recording started",
		"path", resolved,
		"pre_roll_frames", len(preRoll)/e.cfg.Channels,
		"channels", e.cfg.Channels,
		"sample_rate", e.cfg.SampleRate)

	return resolved, nil
}

// StopRecording ends the active session: the recording flag is cleared, the
// writer drains the remaining queue and closes the file, and residual queue
// entries are purged. Calling it with no active session is a no-op. A writer
// that fails to finish within the shutdown timeout yields a timeout error
// the caller must surface; it may indicate a stuck disk.
func (e *AudioEngine) StopRecording() (*RecordingInfo, error) {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if !e.recording.Load() {
		return nil, nil
	}

	e.recording.Store(false)
	close(e.writerStop)

	select {
	case <-e.writerDone:
	case <-time.After(e.cfg.ShutdownTimeout):
		e.purgeQueue()
		return nil, errors.Newf("recording writer did not finish within %s", e.cfg.ShutdownTimeout).
			Component("audiocore").
			Category(errors.CategoryTimeout).
			Context("operation", "stop_recording").
			Context("path", e.writer.path).
			Build()
	}

	e.purgeQueue()

	frames := e.writer.framesWritten.Load()
	info := &RecordingInfo{
		Path:          e.writer.path,
		FramesWritten: frames,
		Duration:      time.Duration(float64(frames) / float64(e.cfg.SampleRate) * float64(time.Second)),
		Channels:      e.cfg.Channels,
		SampleRate:    e.cfg.SampleRate,
	}
	e.writer = nil

	e.logger.Info("recording stopped",
		"path", info.Path,
		"frames", info.FramesWritten,
		"duration", info.Duration)

	return info, nil
}

// writerLoop drains the block queue to disk: reconstructed pre-roll first,
// then live blocks until stop is closed and the queue is empty. The queue
// and signalling channels belong to one session and are passed in, so a
// writer that outlives its shutdown deadline can never observe a later
// session's pipeline.
func (e *AudioEngine) writerLoop(writer *sessionWriter, preRoll []float32, queue chan audioBlock, stop, done chan struct{}) {
	defer close(done)
	defer writer.close()

	if len(preRoll) > 0 {
		writer.writeBlock(preRoll, len(preRoll)/e.cfg.Channels)
	}

	for {
		select {
		case block := <-queue:
			writer.writeBlock(block.buf[:block.frames*e.cfg.Channels], block.frames)
			e.pool.Put(block.buf)
		case <-stop:
			// Flush what is already queued, then finalize the file.
			for {
				select {
				case block := <-queue:
					writer.writeBlock(block.buf[:block.frames*e.cfg.Channels], block.frames)
					e.pool.Put(block.buf)
				default:
					return
				}
			}
		}
	}
}

// purgeQueue discards any residual queued blocks after the writer exits.
func (e *AudioEngine) purgeQueue() {
	if e.queue == nil {
		return
	}
	for {
		select {
		case block := <-e.queue:
			e.pool.Put(block.buf)
		default:
			return
		}
	}
}

// Start initializes the capture device and begins feeding ProcessSamples.
func (e *AudioEngine) Start() error {
	e.devMu.Lock()
	defer e.devMu.Unlock()

	if e.device != nil {
		return nil
	}

	backend := platformBackend()

	malgoCtx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(message string) {
		if e.cfg.Debug {
			e.logger.Debug("miniaudio", "message", message)
		}
	})
	if err != nil {
		return errors.Newf("audio context init failed: %w", err).
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Build()
	}

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		_ = malgoCtx.Uninit()
		return errors.Newf("failed to enumerate capture devices: %w", err).
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Build()
	}

	source, err := selectCaptureSource(infos, e.cfg.Source)
	if err != nil {
		_ = malgoCtx.Uninit()
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(e.cfg.Channels)
	deviceConfig.SampleRate = uint32(e.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1
	deviceConfig.Capture.DeviceID = source.Pointer
	deviceConfig.PeriodSizeInFrames = uint32(e.cfg.BlockSize)

	onReceiveFrames := func(_, pSamples []byte, frameCount uint32) {
		e.ProcessSamples(e.bytesToFloat32(pSamples), int(frameCount))
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onReceiveFrames,
	})
	if err != nil {
		_ = malgoCtx.Uninit()
		return errors.Newf("capture device init failed: %w", err).
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Context("source", e.cfg.Source).
			Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		return errors.Newf("capture device start failed: %w", err).
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Build()
	}

	e.malgoCtx = malgoCtx
	e.device = device

	e.logger.Info("capture started",
		"source", source.Name,
		"source_id", source.ID,
		"sample_rate", e.cfg.SampleRate,
		"channels", e.cfg.Channels,
		"buffer_duration", e.cfg.BufferDuration)

	return nil
}

// Stop releases the capture device. An active recording is stopped first so
// the writer can drain; its error, if any, is returned.
func (e *AudioEngine) Stop() error {
	var stopErr error
	if e.recording.Load() {
		_, stopErr = e.StopRecording()
	}

	e.devMu.Lock()
	defer e.devMu.Unlock()

	if e.device != nil {
		e.device.Uninit()
		e.device = nil
	}
	if e.malgoCtx != nil {
		_ = e.malgoCtx.Uninit()
		e.malgoCtx = nil
	}

	return stopErr
}

// SetSource switches the capture device. Refused while recording, since
// changing input topology mid-write would invalidate in-flight buffers.
func (e *AudioEngine) SetSource(source string) error {
	if e.recording.Load() {
		return ErrRecordingActive
	}

	running := e.deviceRunning()
	if running {
		if err := e.Stop(); err != nil {
			return err
		}
	}

	e.cfg.Source = source

	if running {
		return e.Start()
	}
	return nil
}

// Rebuild tears the engine down and reconstructs it with a new channel
// count. The ring buffer's channel dimension is fixed at construction, so
// the old pre-roll contents are discarded. Refused while recording.
func (e *AudioEngine) Rebuild(channels int) (*AudioEngine, error) {
	if e.recording.Load() {
		return nil, ErrRecordingActive
	}

	if err := e.Stop(); err != nil {
		return nil, err
	}

	cfg := e.cfg
	cfg.Channels = channels
	return NewEngine(cfg)
}

func (e *AudioEngine) deviceRunning() bool {
	e.devMu.Lock()
	defer e.devMu.Unlock()
	return e.device != nil
}

// bytesToFloat32 reinterprets the little-endian float32 capture payload into
// the staging buffer, growing it only when the callback delivers more data
// than seen before.
func (e *AudioEngine) bytesToFloat32(data []byte) []float32 {
	n := len(data) / 4
	if cap(e.convBuf) < n {
		e.convBuf = make([]float32, n)
	}
	buf := e.convBuf[:n]
	for i := 0; i < n; i++ {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		buf[i] = math.Float32frombits(bits)
	}
	return buf
}

// platformBackend picks the native audio backend for the host OS.
func platformBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}
