// Package session tracks recordings produced during one run of the capture
// pipeline. Recordings land in a per-session temp directory with a JSON
// manifest; saving a session moves the whole directory to its final home,
// discarding removes it, and stale unsaved sessions are cleaned up by age.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiorewind/rewind-go/internal/errors"
	"github.com/audiorewind/rewind-go/internal/logging"
)

const manifestName = "session.json"

// Recording is one finished capture inside a session.
type Recording struct {
	Path       string        `json:"path"`
	Duration   time.Duration `json:"duration"`
	Channels   int           `json:"channels"`
	SampleRate int           `json:"sample_rate"`
	CreatedAt  time.Time     `json:"created_at"`
}

// manifest is the on-disk shape of a session.
type manifest struct {
	ID         string      `json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	Recordings []Recording `json:"recordings"`
}

// Session owns one temp directory of recordings plus its manifest.
type Session struct {
	mu         sync.Mutex
	id         string
	dir        string
	createdAt  time.Time
	recordings []Recording
	logger     *slog.Logger
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Dir returns the session's working directory.
func (s *Session) Dir() string { return s.dir }

// Recordings returns a copy of the registered recordings in order.
func (s *Session) Recordings() []Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Recording, len(s.recordings))
	copy(out, s.recordings)
	return out
}

// NextRecordingPath returns the path the next recording should be written
// to, numbered sequentially inside the session directory.
func (s *Session) NextRecordingPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filepath.Join(s.dir, fmt.Sprintf("%03d_recording.wav", len(s.recordings)+1))
}

// RegisterRecording records a finished capture and persists the manifest.
// Called after the writer has closed the file, so duration is the real
// frames-derived length, not an estimate.
func (s *Session) RegisterRecording(path string, duration time.Duration, channels, sampleRate int) {
	s.mu.Lock()
	s.recordings = append(s.recordings, Recording{
		Path:       path,
		Duration:   duration,
		Channels:   channels,
		SampleRate: sampleRate,
		CreatedAt:  time.Now(),
	})
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		s.logger.Warn("failed to persist session manifest", "error", err)
	}
	s.logger.Info("recording registered",
		"path", path,
		"duration", duration,
		"count", len(s.Recordings()))
}

// persist writes the manifest atomically next to the recordings.
func (s *Session) persist() error {
	s.mu.Lock()
	m := manifest{ID: s.id, CreatedAt: s.createdAt, Recordings: s.recordings}
	s.mu.Unlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.New(err).
			Component("session").
			Category(errors.CategorySession).
			Build()
	}

	tmp := filepath.Join(s.dir, manifestName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.New(err).
			Component("session").
			Category(errors.CategoryFileIO).
			Context("path", tmp).
			Build()
	}
	return os.Rename(tmp, filepath.Join(s.dir, manifestName))
}

// LoadFromDirectory reads a session manifest back from dir.
func LoadFromDirectory(dir string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, errors.New(err).
			Component("session").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.New(err).
			Component("session").
			Category(errors.CategorySession).
			Context("dir", dir).
			Build()
	}

	return &Session{
		id:         m.ID,
		dir:        dir,
		createdAt:  m.CreatedAt,
		recordings: m.Recordings,
		logger:     logging.ForService("session"),
	}, nil
}

// Manager creates and disposes sessions under a shared temp root.
type Manager struct {
	tempRoot   string
	outputRoot string
	logger     *slog.Logger
}

// NewManager builds a manager rooted at tempRoot for in-progress sessions,
// saving finished ones under outputRoot.
func NewManager(tempRoot, outputRoot string) *Manager {
	return &Manager{
		tempRoot:   tempRoot,
		outputRoot: outputRoot,
		logger:     logging.ForService("session"),
	}
}

// Create starts a fresh session. The ID carries a timestamp for humans and a
// uuid suffix so concurrent instances can never collide.
func (m *Manager) Create() (*Session, error) {
	now := time.Now()
	id := fmt.Sprintf("%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
	dir := filepath.Join(m.tempRoot, id)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("session").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	s := &Session{
		id:        id,
		dir:       dir,
		createdAt: now,
		logger:    logging.ForService("session"),
	}

	if err := s.persist(); err != nil {
		return nil, err
	}

	m.logger.Info("session created", "id", id, "dir", dir)
	return s, nil
}

// Save moves the session directory from the temp root to the output root.
// A session with no recordings is discarded instead.
func (m *Manager) Save(s *Session) (string, error) {
	if len(s.Recordings()) == 0 {
		m.logger.Info("session empty, discarding instead of saving", "id", s.ID())
		return "", m.Discard(s)
	}

	if err := os.MkdirAll(m.outputRoot, 0o755); err != nil {
		return "", errors.New(err).
			Component("session").
			Category(errors.CategoryFileIO).
			Context("dir", m.outputRoot).
			Build()
	}

	dest := filepath.Join(m.outputRoot, s.ID())
	if err := os.Rename(s.Dir(), dest); err != nil {
		return "", errors.New(err).
			Component("session").
			Category(errors.CategoryFileIO).
			Context("from", s.Dir()).
			Context("to", dest).
			Build()
	}

	m.logger.Info("session saved", "id", s.ID(), "dest", dest)
	return dest, nil
}

// Discard deletes the session directory and everything in it.
func (m *Manager) Discard(s *Session) error {
	if err := os.RemoveAll(s.Dir()); err != nil {
		return errors.New(err).
			Component("session").
			Category(errors.CategoryFileIO).
			Context("dir", s.Dir()).
			Build()
	}
	m.logger.Info("session discarded", "id", s.ID())
	return nil
}

// ListTempSessions returns the session directories currently under the temp
// root, oldest first.
func (m *Manager) ListTempSessions() ([]string, error) {
	entries, err := os.ReadDir(m.tempRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("session").
			Category(errors.CategoryFileIO).
			Context("dir", m.tempRoot).
			Build()
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(m.tempRoot, e.Name()))
		}
	}
	return dirs, nil
}

// CleanupOldSessions removes unsaved temp sessions older than maxAgeDays,
// returning how many were deleted. Age is judged by the directory's modify
// time so a crashed run's leftovers eventually disappear even when the
// manifest is unreadable.
func (m *Manager) CleanupOldSessions(maxAgeDays int) (int, error) {
	if maxAgeDays <= 0 {
		return 0, nil
	}

	dirs, err := m.ListTempSessions()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	removed := 0
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("failed to remove stale session", "dir", dir, "error", err)
			continue
		}
		m.logger.Info("removed stale session", "dir", dir)
		removed++
	}
	return removed, nil
}
