package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validTestSettings() *Settings {
	s := &Settings{}
	s.Audio.Source = "sysdefault"
	s.Audio.Channels = 2
	s.Audio.BufferDuration = 10
	s.Audio.QueueSize = 64
	s.Audio.ShutdownTimeout = 5
	s.Audio.BlockSize = 1024
	s.Detector.BeginThresholdDB = -35
	s.Detector.EndThresholdDB = -35
	s.Detector.SilenceDuration = 10
	s.Detector.RMSWindow = 0.1
	s.Session.AutoCleanupDays = 7
	return s
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid defaults", func(s *Settings) {}, false},
		{"empty source", func(s *Settings) { s.Audio.Source = "" }, true},
		{"zero channels", func(s *Settings) { s.Audio.Channels = 0 }, true},
		{"too many channels", func(s *Settings) { s.Audio.Channels = 64 }, true},
		{"zero buffer duration", func(s *Settings) { s.Audio.BufferDuration = 0 }, true},
		{"buffer over an hour", func(s *Settings) { s.Audio.BufferDuration = 7200 }, true},
		{"tiny block size", func(s *Settings) { s.Audio.BlockSize = 16 }, true},
		{"zero silence duration", func(s *Settings) { s.Detector.SilenceDuration = 0 }, true},
		{"zero rms window", func(s *Settings) { s.Detector.RMSWindow = 0 }, true},
		{"negative cleanup days", func(s *Settings) { s.Session.AutoCleanupDays = -1 }, true},
		{"atypical begin threshold passes", func(s *Settings) { s.Detector.BeginThresholdDB = 15 }, false},
		{"atypical end threshold passes", func(s *Settings) { s.Detector.EndThresholdDB = -140 }, false},
		{"cleanup disabled", func(s *Settings) { s.Session.AutoCleanupDays = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			settings := validTestSettings()
			tt.mutate(settings)
			err := ValidateSettings(settings)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveYAMLConfig(t *testing.T) {
	t.Parallel()

	settings := validTestSettings()
	settings.Version = "1.2.3" // runtime-only, must not be persisted
	settings.Main.Name = "studio"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var reloaded Settings
	require.NoError(t, yaml.Unmarshal(data, &reloaded))

	assert.Equal(t, "studio", reloaded.Main.Name)
	assert.Equal(t, "sysdefault", reloaded.Audio.Source)
	assert.Equal(t, 10, reloaded.Audio.BufferDuration)
	assert.Empty(t, reloaded.Version)
}

func TestSaveYAMLConfig_ReplacesExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stale: true\n"), 0o644))

	require.NoError(t, SaveYAMLConfig(path, validTestSettings()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
}

func TestSetAutoRecordEnabled_Detached(t *testing.T) {
	t.Parallel()

	// A settings instance not registered as the active configuration only
	// updates in memory.
	settings := validTestSettings()
	require.NoError(t, settings.SetAutoRecordEnabled(true))
	assert.True(t, settings.GetAutoRecordEnabled())

	require.NoError(t, settings.SetAutoRecordEnabled(false))
	assert.False(t, settings.GetAutoRecordEnabled())
}

func TestGetDefaultConfigPaths(t *testing.T) {
	paths, err := GetDefaultConfigPaths()
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "rewind")
	assert.Equal(t, ".", paths[1])
}
