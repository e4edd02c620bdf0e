package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiorewind/rewind-go/internal/conf"
)

func TestForService_WithoutInit(t *testing.T) {
	logger := ForService("capture")
	require.NotNil(t, logger)
}

func TestReplaceLevelNames(t *testing.T) {
	t.Parallel()

	attr := replaceLevelNames(nil, slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(LevelTrace)})
	assert.Equal(t, "TRACE", attr.Value.String())

	attr = replaceLevelNames(nil, slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(LevelFatal)})
	assert.Equal(t, "FATAL", attr.Value.String())

	attr = replaceLevelNames(nil, slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(slog.LevelInfo)})
	assert.Equal(t, "INFO", attr.Value.String())
}

func TestEnableFileLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rewind.log")

	closeLog, err := EnableFileLogging(conf.LogConfig{
		Enabled:  true,
		Path:     path,
		MaxSize:  1024 * 1024,
		MaxAge:   1,
		MaxFiles: 1,
	}, slog.LevelInfo)
	require.NoError(t, err)

	ForService("capture").Info("file logging check", "session", "abc")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file logging check")
	assert.Contains(t, string(data), `"service":"capture"`)
}
