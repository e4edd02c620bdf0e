package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiorewind/rewind-go/cmd"
	"github.com/audiorewind/rewind-go/internal/conf"
	"github.com/audiorewind/rewind-go/internal/logging"
)

// version and buildDate are overridden at build time via ldflags.
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	settings.Version = version
	settings.BuildDate = buildDate

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)

	if settings.Main.Log.Enabled {
		closeLog, err := logging.EnableFileLogging(settings.Main.Log, level)
		if err != nil {
			logging.Warn("file logging disabled", "path", settings.Main.Log.Path, "error", err)
		} else {
			defer closeLog() //nolint:errcheck
		}
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command error: %v\n", err)
		os.Exit(1)
	}
}
