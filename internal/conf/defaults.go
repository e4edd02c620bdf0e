package conf

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for each configuration parameter.
func setDefaultConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "rewind")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "rewind.log")
	viper.SetDefault("main.log.maxsize", 10*1024*1024)
	viper.SetDefault("main.log.maxage", 28)
	viper.SetDefault("main.log.maxfiles", 3)

	viper.SetDefault("audio.source", "sysdefault")
	viper.SetDefault("audio.channels", DefaultChannels)
	viper.SetDefault("audio.bufferduration", 10)
	viper.SetDefault("audio.queuesize", 64)
	viper.SetDefault("audio.shutdowntimeout", 5)
	viper.SetDefault("audio.blocksize", 1024)

	viper.SetDefault("detector.beginthresholddb", -35.0)
	viper.SetDefault("detector.endthresholddb", -35.0)
	viper.SetDefault("detector.silenceduration", 10.0)
	viper.SetDefault("detector.rmswindow", 0.1)

	viper.SetDefault("autorecord.enabled", false)

	viper.SetDefault("output.path", filepath.Join(home, "Recordings"))

	viper.SetDefault("session.temproot", filepath.Join(os.TempDir(), "rewind-sessions"))
	viper.SetDefault("session.autocleanupdays", 7)
}
