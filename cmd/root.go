package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/audiorewind/rewind-go/cmd/capture"
	"github.com/audiorewind/rewind-go/cmd/sessions"
	"github.com/audiorewind/rewind-go/cmd/sources"
	"github.com/audiorewind/rewind-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rewind",
		Short: "Retroactive audio capture with pre-roll history",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Println(err)
	}

	subcommands := []*cobra.Command{
		capture.Command(settings),
		sources.Command(settings),
		sessions.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Audio.Source, "source", viper.GetString("audio.source"), "Audio capture source name or ID")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.Channels, "channels", viper.GetInt("audio.channels"), "Number of capture channels")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.BufferDuration, "buffer", viper.GetInt("audio.bufferduration"), "Pre-roll history length in seconds")
	rootCmd.PersistentFlags().Float64Var(&settings.Detector.BeginThresholdDB, "begin-threshold", viper.GetFloat64("detector.beginthresholddb"), "Signal level in dB that triggers auto-record")
	rootCmd.PersistentFlags().Float64Var(&settings.Detector.EndThresholdDB, "end-threshold", viper.GetFloat64("detector.endthresholddb"), "Signal level in dB below which silence is counted")
	rootCmd.PersistentFlags().Float64Var(&settings.Detector.SilenceDuration, "silence", viper.GetFloat64("detector.silenceduration"), "Seconds of silence that stops an auto recording")
	rootCmd.PersistentFlags().BoolVar(&settings.AutoRecord.Enabled, "auto", viper.GetBool("autorecord.enabled"), "Arm auto-record on startup")
	rootCmd.PersistentFlags().StringVarP(&settings.Output.Path, "output", "o", viper.GetString("output.path"), "Directory for saved recordings")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
