// Package sources implements the sources command, listing available audio
// capture devices.
package sources

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiorewind/rewind-go/internal/audiocore"
	"github.com/audiorewind/rewind-go/internal/conf"
)

// Command creates the sources command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List available audio capture sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audiocore.ListCaptureSources()
			if err != nil {
				return err
			}

			if len(devices) == 0 {
				fmt.Println("No capture sources found.")
				return nil
			}

			fmt.Print(audiocore.FormatSourceList(devices))
			fmt.Printf("\nConfigured source: %s\n", settings.Audio.Source)
			return nil
		},
	}
}
