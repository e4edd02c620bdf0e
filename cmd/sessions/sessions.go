// Package sessions implements session bookkeeping maintenance commands.
package sessions

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/audiorewind/rewind-go/internal/conf"
	"github.com/audiorewind/rewind-go/internal/session"
)

// Command creates the sessions command with its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage recording sessions",
	}

	cmd.AddCommand(listCommand(settings), cleanupCommand(settings))
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List unsaved sessions in temporary storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := session.NewManager(settings.Session.TempRoot, settings.Output.Path)

			dirs, err := manager.ListTempSessions()
			if err != nil {
				return err
			}
			if len(dirs) == 0 {
				fmt.Println("No unsaved sessions.")
				return nil
			}

			for _, dir := range dirs {
				s, err := session.LoadFromDirectory(dir)
				if err != nil {
					fmt.Printf("%s (unreadable manifest)\n", filepath.Base(dir))
					continue
				}
				fmt.Printf("%s  %d recording(s)\n", s.ID(), len(s.Recordings()))
			}
			return nil
		},
	}
}

func cleanupCommand(settings *conf.Settings) *cobra.Command {
	var maxAgeDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale unsaved sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := session.NewManager(settings.Session.TempRoot, settings.Output.Path)

			removed, err := manager.CleanupOldSessions(maxAgeDays)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d stale session(s).\n", removed)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxAgeDays, "max-age", settings.Session.AutoCleanupDays, "Remove sessions older than this many days")
	return cmd
}
