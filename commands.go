package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

type engineOpener func(*cobra.Command) (*Engine, error)

// withEngine runs fn against a freshly configured engine
func withEngine(open engineOpener, cmd *cobra.Command, fn func(*Engine) error) error {
	engine, err := open(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(engine)
}

func newBackupCommand(open engineOpener) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the save directory",
		Long:  "Write the save directory to a new timestamped archive in the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(open, cmd, func(e *Engine) error {
				chosen, err := e.chooseLabel(cmd.Flags().Changed("label"), label)
				if err != nil {
					return err
				}
				path, err := e.Backup(cmd.Context(), chosen)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backup complete: %s\n", path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "name for the backup (prompted for on a terminal when omitted)")

	return cmd
}

func newListCommand(open engineOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available backups",
		Long:  "List the backups in the backup directory, newest first. Index 0 is the go back choice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(open, cmd, func(e *Engine) error {
				entries, err := e.List()
				if err != nil {
					return err
				}

				table := uitable.New()
				table.MaxColWidth = 80
				table.AddRow("#", "BACKUP", "FILE", "SIZE")
				for i, entry := range entries {
					size := ""
					if !entry.IsSentinel() {
						size = humanize.Bytes(uint64(entry.Size))
					}
					table.AddRow(strconv.Itoa(i), entry.DisplayName, entry.ArchiveFilename, size)
				}
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newRestoreCommand(open engineOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [index|filename]",
		Short: "Replace the save directory with a backup",
		Long: `Restore a backup chosen by its index from list or by its archive filename.
The current save directory is deleted first. Index 0 restores nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(open, cmd, func(e *Engine) error {
				entry, restored, err := e.Restore(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !restored {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing restored")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %s into %s\n", entry.DisplayName, e.cfg.SourceDir)
				return nil
			})
		},
	}
}

func newHistoryCommand(open engineOpener) *cobra.Command {
	var (
		limit int
		wipe  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent backups and restores",
		Long:  "Show the activity journal, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(open, cmd, func(e *Engine) error {
				if wipe {
					if err := e.ClearHistory(); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Journal cleared")
					return nil
				}

				events, err := e.History(limit)
				if err != nil {
					return err
				}

				table := uitable.New()
				table.MaxColWidth = 80
				table.AddRow("WHEN", "KIND", "ARCHIVE", "TOOK", "RESULT")
				for _, event := range events {
					result := "ok"
					if !event.Succeeded {
						result = event.Error
					}
					table.AddRow(
						humanize.Time(event.StartedAt),
						event.Kind,
						event.Archive,
						event.Duration.Round(time.Millisecond).String(),
						result,
					)
				}
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events to show, 0 for all")
	cmd.Flags().BoolVar(&wipe, "clear", false, "delete the journal instead of showing it")

	return cmd
}
