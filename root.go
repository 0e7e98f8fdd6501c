package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "dev"

// newRootCommand builds the savestash command tree
func newRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "savestash",
		Short: "Back up and restore emulator save data",
		Long: `savestash keeps timestamped zip archives of a game's save directory
and restores any of them over the live saves.
Restoring deletes the current save directory first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.savestash.yaml)")
	flags.String("source", "", "save directory to back up and restore")
	flags.String("backups", "", "backup directory, used with --strategy explicit")
	flags.String("strategy", "", "where backups live: sibling, explicit or home")
	flags.String("title-id", "", "16 digit title id archives are named after")
	flags.String("journal", "", "activity journal database, empty to disable")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-file", "", "also write JSON logs to this file")

	openEngine := func(c *cobra.Command) (*Engine, error) {
		v, err := newViper(c.Root().PersistentFlags(), cfgFile)
		if err != nil {
			return nil, err
		}
		cfg, err := LoadConfig(v)
		if err != nil {
			return nil, err
		}
		log := NewLogger(c.ErrOrStderr(), cfg.LogLevel, cfg.LogFile)
		engine, err := NewEngine(cfg, log)
		if err != nil {
			return nil, err
		}
		engine.In = c.InOrStdin()
		engine.Out = c.OutOrStdout()
		return engine, nil
	}

	cmd.AddCommand(newBackupCommand(openEngine))
	cmd.AddCommand(newListCommand(openEngine))
	cmd.AddCommand(newRestoreCommand(openEngine))
	cmd.AddCommand(newHistoryCommand(openEngine))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// Execute runs the command line and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		log := NewLogger(os.Stderr, zerolog.InfoLevel, "")
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  `Print the version number of savestash`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "savestash version %s\n", version)
		},
	}
}
