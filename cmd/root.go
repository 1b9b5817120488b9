// Package cmd implements the walla-bot command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"walla-bot/config"
	"walla-bot/storage"
	"walla-bot/utils"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// Exit codes reported to the shell.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitStore  = 2
	ExitLocked = 3
)

type options struct {
	configPath string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "walla-bot",
		Short:         "Watches Wallapop searches and reports new listings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "path to config.json")

	root.AddCommand(
		newRunCommand(opts),
		newScheduleCommand(opts),
		newResetCommand(opts),
		newHistoryCommand(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "walla-bot version %s\n", Version)
			},
		},
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "walla-bot: %v\n", err)
	}
	return ExitCode(err)
}

// ExitCode maps a run error onto the process exit status.
func ExitCode(err error) int {
	var corrupt *storage.StoreCorruptError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, storage.ErrLocked):
		return ExitLocked
	case errors.Is(err, storage.ErrStoreUnavailable), errors.As(err, &corrupt):
		return ExitStore
	default:
		return ExitFailed
	}
}

// setup loads configuration and builds the logger every command shares.
func setup(opts *options) (*config.Config, *utils.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if errors.Is(err, config.ErrConfigCreated) {
		return nil, nil, fmt.Errorf("%w: %s", err, opts.configPath)
	}
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewFileLogger(utils.LogConfig{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		logger.Warn("[main] File logging disabled: %v", err)
	}
	return cfg, logger, nil
}
