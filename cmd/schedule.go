package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"walla-bot/config"
	"walla-bot/models"
	"walla-bot/utils"
)

func newScheduleCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the searches periodically on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runScheduled(ctx, cfg, logger, runOnce)
		},
	}
}

type runFunc func(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*models.RunReport, error)

// runScheduled starts cron and blocks until ctx is done. A run still in
// progress when the next tick fires causes that tick to be skipped. A
// seen-set failure stops the scheduler and is returned.
func runScheduled(ctx context.Context, cfg *config.Config, logger *utils.Logger, run runFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    sync.Mutex
		fatal error
	)

	cl := cronLogger{logger: logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))

	_, err := c.AddFunc(cfg.Schedule, func() {
		_, err := run(ctx, cfg, logger)
		switch code := ExitCode(err); code {
		case ExitOK:
		case ExitStore:
			logger.Error("[scheduler] Seen ads store failed, stopping: %v", err)
			mu.Lock()
			fatal = err
			mu.Unlock()
			cancel()
		default:
			logger.Error("[scheduler] Run failed (exit code %d): %v", code, err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}

	logger.Info("[scheduler] Started with schedule %q, press Ctrl+C to stop", cfg.Schedule)
	c.Start()

	<-ctx.Done()
	logger.Info("[scheduler] Stopping, waiting for the current run to finish")
	<-c.Stop().Done()

	mu.Lock()
	defer mu.Unlock()
	return fatal
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	logger *utils.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.With(keysAndValues...).Debug("[cron] %s", msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.With(keysAndValues...).Error("[cron] %s: %v", msg, err)
}
