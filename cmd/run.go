package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"walla-bot/config"
	"walla-bot/models"
	"walla-bot/notifier"
	"walla-bot/scraper/wallapop"
	"walla-bot/services"
	"walla-bot/storage"
	"walla-bot/utils"
)

// lockTTL is how long a lock survives without a heartbeat before another
// run may take it over.
const lockTTL = 15 * time.Minute

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every configured search once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			_, err = runOnce(cmd.Context(), cfg, logger)
			return err
		},
	}
}

// runOnce performs one complete bot run: lock, load the seen-set, search,
// deliver and print the summary.
func runOnce(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*models.RunReport, error) {
	logger.Info("=== Walla-Bot run starting ===")
	logger.Info("Config: terms %v | max results: %d | email: %t | images: %t",
		cfg.Search.Terms, cfg.Search.MaxResults, cfg.SendEmail, cfg.Search.SaveImages)

	lock, err := storage.AcquireLock(cfg.SeenAdsFile+".lock", lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("[main] %v", err)
		}
	}()
	stopHeartbeat := heartbeat(lock, lockTTL/3, logger)
	defer stopHeartbeat()

	seen, err := storage.LoadSeenSet(cfg.SeenAdsFile)
	if err != nil {
		logger.Error("[main] Cannot load seen ads from %s: %v", cfg.SeenAdsFile, err)
		return nil, err
	}
	logger.Info("[main] Loaded %d seen ads from %s", seen.Len(), seen.Path())

	scraper, err := wallapop.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	defer scraper.Close()

	var pipelineOpts []services.Option
	if cfg.SendEmail {
		n, err := notifier.NewEmailNotifier(cfg, logger)
		if err != nil {
			return nil, err
		}
		pipelineOpts = append(pipelineOpts, services.WithNotifier(n))
	}
	if cfg.Search.SaveImages {
		pipelineOpts = append(pipelineOpts, services.WithImages(services.NewImageDownloader(cfg.ImagesDir, logger)))
	}
	if cfg.PostgresDSN != "" {
		pg, err := storage.NewPostgresWriter(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("[main] PostgreSQL mirror unavailable, continuing without it: %v", err)
		} else {
			defer pg.Close()
			pipelineOpts = append(pipelineOpts, services.WithMirror(pg))
		}
	}

	pipeline := services.NewPipeline(scraper, seen, storage.NewCSVWriter(cfg.CSVDir), logger, pipelineOpts...)
	report, runErr := pipeline.Run(ctx, cfg.Search)

	insights := services.NewInsightService(logger)
	insights.Print(report, insights.Generate(report))

	if runErr != nil {
		logger.Error("[main] Run aborted: %v", runErr)
		return report, runErr
	}
	logger.Info("=== Walla-Bot run finished in %s ===", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	return report, nil
}

// heartbeat keeps lock fresh until the returned stop function is called.
func heartbeat(lock *storage.Lock, every time.Duration, logger *utils.Logger) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := lock.Touch(); err != nil {
					logger.Warn("[main] Lock heartbeat failed: %v", err)
				}
			}
		}
	}()
	return func() { close(done) }
}
