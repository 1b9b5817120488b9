package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"walla-bot/storage"
)

func newResetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget every seen listing so the next run reports all of them again",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			lock, err := storage.AcquireLock(cfg.SeenAdsFile+".lock", lockTTL)
			if err != nil {
				return err
			}
			defer lock.Release()

			if err := storage.ResetSeenSet(cfg.SeenAdsFile); err != nil {
				return err
			}
			logger.Info("[main] Seen ads cleared: %s", cfg.SeenAdsFile)
			fmt.Fprintf(cmd.OutOrStdout(), "Seen ads cleared: %s\n", cfg.SeenAdsFile)
			return nil
		},
	}
}
