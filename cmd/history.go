package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"walla-bot/models"
	"walla-bot/storage"
)

var errNoMirror = errors.New("history needs postgres_dsn to be configured")

func newHistoryCommand(opts *options) *cobra.Command {
	var term string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List listings mirrored to PostgreSQL by previous runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.PostgresDSN == "" {
				return errNoMirror
			}
			pg, err := storage.NewPostgresWriter(cmd.Context(), cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer pg.Close()

			listings, err := pg.FetchAll(cmd.Context())
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), listings, term)
			return nil
		},
	}
	cmd.Flags().StringVar(&term, "term", "", "only show listings found by this search term")
	return cmd
}

func printHistory(w io.Writer, listings []*models.Listing, term string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FOUND\tTERM\tPRICE\tTITLE\tLINK")
	shown := 0
	for _, l := range listings {
		if term != "" && l.SearchTerm != term {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f€\t%s\t%s\n",
			l.ExtractedAt.Local().Format(time.DateTime), l.SearchTerm, l.Price, l.Title, l.Link)
		shown++
	}
	tw.Flush()
	fmt.Fprintf(w, "%d listing(s)\n", shown)
}
