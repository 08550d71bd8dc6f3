package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mpetrov/ideaharvest/internal/clock/system"
	"github.com/mpetrov/ideaharvest/internal/ingest"
	"github.com/mpetrov/ideaharvest/internal/sitemap"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Walk the sitemap index and ingest new idea URLs.",
		Long: `discover fetches the configured sitemap index, downloads every batch
sitemap it lists, derives idea records from the page URLs, and inserts the
ones the store has not seen before. Records are created unprocessed; run
"enrich" afterwards to fill them in.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Sitemap.IndexURL == "" {
				return fmt.Errorf("sitemap.index_url is required for discover")
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			archive, err := a.openArchive(ctx)
			if err != nil {
				return err
			}

			fetcher := sitemap.New(sitemap.Config{
				UserAgent: a.cfg.Sitemap.UserAgent,
				Timeout:   a.cfg.Sitemap.Timeout,
			})
			ingestor := ingest.New(store, system.Clock{}, a.logger)
			discovery := ingest.NewDiscovery(fetcher, ingestor, archive, ingest.DiscoveryConfig{
				IndexURL:      a.cfg.Sitemap.IndexURL,
				ArchivePrefix: a.cfg.Archive.Prefix,
			}, a.logger)

			sum, err := discovery.Run(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("discovery finished",
				zap.Int("sitemaps", sum.Sitemaps),
				zap.Int("sitemaps_failed", sum.SitemapsFailed),
				zap.Int("discovered", sum.Result.Discovered),
				zap.Int("malformed", sum.Result.Malformed),
				zap.Int("skipped", sum.Result.Skipped),
				zap.Int("inserted", sum.Result.Inserted),
			)
			return nil
		},
	}
}
