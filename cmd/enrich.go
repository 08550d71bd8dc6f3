package cmd

import (
	"context"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mpetrov/ideaharvest/internal/api"
	"github.com/mpetrov/ideaharvest/internal/clock/system"
	"github.com/mpetrov/ideaharvest/internal/enrich"
	"github.com/mpetrov/ideaharvest/internal/ideas"
	"github.com/mpetrov/ideaharvest/internal/pipeline"
	"github.com/mpetrov/ideaharvest/internal/progress"
	"github.com/mpetrov/ideaharvest/internal/progress/sinks"
	pubsubpub "github.com/mpetrov/ideaharvest/internal/publisher/pubsub"
)

func newEnrichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich",
		Short: "Enrich unprocessed records from the remote resource API.",
		Long: `enrich pulls unprocessed records in batches, fetches each record's
metadata concurrently with per-record retries, and marks successes as
processed. The run ends when no unprocessed records remain.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			registry := prometheus.NewRegistry()
			promSink, err := sinks.NewPrometheusSink(registry)
			if err != nil {
				return err
			}
			hub := progress.NewHub(progress.Config{Logger: a.logger},
				sinks.NewLogSink(a.logger), promSink)
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := hub.Close(closeCtx); err != nil {
					a.logger.Warn("progress hub close failed", zap.Error(err))
				}
			}()

			if a.cfg.Metrics.Addr != "" {
				admin := api.NewServer(a.cfg.Metrics.Addr, store, registry, a.logger)
				go func() {
					if err := admin.Start(); err != nil {
						a.logger.Error("admin server failed", zap.Error(err))
					}
				}()
				defer func() {
					shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := admin.Shutdown(shutCtx); err != nil {
						a.logger.Warn("admin server shutdown failed", zap.Error(err))
					}
				}()
			}

			client := enrich.NewClient(enrich.Config{
				APIURL:           a.cfg.Enrich.APIURL,
				FieldSetKey:      a.cfg.Enrich.FieldSetKey,
				FallbackInterest: a.cfg.Enrich.FallbackInterest,
				Timeout:          a.cfg.Enrich.Timeout,
				Retry: enrich.Policy{
					MaxAttempts: a.cfg.Enrich.MaxAttempts,
					Backoff:     a.cfg.Enrich.RetryBackoff,
				},
			}, a.logger)

			opts := []pipeline.Option{
				pipeline.WithLogger(a.logger),
				pipeline.WithEmitter(hub),
				pipeline.WithOutput(os.Stdout),
			}
			publisher, cleanup, err := a.openPublisher(ctx)
			if err != nil {
				return err
			}
			if publisher != nil {
				defer cleanup()
				opts = append(opts, pipeline.WithPublisher(publisher))
			}

			runner := pipeline.NewRunner(store, client, system.Clock{}, pipeline.Config{
				BatchSize: a.cfg.Pipeline.BatchSize,
				Topic:     a.cfg.Publisher.Topic,
			}, opts...)

			_, err = runner.Run(ctx)
			return err
		},
	}
}

// openPublisher returns a Pub/Sub publisher when a project and topic are
// configured, or nil when publishing is disabled.
func (a *app) openPublisher(ctx context.Context) (ideas.Publisher, func(), error) {
	if a.cfg.Publisher.ProjectID == "" || a.cfg.Publisher.Topic == "" {
		return nil, nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.Publisher.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	pub := pubsubpub.New(client)
	cleanup := func() {
		pub.Stop()
		_ = client.Close()
	}
	return pub, cleanup, nil
}
