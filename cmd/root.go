// Package cmd contains the ideaharvest CLI.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	gcstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mpetrov/ideaharvest/internal/blob/gcs"
	"github.com/mpetrov/ideaharvest/internal/blob/local"
	blobmem "github.com/mpetrov/ideaharvest/internal/blob/memory"
	"github.com/mpetrov/ideaharvest/internal/config"
	"github.com/mpetrov/ideaharvest/internal/ideas"
	"github.com/mpetrov/ideaharvest/internal/logging"
	storemem "github.com/mpetrov/ideaharvest/internal/storage/memory"
	"github.com/mpetrov/ideaharvest/internal/storage/postgres"
)

var cfgFile string

// app bundles the dependencies shared by all subcommands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

func loadApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// openStore connects to Postgres when a DSN is configured; otherwise an
// in-memory store is used, which only makes sense for dry runs.
func (a *app) openStore(ctx context.Context) (ideas.Store, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("db.dsn not set, using in-memory store; nothing will persist")
		return storemem.NewIdeaStore(), nil
	}
	store, err := postgres.New(ctx, postgres.Config{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// openArchive builds the configured blob backend, or nil when archiving is
// disabled.
func (a *app) openArchive(ctx context.Context) (ideas.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return blobmem.New(), nil
	case "local":
		return local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.Bucket})
	default:
		return nil, fmt.Errorf("unknown archive backend %q", a.cfg.Archive.Backend)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ideaharvest",
		Short: "Discover and enrich idea pages from sitemaps.",
		Long: `ideaharvest walks a sitemap index to discover idea page URLs, stores
them as unprocessed records, and enriches each record from the remote
resource API in bounded-concurrency batches.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")
	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newEnrichCmd())
	return cmd
}

// Execute runs the CLI with signal-aware cancellation.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
