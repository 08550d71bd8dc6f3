package ingest

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/mpetrov/ideaharvest/internal/ideas"
	"github.com/mpetrov/ideaharvest/internal/sitemap"
)

// DiscoveryConfig controls a discovery run.
type DiscoveryConfig struct {
	IndexURL string
	// ArchivePrefix is the blob path prefix for raw sitemap documents.
	ArchivePrefix string
}

// Summary aggregates the outcome of one discovery run.
type Summary struct {
	Sitemaps       int
	SitemapsFailed int
	Result         Result
}

// Discovery walks a sitemap index, ingesting the idea URLs of every batch
// sitemap. A failing batch document is logged and skipped; the run carries
// on with the rest.
type Discovery struct {
	fetcher  *sitemap.Fetcher
	ingestor *Ingestor
	archive  ideas.BlobStore
	cfg      DiscoveryConfig
	logger   *zap.Logger
}

// NewDiscovery constructs a Discovery. archive may be nil to disable
// raw-document archiving.
func NewDiscovery(
	fetcher *sitemap.Fetcher,
	ingestor *Ingestor,
	archive ideas.BlobStore,
	cfg DiscoveryConfig,
	logger *zap.Logger,
) *Discovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discovery{
		fetcher:  fetcher,
		ingestor: ingestor,
		archive:  archive,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run fetches the index, then every batch sitemap it lists, ingesting as it
// goes. Index fetch failure is fatal; per-batch failures are not.
func (d *Discovery) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	index, err := d.fetcher.Fetch(ctx, d.cfg.IndexURL)
	if err != nil {
		return sum, fmt.Errorf("fetch sitemap index: %w", err)
	}
	d.archiveDoc(ctx, index)
	d.logger.Info("sitemap index fetched",
		zap.String("url", index.URL),
		zap.Int("batches", len(index.Locs)),
	)

	for i, batchURL := range index.Locs {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("discovery canceled: %w", err)
		}
		doc, err := d.fetcher.Fetch(ctx, batchURL)
		if err != nil {
			sum.SitemapsFailed++
			d.logger.Error("batch sitemap failed", zap.String("url", batchURL), zap.Error(err))
			continue
		}
		d.archiveDoc(ctx, doc)

		res, err := d.ingestor.Ingest(ctx, doc.Locs)
		if err != nil {
			// Store failures abort the run; continuing would lose work.
			return sum, fmt.Errorf("ingest batch %s: %w", batchURL, err)
		}
		sum.Sitemaps++
		sum.Result.Discovered += res.Discovered
		sum.Result.Malformed += res.Malformed
		sum.Result.Skipped += res.Skipped
		sum.Result.Inserted += res.Inserted

		d.logger.Info("batch sitemap ingested",
			zap.Int("batch", i+1),
			zap.Int("batches", len(index.Locs)),
			zap.String("url", batchURL),
			zap.Int("urls", res.Discovered),
			zap.Int("inserted", res.Inserted),
		)
	}
	return sum, nil
}

func (d *Discovery) archiveDoc(ctx context.Context, doc sitemap.Document) {
	if d.archive == nil {
		return
	}
	name := path.Base(strings.TrimSuffix(doc.URL, "/"))
	blobPath := path.Join(d.cfg.ArchivePrefix, strings.TrimSuffix(name, ".gz"))
	uri, err := d.archive.PutObject(ctx, blobPath, "application/xml", doc.Raw)
	if err != nil {
		// Archiving is best-effort; discovery continues.
		d.logger.Warn("sitemap archive failed", zap.String("url", doc.URL), zap.Error(err))
		return
	}
	d.logger.Debug("sitemap archived", zap.String("uri", uri))
}
