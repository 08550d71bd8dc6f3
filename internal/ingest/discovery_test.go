package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	blobmem "github.com/mpetrov/ideaharvest/internal/blob/memory"
	"github.com/mpetrov/ideaharvest/internal/sitemap"
	storemem "github.com/mpetrov/ideaharvest/internal/storage/memory"
)

func TestDiscoveryRunIngestsAllBatches(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/index.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<sitemapindex>
  <sitemap><loc>%s/batch_1.xml</loc></sitemap>
  <sitemap><loc>%s/batch_missing.xml</loc></sitemap>
  <sitemap><loc>%s/batch_2.xml</loc></sitemap>
</sitemapindex>`, srv.URL, srv.URL, srv.URL)
	})
	mux.HandleFunc("/batch_1.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<urlset>
  <url><loc>https://x/ideas/cats/1/</loc></url>
  <url><loc>https://x/ideas/dogs/2/</loc></url>
</urlset>`)
	})
	mux.HandleFunc("/batch_2.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<urlset>
  <url><loc>https://x/ideas/cats/1/</loc></url>
  <url><loc>https://x/ideas/fish/3/</loc></url>
</urlset>`)
	})
	mux.HandleFunc("/batch_missing.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	store := storemem.NewIdeaStore()
	archive := blobmem.New()
	disc := NewDiscovery(
		sitemap.New(sitemap.Config{Timeout: 5 * time.Second}),
		New(store, &fakeClock{now: time.Unix(1700000000, 0)}, zap.NewNop()),
		archive,
		DiscoveryConfig{IndexURL: srv.URL + "/index.xml", ArchivePrefix: "sitemaps"},
		zap.NewNop(),
	)

	sum, err := disc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.Sitemaps)
	require.Equal(t, 1, sum.SitemapsFailed)
	require.Equal(t, 4, sum.Result.Discovered)
	// The duplicate id "1" in batch 2 is skipped against the store.
	require.Equal(t, 3, sum.Result.Inserted)
	require.Equal(t, 1, sum.Result.Skipped)
	require.Len(t, store.Records(), 3)

	_, ok := archive.Object("sitemaps/index.xml")
	require.True(t, ok)
	_, ok = archive.Object("sitemaps/batch_1.xml")
	require.True(t, ok)
}
