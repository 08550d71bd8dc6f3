// Package sitemap fetches sitemap documents and extracts their locations.
package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher retrieves sitemap documents over HTTP using a Colly collector.
// Both sitemap indexes and URL sets are handled: every <loc> value is
// returned in document order, whitespace-trimmed, without deduplication.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// Document is one fetched sitemap: its raw bytes (after decompression) and
// the extracted locations.
type Document struct {
	URL  string
	Raw  []byte
	Locs []string
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch downloads one sitemap document and extracts its <loc> entries.
// Documents served as .gz files are decompressed before parsing.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Document, error) {
	body, err := f.download(ctx, url)
	if err != nil {
		return Document{}, err
	}
	if isGzip(url, body) {
		body, err = gunzip(body)
		if err != nil {
			return Document{}, fmt.Errorf("decompress sitemap %s: %w", url, err)
		}
	}
	locs, err := ParseLocs(body)
	if err != nil {
		return Document{}, fmt.Errorf("parse sitemap %s: %w", url, err)
	}
	return Document{URL: url, Raw: body, Locs: locs}, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("sitemap fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("sitemap visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("sitemap response failed: %w", fetchErr)
		}
		return body, nil
	}
}

func isGzip(url string, body []byte) bool {
	if strings.HasSuffix(strings.ToLower(url), ".gz") {
		return true
	}
	return len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck // read side
	return io.ReadAll(r)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
