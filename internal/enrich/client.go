// Package enrich fetches and normalizes remote metadata for idea records.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/mpetrov/ideaharvest/internal/ideas"
)

// pwsHandler is the fixed header value identifying the logical page handler
// to the remote resource endpoint.
const pwsHandler = "www/ideas/[interest]/[id].js"

var trailingDigits = regexp.MustCompile(`/(\d+)/?$`)

// Config controls the enrichment API client.
type Config struct {
	APIURL      string
	FieldSetKey string
	// FallbackInterest is used when the record URL carries no trailing
	// numeric segment.
	FallbackInterest string
	Timeout          time.Duration
	Retry            Policy
}

// Client implements ideas.Enricher against the remote resource API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a Client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FieldSetKey == "" {
		cfg.FieldSetKey = "ideas_hub"
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultPolicy()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   timeout,
			Transport: newHTTPTransport(),
		},
		logger: logger,
	}
}

// Enrich fetches the record's payload, retrying transient failures up to
// the attempt bound. The returned error on exhaustion is *ExhaustedError;
// it never aborts anything beyond this record.
func (c *Client) Enrich(ctx context.Context, rec ideas.Record) (*ideas.Info, error) {
	var (
		last     error
		attempts int
	)
	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		info, err := c.fetchOnce(ctx, rec)
		attempts = attempt
		if err == nil {
			return info, nil
		}
		last = err
		c.logger.Debug("enrichment attempt failed",
			zap.String("url", rec.URL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
		if attempt < c.cfg.Retry.MaxAttempts {
			if werr := c.cfg.Retry.Wait(ctx); werr != nil {
				break
			}
		}
	}
	return nil, &ExhaustedError{URL: rec.URL, Attempts: attempts, Last: last}
}

func (c *Client) fetchOnce(ctx context.Context, rec ideas.Record) (*ideas.Info, error) {
	req, err := c.buildRequest(ctx, rec)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read side

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	data := payload.ResourceResponse.Data
	// A well-formed response without the canonical display name is a
	// payload-shape mismatch and retried like any transient failure.
	if data == nil || data.SEOCanonicalDisplayName == nil {
		return nil, fmt.Errorf("expected data missing in response")
	}
	return normalize(data), nil
}

func (c *Client) buildRequest(ctx context.Context, rec ideas.Record) (*http.Request, error) {
	interest := c.cfg.FallbackInterest
	if m := trailingDigits.FindStringSubmatch(rec.URL); m != nil {
		interest = m[1]
	}

	options := map[string]any{
		"options": map[string]any{
			"field_set_key":       c.cfg.FieldSetKey,
			"get_page_metadata":   true,
			"interest":            interest,
			"is_internal_preview": false,
		},
		"context": map[string]any{},
	}
	data, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	params := url.Values{}
	params.Set("data", string(data))
	params.Set("source_url", rec.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Pinterest-PWS-Handler", pwsHandler)
	return req, nil
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
