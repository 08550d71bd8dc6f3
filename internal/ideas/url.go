package ideas

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrMalformedURL marks a source URL whose path cannot yield an external id
// and name. Callers reject the single entry and keep going.
var ErrMalformedURL = errors.New("malformed idea url")

// NewRecord derives an unprocessed Record from a raw sitemap location.
// The path must have at least three segments; the last is the external id
// and the second-to-last is the percent-decoded display name, e.g.
// /ideas/%D1%84%D0%BE%D1%82%D0%BE%D0%B3%D1%80%D0%B0%D1%84/919325369379/.
// Records failing derivation carry an empty ID and are excluded from
// ingestion.
func NewRecord(rawURL string, now time.Time) (Record, error) {
	trimmed := strings.TrimSpace(rawURL)
	rec := Record{
		URL:       trimmed,
		Status:    StatusUnprocessed,
		CreatedAt: now.UTC(),
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return rec, fmt.Errorf("%w: parse %q: %v", ErrMalformedURL, trimmed, err)
	}
	parts := strings.Split(strings.Trim(parsed.EscapedPath(), "/"), "/")
	if len(parts) < 3 {
		return rec, nil
	}
	name, err := url.PathUnescape(parts[len(parts)-2])
	if err != nil {
		return rec, fmt.Errorf("%w: decode name segment of %q: %v", ErrMalformedURL, trimmed, err)
	}
	rec.ID = parts[len(parts)-1]
	rec.Name = name
	return rec, nil
}
