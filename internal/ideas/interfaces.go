package ideas

import (
	"context"
	"time"
)

// Store persists idea records. Implementations must keep CountUnprocessed
// and FindUnprocessed consistent with MarkProcessed so that the enrichment
// loop terminates on an empty pull.
type Store interface {
	// CountUnprocessed reports how many records are eligible for enrichment.
	CountUnprocessed(ctx context.Context) (int64, error)
	// FindUnprocessed returns up to limit unprocessed records in no
	// particular order.
	FindUnprocessed(ctx context.Context, limit int) ([]Record, error)
	// FindExistingIDs returns the subset of candidate external ids already
	// present in the store. One call per ingestion batch.
	FindExistingIDs(ctx context.Context, candidates []string) (map[string]struct{}, error)
	// BulkInsert persists new records in one operation. Records lacking an
	// external id are rejected.
	BulkInsert(ctx context.Context, records []Record) error
	// MarkProcessed attaches the enrichment payload and flips the record to
	// processed, keyed by the store-internal row identity.
	MarkProcessed(ctx context.Context, rowID int64, info Info, at time.Time) error
	// Close releases underlying resources.
	Close()
}

// Enricher fetches and normalizes the remote payload for one record,
// retrying internally up to its attempt bound.
type Enricher interface {
	Enrich(ctx context.Context, rec Record) (*Info, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes processed-idea events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
