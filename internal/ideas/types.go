// Package ideas defines core types shared across subsystems.
package ideas

import (
	"time"
)

// Status represents the lifecycle state of an idea record. The transition
// is one-way: once processed, a record is never pulled again.
type Status string

// Status values persisted in the idea store.
const (
	StatusUnprocessed Status = "unprocessed"
	StatusProcessed   Status = "processed"
)

// Record is the durable unit of work. RowID is the store-internal identity;
// ID is the external identifier derived from the source URL and is the
// dedup key at ingestion time.
type Record struct {
	RowID       int64      `json:"row_id"`
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Name        string     `json:"name,omitempty"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Info        *Info      `json:"info,omitempty"`
}

// RefKind discriminates the origin of a cross-reference entry.
type RefKind string

// Reference origin kinds merged into one list during normalization.
const (
	RefKindInterest RefKind = "interest"
	RefKindPivot    RefKind = "pivot"
)

// Reference is one cross-reference to another idea, tagged with its origin.
type Reference struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	As   RefKind `json:"as"`
	URL  string  `json:"url"`
}

// Path is the ancestor chain of an idea, excluding the idea itself. IDs and
// names are slash-joined in breadcrumb order.
type Path struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Info holds the normalized enrichment payload attached to a processed
// record.
type Info struct {
	ID                  string      `json:"id"`
	CanonicalTermID     string      `json:"canonical_term_id"`
	Key                 string      `json:"key"`
	Path                *Path       `json:"path,omitempty"`
	References          []Reference `json:"references"`
	DisplayName         string      `json:"display_name"`
	FollowerCount       int64       `json:"follower_count"`
	InternalSearchCount int64       `json:"internal_search_count"`
}

// FetchResult pairs the outcome of one enrichment fetch with its record.
// Exactly one of Info and Err is set.
type FetchResult struct {
	RowID int64
	URL   string
	Info  *Info
	Err   error
	Dur   time.Duration
}
