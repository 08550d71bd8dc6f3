// Package postgres provides the Postgres-backed idea store.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpetrov/ideaharvest/internal/ideas"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for idea records.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// IdeaStore persists idea records in Postgres. The expected schema is:
//
//	CREATE TABLE ideas (
//		row_id       BIGSERIAL PRIMARY KEY,
//		idea_id      TEXT NOT NULL,
//		url          TEXT NOT NULL,
//		name         TEXT,
//		status       TEXT NOT NULL DEFAULT 'unprocessed',
//		created_at   TIMESTAMPTZ NOT NULL,
//		processed_at TIMESTAMPTZ,
//		info         JSONB
//	);
//
// idea_id intentionally carries no unique index: dedup happens via the
// FindExistingIDs/BulkInsert pair at ingestion time, so two concurrent
// ingestion runs can double-insert the same id. Single-process runs are
// safe; see the ingest package.
type IdeaStore struct {
	pool  querier
	table string
}

// New creates a Postgres-backed IdeaStore using the provided config.
func New(ctx context.Context, cfg Config) (*IdeaStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "ideas"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &IdeaStore{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool querier, table string) (*IdeaStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "ideas"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &IdeaStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *IdeaStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CountUnprocessed reports how many records still await enrichment.
func (s *IdeaStore) CountUnprocessed(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE status = $1`, s.table)
	var n int64
	if err := s.pool.QueryRow(ctx, query, string(ideas.StatusUnprocessed)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unprocessed: %w", err)
	}
	return n, nil
}

// FindUnprocessed pulls up to limit unprocessed records. No ORDER BY: the
// pipeline does not rely on pull order.
func (s *IdeaStore) FindUnprocessed(ctx context.Context, limit int) ([]ideas.Record, error) {
	query := fmt.Sprintf(`
SELECT row_id, idea_id, url, COALESCE(name, ''), status, created_at
FROM %s
WHERE status = $1
LIMIT $2`, s.table)
	rows, err := s.pool.Query(ctx, query, string(ideas.StatusUnprocessed), limit)
	if err != nil {
		return nil, fmt.Errorf("find unprocessed: %w", err)
	}
	defer rows.Close()

	var out []ideas.Record
	for rows.Next() {
		var rec ideas.Record
		if err := rows.Scan(&rec.RowID, &rec.ID, &rec.URL, &rec.Name, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// FindExistingIDs returns the candidate ids already present, in one query.
func (s *IdeaStore) FindExistingIDs(ctx context.Context, candidates []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(candidates) == 0 {
		return existing, nil
	}
	query := fmt.Sprintf(`SELECT DISTINCT idea_id FROM %s WHERE idea_id = ANY($1)`, s.table)
	rows, err := s.pool.Query(ctx, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("find existing ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return existing, nil
}

// BulkInsert persists the batch with one multi-row INSERT.
func (s *IdeaStore) BulkInsert(ctx context.Context, records []ideas.Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record for %q has no external id", rec.URL)
		}
	}

	var (
		placeholders []string
		args         []any
	)
	for i, rec := range records {
		base := i * 5
		placeholders = append(placeholders, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5))
		args = append(args, rec.ID, rec.URL, rec.Name, string(rec.Status), rec.CreatedAt)
	}
	query := fmt.Sprintf(`INSERT INTO %s (idea_id, url, name, status, created_at) VALUES %s`,
		s.table, strings.Join(placeholders, ","))
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}
	return nil
}

// MarkProcessed attaches the payload and flips the record to processed,
// keyed by row identity rather than the external id.
func (s *IdeaStore) MarkProcessed(ctx context.Context, rowID int64, info ideas.Info, at time.Time) error {
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal info: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET info = $1, status = $2, processed_at = $3 WHERE row_id = $4`, s.table)
	tag, err := s.pool.Exec(ctx, query, infoJSON, string(ideas.StatusProcessed), at.UTC(), rowID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %d not found", rowID)
	}
	return nil
}
