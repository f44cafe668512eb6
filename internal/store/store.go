package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"futuresync/internal/remote"
)

// UpsertStats counts the outcome of one bulk upsert.
// Matched counts records whose natural key already existed, whether or not
// their content changed; Modified counts the subset that actually changed;
// Upserted counts fresh inserts.
type UpsertStats struct {
	Matched  int
	Modified int
	Upserted int
}

// Store persists record batches into Postgres, one table per category. Each
// table carries the natural-key columns plus a JSONB payload, with a unique
// index on the key columns. The unique index is what makes concurrent upserts
// from different orchestrators safe without application-level locking.
type Store struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

// Open creates a connection pool and verifies it with a ping.
func Open(ctx context.Context, databaseURL string, log *logrus.Entry) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool, log: log}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// EnsureCollection creates the table and its natural-key unique index if they
// do not exist yet. Safe to call before every save.
func (s *Store) EnsureCollection(ctx context.Context, collection string, keys []string) error {
	if err := validateIdents(collection, keys); err != nil {
		return err
	}

	cols := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		cols = append(cols, k+" TEXT NOT NULL")
	}
	cols = append(cols, "payload JSONB NOT NULL DEFAULT '{}'")

	createTable := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		collection, strings.Join(cols, ", "))
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create table %s: %w", collection, err)
	}

	createIndex := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s_natural_key ON %s (%s)",
		collection, collection, strings.Join(keys, ", "))
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("create index on %s: %w", collection, err)
	}

	return nil
}

// Upsert merges batch into collection, addressed by the values of the key
// fields. Absent keys insert; present keys replace the whole payload. The
// writes go out as one unordered pgx batch; the first write error aborts the
// remainder and is returned. Re-applying an unchanged batch is a no-op beyond
// Matched counting, which is what lets the orchestrator tolerate overlapping
// fetch windows and retried fetches.
func (s *Store) Upsert(ctx context.Context, collection string, keys []string, batch remote.RecordBatch) (UpsertStats, error) {
	var stats UpsertStats
	if len(batch) == 0 {
		return stats, nil
	}
	if err := validateIdents(collection, keys); err != nil {
		return stats, err
	}

	sql := upsertSQL(collection, keys)
	b := &pgx.Batch{}
	for i, rec := range batch {
		args, err := recordArgs(rec, keys)
		if err != nil {
			return stats, fmt.Errorf("record %d: %w", i, err)
		}
		b.Queue(sql, args...)
	}

	start := time.Now()
	results := s.pool.SendBatch(ctx, b)
	defer results.Close()

	for range batch {
		var inserted bool
		err := results.QueryRow().Scan(&inserted)
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict target existed and the payload was identical: the
			// conditional update skipped the row.
			stats.Matched++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("bulk upsert into %s: %w", collection, err)
		}
		if inserted {
			stats.Upserted++
		} else {
			stats.Matched++
			stats.Modified++
		}
	}

	s.log.WithFields(logrus.Fields{
		"collection": collection,
		"records":    len(batch),
		"upserted":   stats.Upserted,
		"modified":   stats.Modified,
		"matched":    stats.Matched,
		"duration":   time.Since(start),
	}).Debug("batch upserted")

	return stats, nil
}

// upsertSQL builds the per-record statement. RETURNING (xmax = 0) is true for
// a fresh insert and false for a replaced row; unchanged rows return nothing
// because the conditional update filters them out.
func upsertSQL(collection string, keys []string) string {
	cols := make([]string, 0, len(keys)+1)
	params := make([]string, 0, len(keys)+1)
	for i, k := range keys {
		cols = append(cols, k)
		params = append(params, fmt.Sprintf("$%d", i+1))
	}
	cols = append(cols, "payload")
	params = append(params, fmt.Sprintf("$%d", len(keys)+1))

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET payload = EXCLUDED.payload WHERE %s.payload IS DISTINCT FROM EXCLUDED.payload RETURNING (xmax = 0)",
		collection,
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
		strings.Join(keys, ", "),
		collection,
	)
}

// recordArgs splits one record into key values (in key order) plus the
// remaining fields marshalled as the JSONB payload.
func recordArgs(rec remote.Record, keys []string) ([]any, error) {
	args := make([]any, 0, len(keys)+1)
	payload := make(map[string]any, len(rec))
	for k, v := range rec {
		payload[k] = v
	}

	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil || v == "" {
			return nil, remote.NewValidationError(fmt.Sprintf("missing natural key field %q", k))
		}
		args = append(args, fmt.Sprint(v))
		delete(payload, k)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return append(args, data), nil
}

func validateIdents(collection string, keys []string) error {
	if !identPattern.MatchString(collection) {
		return remote.NewValidationError(fmt.Sprintf("invalid collection name %q", collection))
	}
	if len(keys) == 0 {
		return remote.NewValidationError("no natural key fields supplied")
	}
	for _, k := range keys {
		if !identPattern.MatchString(k) {
			return remote.NewValidationError(fmt.Sprintf("invalid key field %q", k))
		}
	}
	return nil
}
