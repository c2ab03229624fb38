package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/brojonat/buywatch/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Store provides database operations for the service.
// It backs both the token registry and the cursor tracker.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// m may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// TrackedToken is a registry row.
type TrackedToken struct {
	Mint    string
	AddedAt time.Time
}

// ListTrackedTokens returns tokens in the order they were added.
func (s *Store) ListTrackedTokens(ctx context.Context) (_ []*TrackedToken, err error) {
	defer s.observe("select", "tracked_tokens", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `SELECT mint, added_at FROM tracked_tokens ORDER BY position`)
	if err != nil {
		return nil, err
	}
	tokens, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*TrackedToken, error) {
		var t TrackedToken
		err := row.Scan(&t.Mint, &t.AddedAt)
		return &t, err
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// LoadTokens implements registry.Backend.
func (s *Store) LoadTokens(ctx context.Context) ([]string, error) {
	tokens, err := s.ListTrackedTokens(ctx)
	if err != nil {
		return nil, err
	}
	mints := make([]string, len(tokens))
	for i, t := range tokens {
		mints[i] = t.Mint
	}
	return mints, nil
}

// AddToken implements registry.Backend. Adding an existing mint is a no-op.
func (s *Store) AddToken(ctx context.Context, mint string) (err error) {
	defer s.observe("insert", "tracked_tokens", time.Now(), &err)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tracked_tokens (mint) VALUES ($1) ON CONFLICT (mint) DO NOTHING`, mint)
	return err
}

// RemoveToken implements registry.Backend. The token's cursor goes with it.
func (s *Store) RemoveToken(ctx context.Context, mint string) (err error) {
	defer s.observe("delete", "tracked_tokens", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err = tx.Exec(ctx, `DELETE FROM tracked_tokens WHERE mint = $1`, mint); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM cursors WHERE token = $1`, mint); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LoadCursors implements cursor.Store.
func (s *Store) LoadCursors(ctx context.Context) (_ map[string]string, err error) {
	defer s.observe("select", "cursors", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `SELECT token, signature FROM cursors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cursors := make(map[string]string)
	for rows.Next() {
		var token, sig string
		if err = rows.Scan(&token, &sig); err != nil {
			return nil, err
		}
		cursors[token] = sig
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return cursors, nil
}

// SaveCursor implements cursor.Store.
func (s *Store) SaveCursor(ctx context.Context, token, signature string) (err error) {
	defer s.observe("upsert", "cursors", time.Now(), &err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO cursors (token, signature, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (token) DO UPDATE SET signature = EXCLUDED.signature, updated_at = NOW()`,
		token, signature)
	return err
}

// DeleteCursor implements cursor.Store.
func (s *Store) DeleteCursor(ctx context.Context, token string) (err error) {
	defer s.observe("delete", "cursors", time.Now(), &err)

	_, err = s.pool.Exec(ctx, `DELETE FROM cursors WHERE token = $1`, token)
	return err
}

func (s *Store) observe(op, table string, start time.Time, err *error) {
	s.metrics.RecordDBQuery(op, table, time.Since(start).Seconds(), *err)
}
