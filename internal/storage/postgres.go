package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface assertion.
var _ BlobStore = (*PGStore)(nil)

// blobSchema creates the single table backing the Postgres blob store.
// INSERT … ON CONFLICT gives the atomic replace the [BlobStore] contract
// requires: a concurrent reader sees the old row or the new row, never a mix.
const blobSchema = `
CREATE TABLE IF NOT EXISTS blobs (
    key        text PRIMARY KEY,
    data       bytea NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now()
)`

// PGStore is a [BlobStore] backed by a PostgreSQL table. All operations are
// safe for concurrent use.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore establishes a connection pool to the database at dsn and ensures
// the blobs table exists.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, blobSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: create blobs table: %w", err)
	}

	return &PGStore{pool: pool}, nil
}

// Read implements [BlobStore.Read].
func (s *PGStore) Read(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT data FROM blobs WHERE key = $1`

	var data []byte
	err := s.pool.QueryRow(ctx, q, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("storage: read %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %q: %w", key, err)
	}
	return data, nil
}

// Write implements [BlobStore.Write] via UPSERT.
func (s *PGStore) Write(ctx context.Context, key string, data []byte) error {
	const q = `
		INSERT INTO blobs (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, key, data); err != nil {
		return fmt.Errorf("storage: write %q: %w", key, err)
	}
	return nil
}

// Create implements [BlobStore.Create]. ON CONFLICT DO NOTHING surfaces a
// collision through the affected-row count, without a racing prior Exists.
func (s *PGStore) Create(ctx context.Context, key string, data []byte) error {
	const q = `
		INSERT INTO blobs (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO NOTHING`

	tag, err := s.pool.Exec(ctx, q, key, data)
	if err != nil {
		return fmt.Errorf("storage: create %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: create %q: %w", key, ErrExists)
	}
	return nil
}

// Exists implements [BlobStore.Exists].
func (s *PGStore) Exists(ctx context.Context, key string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM blobs WHERE key = $1)`

	var found bool
	if err := s.pool.QueryRow(ctx, q, key).Scan(&found); err != nil {
		return false, fmt.Errorf("storage: exists %q: %w", key, err)
	}
	return found, nil
}

// Delete implements [BlobStore.Delete].
func (s *PGStore) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM blobs WHERE key = $1`

	if _, err := s.pool.Exec(ctx, q, key); err != nil {
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}
