// Package postgres is a storage.Store backed by a kv_entries table with a
// JSONB value column.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sonic7adarsh/bharatapp/internal/storage"
	"github.com/sonic7adarsh/bharatapp/pkg/database"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations for database.RunMigrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const (
	getQuery = `SELECT value FROM kv_entries WHERE session_id = $1 AND key = $2`

	setQuery = `INSERT INTO kv_entries (session_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	deleteQuery = `DELETE FROM kv_entries WHERE session_id = $1 AND key = $2`

	purgeQuery = `DELETE FROM kv_entries WHERE updated_at < $1`
)

// Store implements storage.Store and storage.Purger over Postgres.
type Store struct {
	db  database.DBTX
	obs *database.QueryObserver
	ttl time.Duration
	now func() time.Time
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Purger = (*Store)(nil)
)

// New creates a store. Entries not written for ttl are removed by Purge; a
// zero ttl disables purging.
func New(db database.DBTX, obs *database.QueryObserver, ttl time.Duration) *Store {
	return &Store{db: db, obs: obs, ttl: ttl, now: time.Now}
}

// Get reads the value stored under key.
func (s *Store) Get(ctx context.Context, session, key string) (_ []byte, err error) {
	ctx, done := s.obs.Observe(ctx, "kv.get", getQuery)
	defer func() { done(err) }()

	var value []byte
	if err := s.db.QueryRow(ctx, getQuery, session, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound(session, key)
		}
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, session, key string, value []byte) (err error) {
	ctx, done := s.obs.Observe(ctx, "kv.set", setQuery)
	defer func() { done(err) }()

	if _, err := s.db.Exec(ctx, setQuery, session, key, string(value)); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, session, key string) (err error) {
	ctx, done := s.obs.Observe(ctx, "kv.delete", deleteQuery)
	defer func() { done(err) }()

	if _, err := s.db.Exec(ctx, deleteQuery, session, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Ping runs a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// Purge deletes entries older than the TTL.
func (s *Store) Purge(ctx context.Context) (n int64, err error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	ctx, done := s.obs.Observe(ctx, "kv.purge", purgeQuery)
	defer func() { done(err) }()

	tag, err := s.db.Exec(ctx, purgeQuery, s.now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("purge kv_entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
