// Package postgres provides the tier-3 store: a durable PostgreSQL-backed
// cache table, satisfying cache.DurableStore.
//
// Each key maps to one row in cache_entries. Expiry is lazy: an expired row
// is treated as a miss and deleted as a side effect of the read, matching the
// tier-1 policy. There is no background sweep.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tiercache/pkg/cache"

	_ "github.com/lib/pq"
)

// Store is a DurableStore backed by a PostgreSQL table.
type Store struct {
	db   *sql.DB
	name string
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a configuration for a local PostgreSQL.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "tiercache",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// NewStore opens a connection pool, pings the server, and creates the cache
// table if it does not exist.
func NewStore(cfg Config) (*Store, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &Store{db: db, name: "postgres"}

	if err := store.initTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init cache table: %w", err)
	}

	return store, nil
}

// NewStoreWithDB wraps an existing connection pool. The pool remains owned by
// the caller; Close on the returned store is a no-op for it.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := &Store{db: db, name: "postgres"}
	if err := store.initTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to init cache table: %w", err)
	}
	return store, nil
}

func (s *Store) initTable(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the serialized value for key, or cache.ErrKeyNotFound if the
// key is absent or expired. An expired row is deleted before returning.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT value, expires_at FROM cache_entries WHERE key = $1`

	var value string
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", cache.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres get: %w", err)
	}

	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
			return "", fmt.Errorf("postgres expire: %w", err)
		}
		return "", cache.ErrKeyNotFound
	}

	return value, nil
}

// Upsert inserts or replaces the row for key, refreshing value, expiry, and
// the updated timestamp. A zero expiresAt stores NULL (no age expiry).
func (s *Store) Upsert(ctx context.Context, key, value string, expiresAt time.Time) error {
	query := `
		INSERT INTO cache_entries (key, value, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()
	`

	var expiry interface{}
	if !expiresAt.IsZero() {
		expiry = expiresAt
	}

	if _, err := s.db.ExecContext(ctx, query, key, value, expiry); err != nil {
		return fmt.Errorf("postgres upsert: %w", err)
	}

	return nil
}

// Delete removes the row for key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

// DeleteAll removes every row from the cache table.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("postgres delete all: %w", err)
	}
	return nil
}

// Name returns the store identifier.
func (s *Store) Name() string {
	return s.name
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
