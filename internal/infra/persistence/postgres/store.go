// Package postgres keeps the record table in PostgreSQL. Like the sqlite
// backend it stores the encoded table document as one row of a state table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"chemledger/internal/recordfile"
)

// Compile-time contract assertion ensuring the store satisfies the table interface.
var _ recordfile.Table = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/chemledger?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a recordfile.Table persisted to Postgres.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	bucket string
}

// NewStore opens a Postgres-backed table using the provided DSN (falls back to
// defaultDSN) and ensures the state table exists.
func NewStore(ctx context.Context, dsn, bucket string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	if bucket == "" {
		return nil, fmt.Errorf("table name required")
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, bucket: bucket}, nil
}

func (s *Store) Name() string { return s.bucket }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

// Load returns the stored table, saving an empty one first when the bucket
// has never been written.
func (s *Store) Load(ctx context.Context) (recordfile.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = $1`, s.bucket).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		empty := recordfile.Snapshot{}
		if err := s.Save(ctx, empty); err != nil {
			return recordfile.Snapshot{}, fmt.Errorf("initialize %s: %w", s.bucket, err)
		}
		return empty, nil
	}
	if err != nil {
		return recordfile.Snapshot{}, fmt.Errorf("select %s: %w", s.bucket, err)
	}
	snap, err := recordfile.Decode(payload)
	if err != nil {
		return recordfile.Snapshot{}, fmt.Errorf("postgres %s: %w", s.bucket, err)
	}
	return snap, nil
}

// Save replaces the stored table inside a single transaction.
func (s *Store) Save(ctx context.Context, snap recordfile.Snapshot) error {
	data, err := recordfile.Encode(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, s.bucket, data); err != nil {
		return fmt.Errorf("upsert %s: %w", s.bucket, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
