// Package sqlite keeps the record table in an embedded SQLite database. The
// encoded table document is stored as a single row of the state table and
// replaced on every save.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"chemledger/internal/recordfile"
)

// Store is a recordfile.Table persisted to SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	bucket string
}

// NewStore opens (creating if needed) the database at path and stores the
// table under bucket, which is also the name it is replicated under.
func NewStore(path, bucket string) (*Store, error) {
	if path == "" {
		path = "chemledger.db"
	}
	if bucket == "" {
		return nil, fmt.Errorf("table name required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &Store{db: db, path: path, bucket: bucket}, nil
}

func (s *Store) Name() string { return s.bucket }

// Load returns the stored table, saving an empty one first when the bucket
// has never been written.
func (s *Store) Load(ctx context.Context) (recordfile.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = ?`, s.bucket).Scan(&payload)
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
		return recordfile.Snapshot{}, fmt.Errorf("sqlite %s: %w", s.bucket, err)
	}
	return snap, nil
}

// Save replaces the stored table inside a single transaction.
func (s *Store) Save(ctx context.Context, snap recordfile.Snapshot) (retErr error) {
	data, err := recordfile.Encode(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, s.bucket, data); err != nil {
		return fmt.Errorf("upsert %s: %w", s.bucket, err)
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// DatabasePath returns the configured database path.
func (s *Store) DatabasePath() string { return s.path }
