// Package sqlite is the storage adapter (spec component C1): a scoped
// connection/transaction helper over an embedded SQLite file, with
// idempotent schema bootstrap and busy-retry. Every queue operation runs
// in its own scoped transaction on the Store's single connection; a mutex
// in Store serializes those transactions, so goroutines sharing a Store
// (the producer and the worker) never use the connection at the same
// time. Operations do not open connections of their own. Separate Stores
// on the same file are serialized by SQLite's file lock.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"

	"github.com/RUBclim/vpf-730/internal/metrics"
	"github.com/RUBclim/vpf-730/internal/vpferr"
)

// Store owns the *sql.DB handle for one SQLite file and bootstraps its
// schema on construction. db_path of ":memory:" is supported for tests.
type Store struct {
	db   *sql.DB
	path string

	mu sync.Mutex
}

// Open opens (or creates) the SQLite file at path and runs schema
// bootstrap. A single connection is kept open (SetMaxOpenConns(1)) so that
// ":memory:" databases used in tests survive across calls; within the
// process, writers are serialized by the Store's mutex on that connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &vpferr.StoreError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.bootstrap(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithConnection runs fn inside a single transaction that commits on a nil
// return and rolls back otherwise. Transient "database is locked" errors
// from SQLite are retried with exponential backoff before the caller ever
// sees them; any other error is returned immediately as a *vpferr.StoreError.
func (s *Store) WithConnection(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 5 * time.Second

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			if isBusy(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if isBusy(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if err := tx.Commit(); err != nil {
			if isBusy(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))

	if attempts > 1 {
		metrics.BusyRetries.Add(ctx, int64(attempts-1))
	}
	if err != nil {
		return &vpferr.StoreError{Op: op, Err: err}
	}
	return nil
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// compact runs VACUUM directly against the pooled handle, outside any
// transaction (SQLite refuses VACUUM inside one).
func (s *Store) compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return &vpferr.StoreError{Op: "vacuum", Err: err}
	}
	return nil
}

