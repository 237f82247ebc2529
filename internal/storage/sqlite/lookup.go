package sqlite

import (
	"context"
	"database/sql"
)

// FirstEnqueued returns the first_enqueued column for id in table, used
// when re-routing a row to preserve its original enqueue time across the
// queue -> deadletter transition.
func (s *Store) FirstEnqueued(ctx context.Context, table, id string) (int64, error) {
	var firstEnqueued int64
	err := s.WithConnection(ctx, "lookup first_enqueued", func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT first_enqueued FROM `+table+` WHERE id = ?`, id).Scan(&firstEnqueued)
	})
	return firstEnqueued, err
}
