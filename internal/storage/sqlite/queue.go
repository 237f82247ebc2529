package sqlite

import (
	"context"
	"database/sql"

	"github.com/RUBclim/vpf-730/internal/types"
)

// InsertRow inserts msg into table with enqueued stamped at nowMillis and
// first_enqueued at firstEnqueuedMillis. Route "deadletter" still calls this with nowMillis as the
// new enqueued time (per spec: the original enqueue time is not preserved
// in `enqueued`, only in the new first_enqueued column) — callers control
// whether first_enqueued is the original or the current time.
func (s *Store) InsertRow(ctx context.Context, table string, msg types.Message, nowMillis, firstEnqueuedMillis int64) error {
	fields, err := msg.Serialize()
	if err != nil {
		return err
	}

	var eta any
	if fields["eta"] != nil {
		eta = fields["eta"]
	}

	return s.WithConnection(ctx, "insert "+table, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO `+table+` (id, task, enqueued, first_enqueued, fetched, acked, blob, retries, eta)
			VALUES (?, ?, ?, ?, NULL, NULL, ?, ?, ?)
		`, fields["id"], fields["task"], nowMillis, firstEnqueuedMillis, fields["blob"], fields["retries"], eta)
		return err
	})
}

// FetchEligible atomically selects and leases the single eligible row with
// the smallest enqueued value. withETA controls whether the
// "eta IS NULL OR eta <= nowMillis" predicate is applied (queue) or
// skipped (deadletter, where rows aren't eta-gated). When lease is true
// the selected row's fetched column is stamped; deadletter reads never
// lease since dead-letter rows are drained by DeadletterRequeue, not
// dispatched to workers.
func (s *Store) FetchEligible(ctx context.Context, table string, nowMillis int64, withETA, lease bool) (*types.Row, error) {
	var row *types.Row

	err := s.WithConnection(ctx, "fetch "+table, func(tx *sql.Tx) error {
		query := `
			SELECT id, task, enqueued, first_enqueued, blob, retries, eta
			FROM ` + table + `
			WHERE fetched IS NULL
		`
		args := []any{}
		if withETA {
			query += ` AND (eta IS NULL OR eta <= ?)`
			args = append(args, nowMillis)
		}
		query += ` ORDER BY enqueued ASC LIMIT 1`

		var r types.Row
		var eta sql.NullInt64
		err := tx.QueryRowContext(ctx, query, args...).Scan(
			&r.ID, &r.Task, &r.Enqueued, &r.FirstEnqueued, &r.Blob, &r.Retries, &eta,
		)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if eta.Valid {
			r.ETA = &eta.Int64
		}

		if lease {
			if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET fetched = ? WHERE id = ?`, nowMillis, r.ID); err != nil {
				return err
			}
		}

		row = &r
		return nil
	})
	return row, err
}

// MarkAcked sets acked = nowMillis on the row matching id.
func (s *Store) MarkAcked(ctx context.Context, table, id string, nowMillis int64) error {
	return s.WithConnection(ctx, "ack "+table, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE `+table+` SET acked = ? WHERE id = ?`, nowMillis, id)
		return err
	})
}

// SetRetriesAndRelease sets retries and clears fetched, releasing the
// lease so the row is eligible again on the next fetch.
func (s *Store) SetRetriesAndRelease(ctx context.Context, table, id string, retries int) error {
	return s.WithConnection(ctx, "release "+table, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE `+table+` SET retries = ?, fetched = NULL WHERE id = ?`, retries, id)
		return err
	})
}

// DeleteRow removes the row matching id from table.
func (s *Store) DeleteRow(ctx context.Context, table, id string) error {
	return s.WithConnection(ctx, "delete "+table, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
		return err
	})
}

// CountEligible counts rows matching the eligibility predicate used by
// FetchEligible (without leasing them).
func (s *Store) CountEligible(ctx context.Context, table string, nowMillis int64, withETA bool) (int, error) {
	var count int
	err := s.WithConnection(ctx, "count "+table, func(tx *sql.Tx) error {
		query := `SELECT count(1) FROM ` + table + ` WHERE fetched IS NULL`
		args := []any{}
		if withETA {
			query += ` AND (eta IS NULL OR eta <= ?)`
			args = append(args, nowMillis)
		}
		return tx.QueryRowContext(ctx, query, args...).Scan(&count)
	})
	return count, err
}

// RowCount returns the total number of rows in table, regardless of
// fetched/acked state. Unlike CountEligible, which structurally excludes
// acked rows, this is what callers need to verify retention (keep_msg)
// is actually enforced rather than merely that acked rows aren't
// dispatchable.
func (s *Store) RowCount(ctx context.Context, table string) (int, error) {
	var count int
	err := s.WithConnection(ctx, "row count "+table, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT count(1) FROM `+table).Scan(&count)
	})
	return count, err
}

// PruneDone deletes rows from table with acked IS NOT NULL, keeping the
// keepMsg most recently enqueued such rows, then runs a VACUUM in a
// separate transaction to reclaim space.
func (s *Store) PruneDone(ctx context.Context, table string, keepMsg int) error {
	err := s.WithConnection(ctx, "prune "+table, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM `+table+`
			WHERE acked IS NOT NULL
			AND id NOT IN (
				SELECT id FROM `+table+`
				WHERE acked IS NOT NULL
				ORDER BY enqueued DESC
				LIMIT ?
			)
		`, keepMsg)
		return err
	})
	if err != nil {
		return err
	}

	// VACUUM cannot run inside a transaction, so it bypasses WithConnection
	// and talks to the pooled handle directly, in its own critical section.
	return s.compact(ctx)
}
