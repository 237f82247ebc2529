package sqlite

import (
	"context"
	"database/sql"
)

// Table names for the two structurally identical FIFO tables described in
// the CORE spec, plus the local measurements table handlers write to.
const (
	TableQueue       = "queue"
	TableDeadletter  = "deadletter"
	TableMeasurements = "measurements"
)

// bootstrap creates both queue tables, their ordering index, and the local
// measurements table if they don't already exist. It is safe to call on
// every process start.
func (s *Store) bootstrap(ctx context.Context) error {
	return s.WithConnection(ctx, "bootstrap", func(tx *sql.Tx) error {
		for _, table := range []string{TableQueue, TableDeadletter} {
			if _, err := tx.ExecContext(ctx, queueTableDDL(table)); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, queueIndexDDL(table)); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, measurementsTableDDL); err != nil {
			return err
		}
		return nil
	})
}

func queueTableDDL(table string) string {
	return `
		CREATE TABLE IF NOT EXISTS ` + table + ` (
			id             VARCHAR(36) PRIMARY KEY,
			task           TEXT NOT NULL,
			enqueued       INTEGER NOT NULL,
			first_enqueued INTEGER NOT NULL,
			fetched        INTEGER,
			acked          INTEGER,
			blob           TEXT NOT NULL,
			retries        INTEGER NOT NULL DEFAULT 0,
			eta            INTEGER
		)
	`
}

func queueIndexDDL(table string) string {
	return `CREATE INDEX IF NOT EXISTS idx_` + table + `_enqueued ON ` + table + `(enqueued)`
}

// measurementsTableDDL matches the 16 Measurement fields in declaration
// order, timestamp as primary key, per §6 of the spec.
const measurementsTableDDL = `
	CREATE TABLE IF NOT EXISTS measurements (
		timestamp                 INTEGER PRIMARY KEY,
		sensor_id                 INTEGER NOT NULL,
		last_measurement_period   INTEGER,
		time_since_report         INTEGER,
		nr_precip_particles       INTEGER,
		optical_range             NUMERIC,
		receiver_bg_illumination  NUMERIC,
		water_in_precip           NUMERIC,
		temp                      NUMERIC,
		transmission_eq           NUMERIC,
		exco_less_precip_particle NUMERIC,
		backscatter_exco          NUMERIC,
		total_exco                NUMERIC,
		precipitation_type_msg    TEXT,
		obstruction_to_vision     TEXT,
		self_test                 VARCHAR(3)
	)
`
