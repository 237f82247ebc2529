package sqlite

import (
	"context"
	"database/sql"

	"github.com/RUBclim/vpf-730/internal/types"
)

// InsertMeasurement inserts one Measurement into the local measurements
// table, parameterized by field name. timestamp is the primary key: a
// duplicate insert is an error, which the caller (save_locally) surfaces
// as a HandlerError so the queue retries/dead-letters it like any other
// handler failure.
func (s *Store) InsertMeasurement(ctx context.Context, m types.Measurement) error {
	return s.WithConnection(ctx, "insert measurement", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO `+TableMeasurements+` (
				timestamp, sensor_id, last_measurement_period, time_since_report,
				nr_precip_particles, optical_range, receiver_bg_illumination,
				water_in_precip, temp, transmission_eq, exco_less_precip_particle,
				backscatter_exco, total_exco, precipitation_type_msg,
				obstruction_to_vision, self_test
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.Row()...)
		return err
	})
}

// AllMeasurements returns every row of the local measurements table
// ordered by timestamp, for the CSV export helper.
func (s *Store) AllMeasurements(ctx context.Context) ([]types.Measurement, error) {
	var out []types.Measurement
	err := s.WithConnection(ctx, "select measurements", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT
				timestamp, sensor_id, last_measurement_period, time_since_report,
				nr_precip_particles, optical_range, receiver_bg_illumination,
				water_in_precip, temp, transmission_eq, exco_less_precip_particle,
				backscatter_exco, total_exco, precipitation_type_msg,
				obstruction_to_vision, self_test
			FROM `+TableMeasurements+` ORDER BY timestamp
		`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var m types.Measurement
			var precip, obstruction string
			if err := rows.Scan(
				&m.Timestamp, &m.SensorID, &m.LastMeasurementPeriod, &m.TimeSinceReport,
				&m.NrPrecipParticles, &m.OpticalRange, &m.ReceiverBgIllumination,
				&m.WaterInPrecip, &m.Temp, &m.TransmissionEq, &m.ExcoLessPrecipParticle,
				&m.BackscatterExco, &m.TotalExco, &precip, &obstruction, &m.SelfTest,
			); err != nil {
				return err
			}
			m.PrecipitationTypeMsg = types.PrecipitationType(precip)
			m.ObstructionToVision = types.ObstructionToVision(obstruction)
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}
