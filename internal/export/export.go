// Package export writes the local measurements table out as CSV, for
// operators who want the data outside of a SQLite client.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/RUBclim/vpf-730/internal/storage/sqlite"
	"github.com/RUBclim/vpf-730/internal/types"
)

// WriteCSV writes every row of the local measurements table in store to w,
// header first, in types.FieldOrder.
func WriteCSV(ctx context.Context, store *sqlite.Store, w io.Writer) error {
	rows, err := store.AllMeasurements(ctx)
	if err != nil {
		return fmt.Errorf("vpf730: export: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(types.FieldOrder); err != nil {
		return fmt.Errorf("vpf730: export: write header: %w", err)
	}

	for _, m := range rows {
		if err := cw.Write(record(m)); err != nil {
			return fmt.Errorf("vpf730: export: write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("vpf730: export: flush: %w", err)
	}
	return nil
}

func record(m types.Measurement) []string {
	row := m.Row()
	out := make([]string, len(row))
	for i, v := range row {
		switch val := v.(type) {
		case float64:
			out[i] = types.FormatFloat(val)
		default:
			out[i] = fmt.Sprint(val)
		}
	}
	return out
}
