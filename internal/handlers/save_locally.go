package handlers

import (
	"context"

	"github.com/RUBclim/vpf-730/internal/config"
	"github.com/RUBclim/vpf-730/internal/registry"
	"github.com/RUBclim/vpf-730/internal/storage/sqlite"
	"github.com/RUBclim/vpf-730/internal/types"
)

// TaskSaveLocally is the registry name for the local measurements insert.
const TaskSaveLocally = "save_locally"

// NewSaveLocally returns a save_locally handler bound to a local
// measurements store. A duplicate timestamp (the table's primary key)
// surfaces as an error here, which the worker turns into a retry/
// dead-letter just like any other handler failure.
func NewSaveLocally(local *sqlite.Store) registry.Handler {
	return func(ctx context.Context, msg types.Message, cfg *config.Config) error {
		return local.InsertMeasurement(ctx, msg.Blob)
	}
}
