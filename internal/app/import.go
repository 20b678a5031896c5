package app

import (
	"context"
	"errors"
	"time"

	"ec-ph-doser/internal/storage"
)

// Import backfills a sensor CSV log into the configured database. It exists
// for lines that started on CSV persistence and later moved to PostgreSQL.
func (a *App) Import(ctx context.Context, opts ImportOptions) error {
	if opts.Path == "" {
		return errors.New("--file is required")
	}
	if a.Config.Storage.Kind != "postgres" {
		return errors.New("storage.kind must be postgres to import")
	}

	// The source file uses the same layout the CSV sink writes, so the sink
	// doubles as the reader.
	source := storage.NewCSVStore(opts.Path, "", false)
	rows, err := source.ListReadingsBetween(ctx, time.Time{}, time.Now().Add(24*time.Hour))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Str("file", opts.Path).Msg("no readings found in source file")
		return nil
	}

	if opts.DryRun {
		a.Logger.Info().Int("rows", len(rows)).Msg("dry-run: nothing written")
		return nil
	}

	readings, _, closeStore, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	imported := 0
	failed := 0
	for _, row := range rows {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := readings.AppendReading(ctx, row); err != nil {
			failed++
			a.Logger.Error().Err(err).Time("date", row.Date).Msg("import row failed")
			continue
		}
		imported++
	}

	a.Logger.Info().Int("imported", imported).Int("failed", failed).Msg("import finished")
	if failed > 0 {
		return errors.New("some rows failed to import; check the log")
	}
	return nil
}
