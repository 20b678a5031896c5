package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"ec-ph-doser/internal/storage"
)

// Show prints recent readings or dose events.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	readings, doses, closeStore, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Doses {
		return showDoses(ctx, doses, opts.Limit)
	}
	return showReadings(ctx, readings, opts.Limit)
}

func showReadings(ctx context.Context, store storage.ReadingStore, limit int) error {
	rows, err := store.ListRecentReadings(ctx, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no readings found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time\tEC\tpH\tTemp")

	for _, row := range rows {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			row.Date.Format(storage.DateLayout),
			tableCell(row.EC),
			tableCell(row.PH),
			tableCell(row.Temperature),
		)
	}

	writer.Flush()
	return nil
}

func showDoses(ctx context.Context, store storage.DoseStore, limit int) error {
	events, err := store.ListRecentDoses(ctx, limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no dose events found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time\tDevice\tVolume (ml)\tDuration (s)")

	for _, event := range events {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%.1f\n",
			event.Timestamp.Format("2006-01-02 15:04:05"),
			event.Device,
			formatDecimal(event.VolumeML, 1),
			event.DurationSec,
		)
	}

	writer.Flush()
	return nil
}

func tableCell(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
