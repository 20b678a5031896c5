package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"ec-ph-doser/internal/storage"
)

// Export renders historical readings as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	readings, _, closeStore, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now()
	if opts.To != nil {
		to = *opts.To
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = *opts.From
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	rows, err := readings.ListReadingsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Msg("no readings found for export window")
		return nil
	}

	downsampled := downsampleReadings(rows, opts.MaxPoints)
	a.Logger.Info().Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting readings")

	if opts.CSVPath != "" {
		if err := writeReadingsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeReadingsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleReadings(rows []storage.SensorReading, max int) []storage.SensorReading {
	if max <= 0 || len(rows) <= max {
		return rows
	}

	result := make([]storage.SensorReading, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeReadingsCSV(path string, rows []storage.SensorReading) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "ec", "ph", "solution_temperature"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.Date.Format(storage.DateLayout),
			floatCell(row.EC),
			floatCell(row.PH),
			floatCell(row.Temperature),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// writeReadingsPNG draws EC and pH on the primary axis and solution
// temperature on the secondary axis. Channels with no data are omitted
// rather than drawn as zero lines.
func writeReadingsPNG(path string, rows []storage.SensorReading) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	ecX, ecY := seriesPoints(rows, func(r storage.SensorReading) *float64 { return r.EC })
	phX, phY := seriesPoints(rows, func(r storage.SensorReading) *float64 { return r.PH })
	tempX, tempY := seriesPoints(rows, func(r storage.SensorReading) *float64 { return r.Temperature })

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "EC (mS/cm) / pH",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Temperature (C)",
			ValueFormatter: valueFormatter,
		},
	}

	if len(ecY) > 0 {
		graph.Series = append(graph.Series, chart.TimeSeries{Name: "EC", XValues: ecX, YValues: ecY})
	}
	if len(phY) > 0 {
		graph.Series = append(graph.Series, chart.TimeSeries{Name: "pH", XValues: phX, YValues: phY})
	}
	if len(tempY) > 0 {
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    "Temperature",
			XValues: tempX,
			YValues: tempY,
			YAxis:   chart.YAxisSecondary,
		})
	}
	if len(graph.Series) == 0 {
		return errors.New("no plottable values in export window")
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func seriesPoints(rows []storage.SensorReading, pick func(storage.SensorReading) *float64) ([]time.Time, []float64) {
	var x []time.Time
	var y []float64
	for _, row := range rows {
		if v := pick(row); v != nil {
			x = append(x, row.Date)
			y = append(y, *v)
		}
	}
	return x, y
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return decimal.NewFromFloat(*v).String()
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
