package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the timestamp format of the sensor log, kept compatible
// with the files the automation host already tails.
const DateLayout = "2006-01-02 15:04"

// doseLayout includes seconds; doses are point events, not slot snapshots.
const doseLayout = "2006-01-02 15:04:05"

var (
	sensorHeader = []string{"Date", "EC", "pH", "Solution_Temperature"}
	doseHeader   = []string{"timestamp", "device", "action", "volume_ml", "duration_sec"}
)

// CSVStore appends readings and dose events to two append-only CSV files.
// Every write is flushed and fsynced so a power cut loses at most the row
// in flight.
type CSVStore struct {
	sensorPath string
	dosePath   string
	sync       bool
}

// NewCSVStore constructs a CSV sink. Directories and headers are created
// lazily on first write.
func NewCSVStore(sensorPath, dosePath string, syncWrites bool) *CSVStore {
	return &CSVStore{sensorPath: sensorPath, dosePath: dosePath, sync: syncWrites}
}

// AppendReading appends one sensor row. Absent channels become blank cells.
func (s *CSVStore) AppendReading(_ context.Context, reading SensorReading) error {
	record := []string{
		reading.Date.Format(DateLayout),
		cell(reading.EC),
		cell(reading.PH),
		cell(reading.Temperature),
	}
	return s.appendRow(s.sensorPath, sensorHeader, record)
}

// AppendDoseEvent appends one dose row.
func (s *CSVStore) AppendDoseEvent(_ context.Context, event DoseEvent) error {
	record := []string{
		event.Timestamp.Format(doseLayout),
		event.Device,
		"volume",
		event.VolumeML.String(),
		strconv.FormatFloat(event.DurationSec, 'f', 2, 64),
	}
	return s.appendRow(s.dosePath, doseHeader, record)
}

// ListReadingsBetween scans the sensor log for rows within the window.
func (s *CSVStore) ListReadingsBetween(_ context.Context, from, to time.Time) ([]SensorReading, error) {
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	readings := make([]SensorReading, 0, len(all))
	for _, r := range all {
		if !r.Date.Before(from) && r.Date.Before(to) {
			readings = append(readings, r)
		}
	}
	return readings, nil
}

// ListRecentReadings returns the last limit rows, newest first.
func (s *CSVStore) ListRecentReadings(_ context.Context, limit int) ([]SensorReading, error) {
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	readings := make([]SensorReading, 0, limit)
	for i := len(all) - 1; i >= 0 && len(readings) < limit; i-- {
		readings = append(readings, all[i])
	}
	return readings, nil
}

// ListRecentDoses returns the last limit dose rows, newest first.
func (s *CSVStore) ListRecentDoses(_ context.Context, limit int) ([]DoseEvent, error) {
	rows, err := readCSV(s.dosePath)
	if err != nil {
		return nil, err
	}
	events := make([]DoseEvent, 0, limit)
	for i := len(rows) - 1; i >= 0 && len(events) < limit; i-- {
		row := rows[i]
		if len(row) < 5 || row[0] == doseHeader[0] {
			continue
		}
		ts, err := time.ParseInLocation(doseLayout, row[0], time.Local)
		if err != nil {
			continue
		}
		volume, err := decimal.NewFromString(row[3])
		if err != nil {
			continue
		}
		duration, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			continue
		}
		events = append(events, DoseEvent{
			Timestamp:   ts,
			Device:      row[1],
			VolumeML:    volume,
			DurationSec: duration,
		})
	}
	return events, nil
}

func (s *CSVStore) readAll() ([]SensorReading, error) {
	rows, err := readCSV(s.sensorPath)
	if err != nil {
		return nil, err
	}
	readings := make([]SensorReading, 0, len(rows))
	for _, row := range rows {
		if len(row) < 4 || row[0] == sensorHeader[0] {
			continue
		}
		date, err := time.ParseInLocation(DateLayout, row[0], time.Local)
		if err != nil {
			continue
		}
		readings = append(readings, SensorReading{
			Date:        date,
			EC:          parseCell(row[1]),
			PH:          parseCell(row[2]),
			Temperature: parseCell(row[3]),
		})
	}
	return readings, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// appendRow opens the file for append, writing the header first when the
// file is new or empty, then flushes and optionally fsyncs.
func (s *CSVStore) appendRow(path string, header, record []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := writer.Write(record); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	if s.sync {
		if err := file.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", path, err)
		}
	}
	return nil
}

func cell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func parseCell(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

var (
	_ ReadingStore = (*CSVStore)(nil)
	_ DoseStore    = (*CSVStore)(nil)
)
