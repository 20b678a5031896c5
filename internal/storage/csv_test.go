package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func fptr(v float64) *float64 { return &v }

func newTestCSVStore(t *testing.T) *CSVStore {
	t.Helper()
	dir := t.TempDir()
	return NewCSVStore(filepath.Join(dir, "ec_ph_log.csv"), filepath.Join(dir, "doses.csv"), false)
}

func TestCSVAppendReadingWritesHeaderOnce(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	date := time.Date(2026, 8, 23, 10, 30, 0, 0, time.Local)
	if err := s.AppendReading(ctx, SensorReading{Date: date, EC: fptr(1.25), PH: fptr(6.02), Temperature: fptr(21.4)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendReading(ctx, SensorReading{Date: date.Add(time.Minute), EC: fptr(1.26), PH: nil, Temperature: fptr(21.5)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	raw, err := os.ReadFile(s.sensorPath)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "Date,EC,pH,Solution_Temperature" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "2026-08-23 10:30,1.25,6.02,21.40" {
		t.Fatalf("row = %q", lines[1])
	}
	// Absent pH is a blank cell, not a zero.
	if lines[2] != "2026-08-23 10:31,1.26,,21.50" {
		t.Fatalf("row with absent channel = %q", lines[2])
	}
}

func TestCSVReadingsRoundTrip(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.Local)
	for i := 0; i < 5; i++ {
		reading := SensorReading{Date: base.Add(time.Duration(i) * time.Minute), EC: fptr(1.2 + float64(i)*0.01)}
		if err := s.AppendReading(ctx, reading); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	window, err := s.ListReadingsBetween(ctx, base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("window rows = %d, want 2 (from inclusive, to exclusive)", len(window))
	}
	if !window[0].Date.Equal(base.Add(time.Minute)) {
		t.Fatalf("first row at %v", window[0].Date)
	}
	if window[0].PH != nil {
		t.Fatal("blank cell should round-trip to nil")
	}

	recent, err := s.ListRecentReadings(ctx, 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 || !recent[0].Date.Equal(base.Add(4*time.Minute)) {
		t.Fatalf("recent rows wrong: %+v", recent)
	}
}

func TestCSVDoseEventsRoundTrip(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	event := DoseEvent{
		Timestamp:   time.Date(2026, 8, 23, 10, 30, 12, 0, time.Local),
		Device:      "AB",
		VolumeML:    decimal.NewFromFloat(10),
		DurationSec: 6.06,
	}
	if err := s.AppendDoseEvent(ctx, event); err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := s.ListRecentDoses(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	got := events[0]
	if got.Device != "AB" || !got.Timestamp.Equal(event.Timestamp) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.VolumeML.Equal(event.VolumeML) {
		t.Fatalf("volume = %s, want %s", got.VolumeML, event.VolumeML)
	}
	if got.DurationSec != 6.06 {
		t.Fatalf("duration = %v", got.DurationSec)
	}
}

func TestCSVMissingFilesReadAsEmpty(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	readings, err := s.ListRecentReadings(ctx, 10)
	if err != nil {
		t.Fatalf("missing sensor log should not error: %v", err)
	}
	if len(readings) != 0 {
		t.Fatalf("readings = %d, want 0", len(readings))
	}

	doses, err := s.ListRecentDoses(ctx, 10)
	if err != nil {
		t.Fatalf("missing dose log should not error: %v", err)
	}
	if len(doses) != 0 {
		t.Fatalf("doses = %d, want 0", len(doses))
	}
}

func TestCSVCreatesLogDirectory(t *testing.T) {
	dir := t.TempDir()
	s := NewCSVStore(filepath.Join(dir, "logs", "nested", "ec.csv"), filepath.Join(dir, "logs", "doses.csv"), true)

	err := s.AppendReading(context.Background(), SensorReading{Date: time.Now(), EC: fptr(1.2)})
	if err != nil {
		t.Fatalf("append into missing directory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs", "nested", "ec.csv")); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}
