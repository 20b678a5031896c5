package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SensorReading is one persisted representative snapshot. Channels the
// acquisition could not produce stay nil and are persisted as blanks/NULLs.
type SensorReading struct {
	Date        time.Time
	EC          *float64
	PH          *float64
	Temperature *float64
}

// DoseEvent records one completed actuator activation. Events are created
// only when the full dose ran; aborted doses are never persisted.
type DoseEvent struct {
	Timestamp   time.Time
	Device      string
	VolumeML    decimal.Decimal
	DurationSec float64
}

// ReadingStore defines sensor-log persistence.
type ReadingStore interface {
	AppendReading(ctx context.Context, reading SensorReading) error
	ListReadingsBetween(ctx context.Context, from, to time.Time) ([]SensorReading, error)
	ListRecentReadings(ctx context.Context, limit int) ([]SensorReading, error)
}

// DoseStore defines dose-log persistence.
type DoseStore interface {
	AppendDoseEvent(ctx context.Context, event DoseEvent) error
	ListRecentDoses(ctx context.Context, limit int) ([]DoseEvent, error)
}
