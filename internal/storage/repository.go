package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertReadingSQL = `INSERT INTO sensor_readings (
        recorded_at,
        ec,
        ph,
        solution_temperature
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (recorded_at) DO UPDATE
    SET
        ec                   = EXCLUDED.ec,
        ph                   = EXCLUDED.ph,
        solution_temperature = EXCLUDED.solution_temperature;`

	listReadingsBetweenSQL = `SELECT
        recorded_at,
        ec,
        ph,
        solution_temperature
    FROM sensor_readings
    WHERE recorded_at >= $1
      AND recorded_at < $2
    ORDER BY recorded_at;`

	listRecentReadingsSQL = `SELECT
        recorded_at,
        ec,
        ph,
        solution_temperature
    FROM sensor_readings
    ORDER BY recorded_at DESC
    LIMIT $1;`

	insertDoseEventSQL = `INSERT INTO dose_events (
        dosed_at,
        device,
        action,
        volume_ml,
        duration_sec
    ) VALUES (
        $1,$2,'volume',$3,$4
    );`

	listRecentDosesSQL = `SELECT
        dosed_at,
        device,
        volume_ml,
        duration_sec
    FROM dose_events
    ORDER BY dosed_at DESC
    LIMIT $1;`
)

// Store persists sensor readings and dose events in PostgreSQL. Single-row
// inserts are atomic, so independent control loops may write concurrently
// without application-level locking.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// AppendReading persists one representative snapshot, replacing any earlier
// row for the same instant so a retried slot never duplicates.
func (s *Store) AppendReading(ctx context.Context, reading SensorReading) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertReadingSQL,
		reading.Date,
		nullable(reading.EC),
		nullable(reading.PH),
		nullable(reading.Temperature),
	)
	if execErr != nil {
		return fmt.Errorf("insert sensor reading: %w", execErr)
	}
	return nil
}

// ListReadingsBetween lists readings within a time window.
func (s *Store) ListReadingsBetween(ctx context.Context, from, to time.Time) ([]SensorReading, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listReadingsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list readings between: %w", queryErr)
	}
	defer rows.Close()

	return scanReadings(rows, 0)
}

// ListRecentReadings lists the most recent readings, newest first.
func (s *Store) ListRecentReadings(ctx context.Context, limit int) ([]SensorReading, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentReadingsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent readings: %w", queryErr)
	}
	defer rows.Close()

	return scanReadings(rows, limit)
}

// AppendDoseEvent persists one completed dose.
func (s *Store) AppendDoseEvent(ctx context.Context, event DoseEvent) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertDoseEventSQL,
		event.Timestamp,
		event.Device,
		event.VolumeML.String(),
		event.DurationSec,
	)
	if execErr != nil {
		return fmt.Errorf("insert dose event: %w", execErr)
	}
	return nil
}

// ListRecentDoses lists the most recent dose events, newest first.
func (s *Store) ListRecentDoses(ctx context.Context, limit int) ([]DoseEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDosesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent doses: %w", queryErr)
	}
	defer rows.Close()

	events := make([]DoseEvent, 0, limit)
	for rows.Next() {
		var (
			event     DoseEvent
			volumeStr string
		)
		if err := rows.Scan(&event.Timestamp, &event.Device, &volumeStr, &event.DurationSec); err != nil {
			return nil, err
		}
		volume, convErr := decimal.NewFromString(volumeStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse volume: %w", convErr)
		}
		event.VolumeML = volume
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

func scanReadings(rows pgx.Rows, capacity int) ([]SensorReading, error) {
	readings := make([]SensorReading, 0, capacity)
	for rows.Next() {
		var (
			reading SensorReading
			ec      sql.NullFloat64
			ph      sql.NullFloat64
			temp    sql.NullFloat64
		)
		if err := rows.Scan(&reading.Date, &ec, &ph, &temp); err != nil {
			return nil, err
		}
		reading.EC = fromNullable(ec)
		reading.PH = fromNullable(ph)
		reading.Temperature = fromNullable(temp)
		readings = append(readings, reading)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func fromNullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	value := v.Float64
	return &value
}

var (
	_ ReadingStore = (*Store)(nil)
	_ DoseStore    = (*Store)(nil)
)
