package monitor

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ec-ph-doser/internal/buslock"
	"ec-ph-doser/internal/filter"
	"ec-ph-doser/internal/storage"
	"ec-ph-doser/internal/telemetry"
	"ec-ph-doser/internal/transport"
)

func fptr(v float64) *float64 { return &v }

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

type fakeSwitch struct {
	stopFn func() bool
}

func (f *fakeSwitch) Stopped() bool {
	if f.stopFn == nil {
		return false
	}
	return f.stopFn()
}

type fakeAdapter struct {
	calls   int
	acquire func(call int) (transport.Sample, error)
}

func (f *fakeAdapter) Acquire(ctx context.Context) (transport.Sample, error) {
	call := f.calls
	f.calls++
	return f.acquire(call)
}

type memReadings struct {
	rows []storage.SensorReading
}

func (m *memReadings) AppendReading(_ context.Context, r storage.SensorReading) error {
	m.rows = append(m.rows, r)
	return nil
}

func (m *memReadings) ListReadingsBetween(context.Context, time.Time, time.Time) ([]storage.SensorReading, error) {
	return m.rows, nil
}

func (m *memReadings) ListRecentReadings(context.Context, int) ([]storage.SensorReading, error) {
	return m.rows, nil
}

func hampelChannel(min, max, band float64) filter.Channel {
	return filter.Channel{
		Valid: filter.Range{Min: min, Max: max},
		Hampel: filter.NewHampel(filter.HampelOptions{
			Window: 9, K: 3.0, ConfirmN: 3, ConfirmM: 2, AgreementBand: band,
		}),
	}
}

func newTestMonitor(t *testing.T, adapter transport.Adapter, sw Switch, store storage.ReadingStore) (*Monitor, *fakeClock) {
	t.Helper()
	lock := buslock.New(filepath.Join(t.TempDir(), "bus.lock"))
	m := New(
		Options{PollEvery: 10 * time.Second, ReportMinutes: 2},
		adapter, lock, sw, store, telemetry.New(io.Discard),
		hampelChannel(0, 3, 0.1), hampelChannel(3.5, 10, 0.2), hampelChannel(10, 50, 1.0),
		zerolog.Nop(),
	)
	clock := &fakeClock{now: time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)}
	m.now = clock.Now
	m.sleep = clock.Sleep
	return m, clock
}

func TestMonitorReportsOncePerBoundary(t *testing.T) {
	store := &memReadings{}
	adapter := &fakeAdapter{acquire: func(int) (transport.Sample, error) {
		return transport.Sample{EC: fptr(1.25), PH: fptr(6.0), Temperature: fptr(21.0)}, nil
	}}

	var clockRef *fakeClock
	endAt := time.Date(2026, 8, 23, 10, 4, 5, 0, time.UTC)
	sw := &fakeSwitch{stopFn: func() bool {
		return clockRef != nil && !clockRef.now.Before(endAt)
	}}

	m, clock := newTestMonitor(t, adapter, sw, store)
	clockRef = clock

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Even-minute boundaries 10:00, 10:02, 10:04 each produced one row,
	// despite six polls per report interval.
	if len(store.rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(store.rows))
	}
	wantDates := []string{"10:00", "10:02", "10:04"}
	for i, row := range store.rows {
		if got := row.Date.Format("15:04"); got != wantDates[i] {
			t.Fatalf("row %d at %s, want %s", i, got, wantDates[i])
		}
		if row.EC == nil || *row.EC != 1.25 {
			t.Fatalf("row %d EC = %v", i, row.EC)
		}
	}
	if adapter.calls < 20 {
		t.Fatalf("acquire calls = %d; the poll grid should be much denser than reports", adapter.calls)
	}
}

func TestMonitorSkipsPersistWithoutRepresentatives(t *testing.T) {
	store := &memReadings{}
	adapter := &fakeAdapter{acquire: func(int) (transport.Sample, error) {
		return transport.Sample{}, errors.New("no data")
	}}

	var clockRef *fakeClock
	endAt := time.Date(2026, 8, 23, 10, 0, 45, 0, time.UTC)
	sw := &fakeSwitch{stopFn: func() bool {
		return clockRef != nil && !clockRef.now.Before(endAt)
	}}

	m, clock := newTestMonitor(t, adapter, sw, store)
	clockRef = clock

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.rows) != 0 {
		t.Fatalf("rows = %d; nothing confirmed means nothing persisted", len(store.rows))
	}
}

func TestMonitorStopsOnContext(t *testing.T) {
	store := &memReadings{}
	adapter := &fakeAdapter{acquire: func(int) (transport.Sample, error) {
		return transport.Sample{EC: fptr(1.2)}, nil
	}}
	m, _ := newTestMonitor(t, adapter, &fakeSwitch{}, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
