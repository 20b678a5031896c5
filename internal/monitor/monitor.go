// Package monitor runs the report-only sensor loop: poll the probe at
// drift-free wall-clock boundaries, feed each reading through physical
// validation and the Hampel pipeline, and publish one filtered snapshot per
// report boundary. No actuators are involved; it shares the bus lock with
// the dosing loops.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ec-ph-doser/internal/buslock"
	"ec-ph-doser/internal/filter"
	"ec-ph-doser/internal/storage"
	"ec-ph-doser/internal/telemetry"
	"ec-ph-doser/internal/transport"
)

// Switch is the stop-signal subset the monitor needs.
type Switch interface {
	Stopped() bool
}

// Options tune the monitor loop.
type Options struct {
	PollEvery     time.Duration
	ReportMinutes int
}

// Monitor owns one sensor line's report loop state.
type Monitor struct {
	opts    Options
	adapter transport.Adapter
	lock    *buslock.Lock
	signal  Switch
	tele    *telemetry.Emitter
	logger  zerolog.Logger

	readings storage.ReadingStore

	ec   filter.Channel
	ph   filter.Channel
	temp filter.Channel

	lastReportKey string

	now   func() time.Time
	sleep func(time.Duration)
}

// New constructs a monitor. readings may be nil to disable persistence.
func New(
	opts Options,
	adapter transport.Adapter,
	lock *buslock.Lock,
	signal Switch,
	readings storage.ReadingStore,
	tele *telemetry.Emitter,
	ec, ph, temp filter.Channel,
	logger zerolog.Logger,
) *Monitor {
	if opts.PollEvery <= 0 {
		opts.PollEvery = 10 * time.Second
	}
	if opts.ReportMinutes <= 0 {
		opts.ReportMinutes = 2
	}
	return &Monitor{
		opts:     opts,
		adapter:  adapter,
		lock:     lock,
		signal:   signal,
		readings: readings,
		tele:     tele,
		ec:       ec,
		ph:       ph,
		temp:     temp,
		logger:   logger.With().Str("component", "monitor").Logger(),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Run polls until ctx is cancelled or the host commands stop.
func (m *Monitor) Run(ctx context.Context) error {
	m.tele.Started("monitor", "hampel")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.signal.Stopped() {
			m.tele.Status("stopped", "switch_off")
			return nil
		}

		m.sleepToNextBoundary()

		if ctx.Err() != nil || m.signal.Stopped() {
			continue
		}

		m.pollOnce(ctx)
		m.maybeReport(ctx)
	}
}

// sleepToNextBoundary waits until the next wall-clock multiple of the poll
// interval, so the polling grid never drifts.
func (m *Monitor) sleepToNextBoundary() {
	step := m.opts.PollEvery
	now := m.now()
	next := now.Truncate(step).Add(step)
	if wait := next.Sub(now); wait > 0 {
		m.sleep(wait)
	}
}

// pollOnce performs one locked acquisition and feeds the channels. Failed
// acquisitions keep the previous representatives.
func (m *Monitor) pollOnce(ctx context.Context) {
	err := m.lock.WithExclusive(ctx, func() error {
		sample, err := m.adapter.Acquire(ctx)
		if err != nil {
			return err
		}
		m.ec.Offer(sample.EC)
		m.ph.Offer(sample.PH)
		m.temp.Offer(sample.Temperature)
		return nil
	})
	if err != nil {
		m.logger.Warn().Err(err).Msg("poll failed; keeping previous representatives")
	}
}

// maybeReport emits (and persists) one snapshot when the current minute is
// on the report grid and has not been reported yet.
func (m *Monitor) maybeReport(ctx context.Context) {
	now := m.now()
	if now.Minute()%m.opts.ReportMinutes != 0 {
		return
	}
	key := now.Format("2006-01-02 15:04")
	if key == m.lastReportKey {
		return
	}
	m.lastReportKey = key

	ec := m.ec.Representative()
	ph := m.ph.Representative()
	temp := m.temp.Representative()

	if m.readings != nil && (ec != nil || ph != nil || temp != nil) {
		reading := storage.SensorReading{
			Date:        now.Truncate(time.Minute),
			EC:          ec,
			PH:          ph,
			Temperature: temp,
		}
		if err := m.readings.AppendReading(ctx, reading); err != nil {
			m.logger.Error().Err(err).Msg("sensor log write failed")
			m.tele.DBError("db_error", err)
		}
	}

	m.tele.Report(key, ec, ph, temp)
}
