// Package controller runs the dosing control loop: a two-state machine
// driven by the host's auto-mode switch that executes one control cycle per
// schedule slot — acquire a representative sample, evaluate thresholds,
// dose for a calibrated duration, persist the result — while honouring the
// stop signal at every suspension point.
package controller

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ec-ph-doser/internal/actuator"
	"ec-ph-doser/internal/automode"
	"ec-ph-doser/internal/buslock"
	"ec-ph-doser/internal/filter"
	"ec-ph-doser/internal/schedule"
	"ec-ph-doser/internal/storage"
	"ec-ph-doser/internal/telemetry"
	"ec-ph-doser/internal/transport"
)

// Outcome is the result of one control cycle.
type Outcome string

const (
	// OutcomeOK means the cycle completed and dosing decisions applied.
	OutcomeOK Outcome = "OK"
	// OutcomeFail means acquisition failed and no action was taken.
	OutcomeFail Outcome = "FAIL"
	// OutcomeStop means the cycle was aborted by the external stop signal.
	OutcomeStop Outcome = "STOP"
)

// Switch is the subset of the auto-mode watcher the controller needs.
type Switch interface {
	Poll() automode.Signal
	Stopped() bool
}

// Options parameterise a controller session.
type Options struct {
	Cadence         schedule.Cadence
	SeedCurrentSlot bool
	PollInterval    time.Duration
	WaitInterval    time.Duration
	DosePollEvery   time.Duration

	Strategy    string // "hampel" or "median"
	MedianReads int
	MedianMin   int
	ReadGap     time.Duration

	ECMin        float64
	PHMax        float64
	DoseML       float64
	PumpMLPerSec float64

	ABTopic   string
	AcidTopic string

	DBErrorKind string // "db_error" or "csv_error" telemetry type
}

// Session owns all mutable control-loop state for one sensor line. Nothing
// here is process-global, so independent lines run as isolated instances.
type Session struct {
	opts    Options
	adapter transport.Adapter
	lock    *buslock.Lock
	emitter actuator.Emitter
	signal  Switch
	tele    *telemetry.Emitter
	logger  zerolog.Logger

	readings storage.ReadingStore
	doses    storage.DoseStore

	ec   filter.Channel
	ph   filter.Channel
	temp filter.Channel

	lastRunSlot string

	// injectable clock for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// New constructs a session. Stores may be nil when persistence is disabled.
func New(
	opts Options,
	adapter transport.Adapter,
	lock *buslock.Lock,
	emitter actuator.Emitter,
	signal Switch,
	readings storage.ReadingStore,
	doses storage.DoseStore,
	tele *telemetry.Emitter,
	ec, ph, temp filter.Channel,
	logger zerolog.Logger,
) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = 100 * time.Millisecond
	}
	if opts.DosePollEvery <= 0 {
		opts.DosePollEvery = 50 * time.Millisecond
	}
	if opts.MedianReads <= 0 {
		opts.MedianReads = 3
	}
	if opts.MedianMin <= 0 {
		opts.MedianMin = 2
	}
	if opts.DBErrorKind == "" {
		opts.DBErrorKind = "db_error"
	}
	return &Session{
		opts:     opts,
		adapter:  adapter,
		lock:     lock,
		emitter:  emitter,
		signal:   signal,
		readings: readings,
		doses:    doses,
		tele:     tele,
		ec:       ec,
		ph:       ph,
		temp:     temp,
		logger:   logger.With().Str("component", "controller").Logger(),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Run executes the WAITING_FOR_START → RUNNING → STOPPED machine until the
// host commands stop or ctx is cancelled. Actuators are forced off on every
// exit path.
func (s *Session) Run(ctx context.Context) error {
	s.forceAllOff()
	defer s.forceAllOff()

	// WAITING_FOR_START: poll for the initial command.
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sig := s.signal.Poll()
		if sig == automode.Run {
			break
		}
		if sig == automode.Stop {
			s.tele.Status("stopped", "initial_off")
			return nil
		}
		s.sleep(s.opts.WaitInterval)
	}

	if s.opts.SeedCurrentSlot {
		// Suppress the immediate fire when starting mid-slot.
		s.lastRunSlot = s.opts.Cadence.SlotStamp(s.now())
	}

	s.tele.Started(s.opts.Cadence.String(), s.opts.Strategy)
	s.logger.Info().
		Str("cadence", s.opts.Cadence.String()).
		Str("strategy", s.opts.Strategy).
		Msg("entering run state")

	// RUNNING: one cycle per distinct slot stamp.
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.signal.Stopped() {
			s.forceAllOff()
			s.tele.Status("stopped", "switch_off")
			return nil
		}

		slot := s.opts.Cadence.SlotStamp(s.now())
		if slot != s.lastRunSlot {
			outcome := s.RunCycle(ctx)
			// The slot is marked run regardless of outcome so a failed
			// cycle cannot retry-storm within the same boundary.
			s.lastRunSlot = slot
			if outcome == OutcomeStop {
				return nil
			}
		}

		s.sleep(s.opts.PollInterval)
	}
}

// LastRunSlot exposes the de-duplication key, mainly for observability.
func (s *Session) LastRunSlot() string {
	return s.lastRunSlot
}

func (s *Session) forceAllOff() {
	s.emitter.Set(s.opts.ABTopic, false)
	s.emitter.Set(s.opts.AcidTopic, false)
}

// doseDuration returns dose_ml / pump_ml_per_sec in seconds.
func (s *Session) doseDuration() float64 {
	volume := decimal.NewFromFloat(s.opts.DoseML)
	rate := decimal.NewFromFloat(s.opts.PumpMLPerSec)
	return volume.Div(rate).InexactFloat64()
}
