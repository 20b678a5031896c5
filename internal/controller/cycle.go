package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ec-ph-doser/internal/filter"
	"ec-ph-doser/internal/storage"
)

// acquireStatus is the internal result of the acquisition stage.
type acquireStatus int

const (
	acquireOK acquireStatus = iota
	acquireFail
	acquireStop
)

// RunCycle executes one control cycle under the exclusive bus lock and
// returns its outcome. The lock wraps the entire cycle: acquisition
// retries, dosing, and persistence all complete before another process may
// touch the bus.
func (s *Session) RunCycle(ctx context.Context) Outcome {
	outcome := OutcomeFail
	err := s.lock.WithExclusive(ctx, func() error {
		outcome = s.cycleLocked(ctx)
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("bus lock acquisition failed")
		s.tele.Status("fail", "bus_lock")
		return OutcomeFail
	}
	return outcome
}

func (s *Session) cycleLocked(ctx context.Context) Outcome {
	ec, ph, temp, status := s.acquireRepresentative(ctx)
	switch status {
	case acquireStop:
		s.forceAllOff()
		s.tele.Status("stopped", "switch_off_during_read")
		return OutcomeStop
	case acquireFail:
		s.tele.Status("fail", "rep_read_failed")
		return OutcomeFail
	}

	// Persist the representative unconditionally, dosed or not. A write
	// failure is telemetry, never a cycle abort.
	reading := storage.SensorReading{
		Date:        s.now().Truncate(time.Minute),
		EC:          ec,
		PH:          ph,
		Temperature: temp,
	}
	if s.readings != nil {
		if err := s.readings.AppendReading(ctx, reading); err != nil {
			s.logger.Error().Err(err).Msg("sensor log write failed")
			s.tele.DBError(s.opts.DBErrorKind, err)
		}
	}

	// Two independent threshold rules; both may fire in one cycle.
	if ec != nil && *ec <= s.opts.ECMin {
		if !s.runPump(ctx, s.opts.ABTopic, "AB") {
			s.forceAllOff()
			s.tele.Status("stopped", "switch_off_during_pump")
			return OutcomeStop
		}
	}
	if ph != nil && *ph >= s.opts.PHMax {
		if !s.runPump(ctx, s.opts.AcidTopic, "Acid") {
			s.forceAllOff()
			s.tele.Status("stopped", "switch_off_during_pump")
			return OutcomeStop
		}
	}

	s.tele.StatusOK(ec, ph, temp)
	return OutcomeOK
}

// runPump switches the relay on for the calibrated dose duration, polling
// the stop signal at fine granularity. The relay is switched off on every
// path. Returns false when the dose was aborted; an aborted dose is
// under-delivered and never logged as completed.
func (s *Session) runPump(ctx context.Context, topic, device string) bool {
	seconds := s.doseDuration()

	s.emitter.Set(topic, true)
	completed := true
	start := s.now()
	for s.now().Sub(start) < secondsToDuration(seconds) {
		if ctx.Err() != nil || s.signal.Stopped() {
			completed = false
			break
		}
		s.sleep(s.opts.DosePollEvery)
	}
	s.emitter.Set(topic, false)

	if !completed {
		return false
	}

	event := storage.DoseEvent{
		Timestamp:   s.now(),
		Device:      device,
		VolumeML:    decimal.NewFromFloat(s.opts.DoseML),
		DurationSec: seconds,
	}
	if s.doses != nil {
		if err := s.doses.AppendDoseEvent(ctx, event); err != nil {
			s.logger.Error().Err(err).Str("device", device).Msg("dose log write failed")
			s.tele.DBError(s.opts.DBErrorKind, err)
		}
	}

	line := fmt.Sprintf("%s,%s,volume,%s,duration,%.1fs",
		event.Timestamp.Format("2006-01-02 15:04:05"), device, event.VolumeML.String(), seconds)
	s.tele.DoseLog(device, line)
	s.logger.Info().Str("device", device).Float64("seconds", seconds).Msg("dose completed")
	return true
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// acquireRepresentative reduces one or more raw samples to one validated,
// calibrated representative per channel using the configured strategy.
func (s *Session) acquireRepresentative(ctx context.Context) (ec, ph, temp *float64, status acquireStatus) {
	if s.opts.Strategy == "hampel" {
		return s.acquireHampel(ctx)
	}
	return s.acquireMedian(ctx)
}

// acquireMedian takes MedianReads immediate samples and uses the per-channel
// median of the physically valid ones. EC and temperature need at least
// MedianMin valid samples; pH is optional because the probe head sometimes
// ships without one.
func (s *Session) acquireMedian(ctx context.Context) (*float64, *float64, *float64, acquireStatus) {
	var ecVals, phVals, tempVals []float64

	for i := 0; i < s.opts.MedianReads; i++ {
		if s.signal.Stopped() {
			return nil, nil, nil, acquireStop
		}
		if ctx.Err() != nil {
			return nil, nil, nil, acquireStop
		}

		sample, err := s.adapter.Acquire(ctx)
		if err != nil {
			s.logger.Debug().Err(err).Int("read", i).Msg("acquisition attempt failed")
		} else {
			if v := s.ec.Sanitize(sample.EC); v != nil {
				ecVals = append(ecVals, *v)
			}
			if v := s.ph.Sanitize(sample.PH); v != nil {
				phVals = append(phVals, *v)
			}
			if v := s.temp.Sanitize(sample.Temperature); v != nil {
				tempVals = append(tempVals, *v)
			}
		}

		if i < s.opts.MedianReads-1 {
			s.sleep(s.opts.ReadGap)
		}
	}

	if len(ecVals) < s.opts.MedianMin || len(tempVals) < s.opts.MedianMin {
		return nil, nil, nil, acquireFail
	}

	ec := medianPtr(ecVals)
	temp := medianPtr(tempVals)
	var ph *float64
	if len(phVals) >= s.opts.MedianMin {
		ph = medianPtr(phVals)
	}
	return ec, ph, temp, acquireOK
}

// acquireHampel feeds a single acquisition through the per-channel Hampel
// state and returns the confirmed representatives, which may carry over
// from earlier cycles when the new candidate is rejected as an outlier.
func (s *Session) acquireHampel(ctx context.Context) (*float64, *float64, *float64, acquireStatus) {
	if s.signal.Stopped() || ctx.Err() != nil {
		return nil, nil, nil, acquireStop
	}

	sample, err := s.adapter.Acquire(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("acquisition failed")
		return nil, nil, nil, acquireFail
	}

	s.ec.Offer(sample.EC)
	s.ph.Offer(sample.PH)
	s.temp.Offer(sample.Temperature)

	ec := s.ec.Representative()
	ph := s.ph.Representative()
	temp := s.temp.Representative()

	// Control decisions need EC and temperature; pH may be absent.
	if ec == nil || temp == nil {
		return nil, nil, nil, acquireFail
	}
	return ec, ph, temp, acquireOK
}

func medianPtr(values []float64) *float64 {
	m, ok := filter.Median(values)
	if !ok {
		return nil
	}
	return &m
}
