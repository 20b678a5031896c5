package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"

	"ec-ph-doser/internal/config"
	"ec-ph-doser/internal/frame"
)

// settleDelay gives the USB-serial bridge time to become ready after open
// before the request is written.
const settleDelay = 150 * time.Millisecond

// FramedAdapter talks the request/response ASCII protocol: write a fixed
// request string, then read until the line goes idle. The device sends no
// terminator and no length prefix, so end-of-response is detected by an
// idle gap within a bounded total timeout.
type FramedAdapter struct {
	cfg    config.TransportConfig
	logger zerolog.Logger
}

// NewFramed constructs a framed-ASCII adapter.
func NewFramed(cfg config.TransportConfig, logger zerolog.Logger) *FramedAdapter {
	return &FramedAdapter{
		cfg:    cfg,
		logger: logger.With().Str("component", "transport_framed").Logger(),
	}
}

// Acquire performs one request/response exchange, retrying up to the
// configured attempt budget. A response in which none of the configured
// sensor ids yields a value counts as a failed attempt; partial responses
// (some ids present) succeed.
func (a *FramedAdapter) Acquire(ctx context.Context) (Sample, error) {
	var sample Sample

	err := Retry(ctx, a.cfg.Attempts, a.cfg.RetryDelay, func() error {
		s, err := a.requestOnce()
		if err != nil {
			a.logger.Debug().Err(err).Msg("exchange failed")
			return err
		}
		sample = s
		return nil
	})
	if err != nil {
		return Sample{}, err
	}
	return sample, nil
}

func (a *FramedAdapter) requestOnce() (Sample, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        a.cfg.Port,
		Baud:        a.cfg.Baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return Sample{}, fmt.Errorf("open %s: %w", a.cfg.Port, err)
	}
	defer port.Close()

	time.Sleep(settleDelay)
	if err := port.Flush(); err != nil {
		return Sample{}, fmt.Errorf("flush %s: %w", a.cfg.Port, err)
	}

	if _, err := port.Write([]byte(a.cfg.Request)); err != nil {
		return Sample{}, fmt.Errorf("write request: %w", err)
	}

	raw := a.readBurst(port)
	if len(raw) == 0 {
		return Sample{}, ErrNoData
	}

	text := frame.Decode(raw)
	sample := Sample{
		EC:          frame.ExtractValue(text, a.cfg.SensorIDs.EC),
		PH:          frame.ExtractValue(text, a.cfg.SensorIDs.PH),
		Temperature: frame.ExtractValue(text, a.cfg.SensorIDs.Temperature),
		At:          time.Now(),
	}
	if sample.Empty() {
		a.logger.Debug().Str("head", truncate(text, 120)).Msg("no ids located in response")
		return Sample{}, ErrValueMissing
	}
	return sample, nil
}

// readBurst accumulates bytes until the line has been idle for the
// configured gap, or the total timeout elapses. The port's short read
// timeout makes each Read call a bounded poll.
func (a *FramedAdapter) readBurst(port *serial.Port) []byte {
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 256)

	start := time.Now()
	var lastRx time.Time

	for time.Since(start) < a.cfg.TotalTimeout {
		n, _ := port.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			lastRx = time.Now()
			continue
		}
		if len(buf) > 0 && !lastRx.IsZero() && time.Since(lastRx) > a.cfg.IdleGap {
			break
		}
	}
	return buf
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
