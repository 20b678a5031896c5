// Package transport performs one physical exchange with the EC/pH sensor
// head. Two interchangeable links exist in the field: a Modbus RTU probe
// exposing holding registers, and a node that answers a fixed ASCII request
// with an unterminated JSON-ish burst.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoData indicates the device produced no bytes within the timeout.
	ErrNoData = errors.New("transport: no data received")
	// ErrValueMissing indicates a response arrived but no channel value
	// could be located in it.
	ErrValueMissing = errors.New("transport: value missing from response")
)

// Sample is one raw acquisition attempt. A nil channel means the link did
// not produce a usable value for it; partial samples are first-class.
type Sample struct {
	EC          *float64
	PH          *float64
	Temperature *float64
	At          time.Time
}

// Empty reports whether no channel carries a value.
func (s Sample) Empty() bool {
	return s.EC == nil && s.PH == nil && s.Temperature == nil
}

// Adapter acquires one sample from the sensor head. Implementations retry
// internally up to their configured attempt budget; the returned error is
// the final failure after the budget is exhausted. Callers must hold the
// bus lock across the whole call.
type Adapter interface {
	Acquire(ctx context.Context) (Sample, error)
}

// Retry runs op up to attempts times with a fixed delay between failures,
// honouring ctx cancellation during the delay. It returns nil on the first
// success, otherwise the last error.
func Retry(ctx context.Context, attempts int, delay time.Duration, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if last = op(); last == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return last
}
