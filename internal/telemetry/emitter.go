// Package telemetry writes the line-oriented JSON protocol consumed by the
// supervising automation host. One complete JSON object per line; the host
// parses strictly, so a partially written line is never acceptable.
package telemetry

import (
	"encoding/json"
	"io"
	"sync"
)

// Emitter serialises telemetry messages onto a single writer.
type Emitter struct {
	mu sync.Mutex
	w  io.Writer
}

// New constructs an Emitter on top of w (normally os.Stdout).
func New(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Emit marshals v and writes it as one line. The message is marshalled into
// a buffer first so a failed marshal emits nothing at all.
func (e *Emitter) Emit(v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf = append(buf, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(buf)
	return err
}

// Started announces process startup to the host.
func (e *Emitter) Started(mode, strategy string) {
	_ = e.Emit(map[string]any{
		"type": "started",
		"mode": mode,
		"read": strategy,
	})
}

// Status reports a cycle outcome.
func (e *Emitter) Status(status, reason string) {
	msg := map[string]any{"type": "status", "status": status}
	if reason != "" {
		msg["reason"] = reason
	}
	_ = e.Emit(msg)
}

// StatusOK reports a successful cycle with its representative values.
// Absent channels are emitted as null, which the host treats as missing.
func (e *Emitter) StatusOK(ec, ph, temp *float64) {
	_ = e.Emit(map[string]any{
		"type":   "status",
		"status": "ok",
		"ec":     ec,
		"ph":     ph,
		"temp":   temp,
	})
}

// Report publishes one filtered sensor snapshot (monitor loop).
func (e *Emitter) Report(date string, ec, ph, temp *float64) {
	_ = e.Emit(map[string]any{
		"type":                 "report",
		"date":                 date,
		"EC":                   ec,
		"pH":                   ph,
		"Solution_Temperature": temp,
	})
}

// GPIO emits an actuator command for the host to apply.
func (e *Emitter) GPIO(topic string, payload int) {
	_ = e.Emit(map[string]any{
		"type":    "gpio",
		"topic":   topic,
		"payload": payload,
	})
}

// DoseLog publishes a human-readable dose record.
func (e *Emitter) DoseLog(device, payload string) {
	_ = e.Emit(map[string]any{
		"type":    "log",
		"device":  device,
		"payload": payload,
	})
}

// DBError reports a persistence failure without aborting the cycle.
func (e *Emitter) DBError(kind string, err error) {
	_ = e.Emit(map[string]any{
		"type":  kind,
		"error": err.Error(),
	})
}
