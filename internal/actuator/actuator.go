// Package actuator abstracts relay control. Actuation is delegated to the
// supervising host: commands are emitted as gpio telemetry lines, and the
// host drives the physical pins. Relay boards in the field are active-low,
// so the logical on/off levels are configuration.
package actuator

import (
	"ec-ph-doser/internal/telemetry"
)

// Emitter switches one named relay output.
type Emitter interface {
	Set(topic string, on bool)
}

// HostEmitter sends gpio commands to the automation host over telemetry.
type HostEmitter struct {
	tele     *telemetry.Emitter
	onValue  int
	offValue int
}

// NewHostEmitter constructs a host-delegated emitter with the configured
// relay levels.
func NewHostEmitter(tele *telemetry.Emitter, onValue, offValue int) *HostEmitter {
	return &HostEmitter{tele: tele, onValue: onValue, offValue: offValue}
}

// Set emits the gpio command for topic.
func (h *HostEmitter) Set(topic string, on bool) {
	value := h.offValue
	if on {
		value = h.onValue
	}
	h.tele.GPIO(topic, value)
}

var _ Emitter = (*HostEmitter)(nil)
