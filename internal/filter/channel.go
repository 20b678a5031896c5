package filter

// Channel bundles one measured channel's calibration, physical gate, and
// optional cross-cycle Hampel state.
type Channel struct {
	Valid  Range
	Cal    Calibration
	Hampel *Hampel
}

// Sanitize calibrates and range-gates a raw value. Returns nil for absent
// or implausible inputs.
func (c Channel) Sanitize(raw *float64) *float64 {
	return c.Valid.Validate(c.Cal.Apply(raw))
}

// Offer sanitizes raw and feeds it to the Hampel state when one is
// configured. Implausible values never reach the statistics.
func (c Channel) Offer(raw *float64) {
	if c.Hampel == nil {
		return
	}
	if v := c.Sanitize(raw); v != nil {
		c.Hampel.Offer(*v)
	}
}

// Representative returns the channel's confirmed value, or nil before the
// first acceptance (or when no Hampel state is configured).
func (c Channel) Representative() *float64 {
	if c.Hampel == nil {
		return nil
	}
	if v, ok := c.Hampel.Representative(); ok {
		return &v
	}
	return nil
}
