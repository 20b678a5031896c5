// Package filter turns raw, untrusted sensor values into representative
// values fit for control decisions. Stage A is a hard physical-range gate;
// stage B is either a cross-cycle Hampel identifier with M-of-N
// confirmation, or an intra-cycle median over a handful of immediate reads.
package filter

import (
	"math"
	"sort"
)

// floatEps is the equality tolerance used when the history is perfectly
// flat (MAD of zero).
const floatEps = 1e-9

// Range is the physical plausibility band for one channel. The lower bound
// is exclusive: a hard zero on EC or pH is a transport artifact, never a
// real reading, so [0.0, 3.0] rejects 0.0.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether x is a physically plausible value.
func (r Range) Contains(x float64) bool {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return false
	}
	return x > r.Min && x <= r.Max
}

// Validate applies the range gate to an optional value. Out-of-band values
// become absent; they must never reach the statistics.
func (r Range) Validate(x *float64) *float64 {
	if x == nil || !r.Contains(*x) {
		return nil
	}
	return x
}

// Calibration is a per-channel linear correction applied after parsing.
type Calibration struct {
	Gain   float64
	Offset float64
}

// Apply returns gain*x + offset. A zero-valued Calibration is identity.
func (c Calibration) Apply(x *float64) *float64 {
	if x == nil {
		return nil
	}
	gain := c.Gain
	if gain == 0 {
		gain = 1
	}
	v := gain**x + c.Offset
	return &v
}

// Median returns the median of values, averaging the two middle elements
// for even lengths. It returns false for an empty input.
func Median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid], true
	}
	return 0.5 * (s[mid-1] + s[mid]), true
}
