// Package schedule computes wall-clock slot boundaries for the control
// loops. A slot is a recurring boundary (every 30 minutes, every N hours at
// top-of-hour) identified by an opaque stamp; the controller runs at most
// one cycle per distinct stamp, which makes boundary detection immune to
// polling jitter and drift.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit selects the cadence granularity.
type Unit int

const (
	// Minutes divides each hour into N-minute slots.
	Minutes Unit = iota
	// Hours divides each day into N-hour slots at top-of-hour.
	Hours
)

// Cadence is a parameterised repeating boundary.
type Cadence struct {
	Unit Unit
	N    int
}

// EveryNMinutes returns a cadence of one slot per n minutes.
func EveryNMinutes(n int) Cadence {
	return Cadence{Unit: Minutes, N: n}
}

// EveryNHours returns a cadence of one slot per n hours.
func EveryNHours(n int) Cadence {
	return Cadence{Unit: Hours, N: n}
}

// Parse reads a cadence from its configuration form: "30m", "1h", "4h".
func Parse(s string) (Cadence, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Cadence{}, fmt.Errorf("schedule: empty cadence")
	}

	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return Cadence{}, fmt.Errorf("schedule: invalid cadence %q", s)
	}

	switch unit {
	case 'm':
		if 60%n != 0 {
			return Cadence{}, fmt.Errorf("schedule: %dm does not divide the hour evenly", n)
		}
		return EveryNMinutes(n), nil
	case 'h':
		if 24%n != 0 {
			return Cadence{}, fmt.Errorf("schedule: %dh does not divide the day evenly", n)
		}
		return EveryNHours(n), nil
	default:
		return Cadence{}, fmt.Errorf("schedule: invalid cadence %q", s)
	}
}

// String renders the cadence in its configuration form.
func (c Cadence) String() string {
	switch c.Unit {
	case Minutes:
		return fmt.Sprintf("%dm", c.N)
	default:
		return fmt.Sprintf("%dh", c.N)
	}
}

// SlotStamp returns the opaque key of the slot containing now: the floor of
// now to the cadence, rendered as a sortable timestamp. Two calls within
// the same boundary interval yield the same key.
func (c Cadence) SlotStamp(now time.Time) string {
	t := now.Truncate(time.Minute)
	switch c.Unit {
	case Minutes:
		mm := (t.Minute() / c.N) * c.N
		return t.Format("20060102_15") + fmt.Sprintf("%02d", mm)
	default:
		hh := (t.Hour() / c.N) * c.N
		return t.Format("20060102_") + fmt.Sprintf("%02d00", hh)
	}
}

// IsOnBoundary reports whether now lies within the trigger window of the
// cadence (minute-of-hour at a slot start). Combined with slot-stamp
// de-duplication this never fires twice for one boundary and never misses
// one as long as polling is sub-minute.
func (c Cadence) IsOnBoundary(now time.Time) bool {
	switch c.Unit {
	case Minutes:
		return now.Minute()%c.N == 0
	default:
		return now.Hour()%c.N == 0 && now.Minute() == 0
	}
}
