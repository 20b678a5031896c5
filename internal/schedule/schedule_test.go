package schedule

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    Cadence
		wantErr bool
	}{
		{"30m", EveryNMinutes(30), false},
		{"15m", EveryNMinutes(15), false},
		{"1h", EveryNHours(1), false},
		{"4h", EveryNHours(4), false},
		{" 4H ", EveryNHours(4), false},
		{"", Cadence{}, true},
		{"0m", Cadence{}, true},
		{"7m", Cadence{}, true}, // does not divide the hour
		{"5h", Cadence{}, true}, // does not divide the day
		{"4x", Cadence{}, true},
		{"h", Cadence{}, true},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) should fail", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"30m", "1h", "4h"} {
		c, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if c.String() != s {
			t.Fatalf("String() = %q, want %q", c.String(), s)
		}
	}
}

func TestSlotStampMinutes(t *testing.T) {
	c := EveryNMinutes(30)
	at := func(h, m int) time.Time {
		return time.Date(2026, 8, 23, h, m, 17, 0, time.UTC)
	}

	if got := c.SlotStamp(at(10, 0)); got != "20260823_1000" {
		t.Fatalf("10:00 stamp = %q", got)
	}
	if got := c.SlotStamp(at(10, 29)); got != "20260823_1000" {
		t.Fatalf("10:29 should share the 10:00 slot, got %q", got)
	}
	if got := c.SlotStamp(at(10, 30)); got != "20260823_1030" {
		t.Fatalf("10:30 stamp = %q", got)
	}
	if got := c.SlotStamp(at(10, 59)); got != "20260823_1030" {
		t.Fatalf("10:59 should share the 10:30 slot, got %q", got)
	}
}

func TestSlotStampHours(t *testing.T) {
	c := EveryNHours(4)
	at := func(h, m int) time.Time {
		return time.Date(2026, 8, 23, h, m, 0, 0, time.UTC)
	}

	if got := c.SlotStamp(at(0, 5)); got != "20260823_0000" {
		t.Fatalf("00:05 stamp = %q", got)
	}
	if got := c.SlotStamp(at(3, 59)); got != "20260823_0000" {
		t.Fatalf("03:59 should share the 00:00 slot, got %q", got)
	}
	if got := c.SlotStamp(at(4, 0)); got != "20260823_0400" {
		t.Fatalf("04:00 stamp = %q", got)
	}
	if got := c.SlotStamp(at(23, 59)); got != "20260823_2000" {
		t.Fatalf("23:59 should share the 20:00 slot, got %q", got)
	}
}

func TestSlotStampStableWithinSlot(t *testing.T) {
	c := EveryNHours(1)
	base := time.Date(2026, 8, 23, 14, 0, 0, 0, time.UTC)
	first := c.SlotStamp(base)
	for m := 0; m < 60; m++ {
		if got := c.SlotStamp(base.Add(time.Duration(m) * time.Minute)); got != first {
			t.Fatalf("stamp changed mid-slot at +%dm: %q vs %q", m, got, first)
		}
	}
	if got := c.SlotStamp(base.Add(time.Hour)); got == first {
		t.Fatal("stamp did not change at the next boundary")
	}
}

func TestIsOnBoundary(t *testing.T) {
	c := EveryNHours(4)
	if !c.IsOnBoundary(time.Date(2026, 8, 23, 8, 0, 30, 0, time.UTC)) {
		t.Fatal("08:00 is a 4h boundary")
	}
	if c.IsOnBoundary(time.Date(2026, 8, 23, 8, 1, 0, 0, time.UTC)) {
		t.Fatal("08:01 is not a boundary")
	}
	if c.IsOnBoundary(time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)) {
		t.Fatal("09:00 is not a 4h boundary")
	}

	m := EveryNMinutes(30)
	if !m.IsOnBoundary(time.Date(2026, 8, 23, 9, 30, 0, 0, time.UTC)) {
		t.Fatal("xx:30 is a 30m boundary")
	}
	if m.IsOnBoundary(time.Date(2026, 8, 23, 9, 31, 0, 0, time.UTC)) {
		t.Fatal("xx:31 is not a boundary")
	}
}
