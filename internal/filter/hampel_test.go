package filter

import (
	"math"
	"testing"
)

func newTestHampel() *Hampel {
	return NewHampel(HampelOptions{
		Window:        9,
		K:             3.0,
		ConfirmN:      3,
		ConfirmM:      2,
		AgreementBand: 0.10,
	})
}

// seedHampel pushes enough varied values through the bootstrap phase to give
// the statistics a non-zero spread. Median 1.1, scaled MAD about 0.148.
func seedHampel(t *testing.T, h *Hampel) {
	t.Helper()
	for _, v := range []float64{1.0, 1.1, 1.2, 1.1, 1.0} {
		if !h.Offer(v) {
			t.Fatalf("bootstrap value %v was rejected", v)
		}
	}
}

func TestHampelBootstrapAcceptsEverything(t *testing.T) {
	h := newTestHampel()
	for i, v := range []float64{1.0, 9.0, 0.5, 4.0, 2.0} {
		if !h.Offer(v) {
			t.Fatalf("offer %d (%v) rejected during bootstrap", i, v)
		}
	}
	rep, ok := h.Representative()
	if !ok || rep != 2.0 {
		t.Fatalf("representative = %v, want last accepted 2.0", rep)
	}
}

func TestHampelRejectsSingleOutlier(t *testing.T) {
	h := newTestHampel()
	seedHampel(t, h)

	if h.Offer(2.5) {
		t.Fatal("a lone outlier must not be accepted")
	}
	rep, _ := h.Representative()
	if rep != 1.0 {
		t.Fatalf("representative moved to %v after a rejected outlier", rep)
	}
}

func TestHampelAcceptsInliers(t *testing.T) {
	h := newTestHampel()
	seedHampel(t, h)

	if !h.Offer(1.15) {
		t.Fatal("an in-band value should be accepted")
	}
	rep, _ := h.Representative()
	if rep != 1.15 {
		t.Fatalf("representative = %v, want 1.15", rep)
	}
}

func TestHampelStepChangeConfirmedByAgreement(t *testing.T) {
	h := newTestHampel()
	seedHampel(t, h)

	// A genuine refill: the new level looks like an outlier, but two
	// agreeing candidates confirm it.
	if h.Offer(2.50) {
		t.Fatal("first step candidate should be held pending")
	}
	if !h.Offer(2.52) {
		t.Fatal("second agreeing candidate should promote the step")
	}
	rep, _ := h.Representative()
	if math.Abs(rep-2.51) > 1e-9 {
		t.Fatalf("representative = %v, want median of agreeing set 2.51", rep)
	}
}

func TestHampelAcceptanceClearsPending(t *testing.T) {
	h := newTestHampel()
	seedHampel(t, h)

	if h.Offer(2.50) {
		t.Fatal("spike should be held pending")
	}
	if !h.Offer(1.15) {
		t.Fatal("return to normal should be accepted")
	}
	// The earlier spike must not pair with a fresh one across an acceptance.
	if h.Offer(2.55) {
		t.Fatal("fresh spike should start a new pending set")
	}
	rep, _ := h.Representative()
	if rep != 1.15 {
		t.Fatalf("representative = %v, want 1.15", rep)
	}
}

func TestHampelFlatHistory(t *testing.T) {
	h := newTestHampel()
	for i := 0; i < 5; i++ {
		h.Offer(1.20)
	}

	// Spread is zero; only (near-)equal values pass directly.
	if !h.Offer(1.20) {
		t.Fatal("equal value should be accepted on a flat history")
	}
	if h.Offer(1.25) {
		t.Fatal("any deviation from a flat history should be held pending")
	}
	if !h.Offer(1.26) {
		t.Fatal("two agreeing deviations should be promoted")
	}
}

func TestHampelDisagreeingPendingNeverPromotes(t *testing.T) {
	h := newTestHampel()
	seedHampel(t, h)

	// Three rejected candidates that never agree with each other: noise,
	// not a step change.
	for _, v := range []float64{2.5, 3.2, 2.0} {
		if h.Offer(v) {
			t.Fatalf("disagreeing candidate %v was promoted", v)
		}
	}
	rep, _ := h.Representative()
	if rep != 1.0 {
		t.Fatalf("representative = %v, want untouched 1.0", rep)
	}
}
