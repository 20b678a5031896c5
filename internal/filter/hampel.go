package filter

// madScale converts a median absolute deviation into a consistent estimate
// of the standard deviation for normally distributed noise.
const madScale = 1.4826

// HampelOptions tune one channel's acceptance pipeline.
type HampelOptions struct {
	// Window is the history capacity W.
	Window int
	// K is the outlier threshold in scaled-MAD units.
	K float64
	// ConfirmN is the pending-buffer capacity.
	ConfirmN int
	// ConfirmM is how many pending candidates must agree to promote.
	ConfirmM int
	// AgreementBand is the absolute band within which pending candidates
	// count as agreeing.
	AgreementBand float64
}

// Hampel holds one channel's filter state: the accepted history, the last
// confirmed representative, and the pending candidates awaiting
// confirmation. One instance per channel per controller session; never
// shared.
type Hampel struct {
	opts    HampelOptions
	history []float64
	pending []float64
	rep     float64
	hasRep  bool
}

// NewHampel constructs an empty filter state.
func NewHampel(opts HampelOptions) *Hampel {
	if opts.Window < 3 {
		opts.Window = 3
	}
	if opts.K <= 0 {
		opts.K = 3.0
	}
	if opts.ConfirmN < 1 {
		opts.ConfirmN = 3
	}
	if opts.ConfirmM < 1 {
		opts.ConfirmM = 2
	}
	return &Hampel{opts: opts}
}

// Representative returns the last confirmed value for the channel.
func (h *Hampel) Representative() (float64, bool) {
	return h.rep, h.hasRep
}

// bootstrapLen is the history size below which every candidate is accepted
// unconditionally: the statistics are meaningless on a near-empty window.
func (h *Hampel) bootstrapLen() int {
	n := h.opts.Window / 3
	if n < 5 {
		n = 5
	}
	return n
}

// Offer feeds one physically valid candidate through the Hampel test and,
// on rejection, the confirmation gate. It returns true when the candidate
// (or a confirmed pending set) became the new representative.
//
// A rejected candidate is never discarded outright: a genuine step change
// (operator refills the tank) looks like an outlier against stale history
// and must still win once enough candidates agree.
func (h *Hampel) Offer(x float64) bool {
	if len(h.history) < h.bootstrapLen() {
		h.accept(x)
		return true
	}

	m, _ := Median(h.history)
	devs := make([]float64, len(h.history))
	for i, v := range h.history {
		devs[i] = abs(v - m)
	}
	mad, _ := Median(devs)
	sigma := madScale * mad

	if sigma == 0 {
		if abs(x-m) <= floatEps {
			h.accept(x)
			return true
		}
		return h.confirm(x)
	}

	if abs(x-m) <= h.opts.K*sigma {
		h.accept(x)
		return true
	}
	return h.confirm(x)
}

// accept records x as the representative and appends it to the history,
// evicting the oldest entry beyond the window. Pending candidates are
// cleared: a direct acceptance supersedes any half-confirmed step.
func (h *Hampel) accept(x float64) {
	h.rep = x
	h.hasRep = true
	h.history = append(h.history, x)
	if len(h.history) > h.opts.Window {
		h.history = h.history[len(h.history)-h.opts.Window:]
	}
	h.pending = h.pending[:0]
}

// confirm buffers a rejected candidate and promotes the median of the
// agreeing subset once at least ConfirmM pending values lie within the
// agreement band of the newest one.
func (h *Hampel) confirm(x float64) bool {
	h.pending = append(h.pending, x)
	if len(h.pending) > h.opts.ConfirmN {
		h.pending = h.pending[len(h.pending)-h.opts.ConfirmN:]
	}

	base := h.pending[len(h.pending)-1]
	agreeing := make([]float64, 0, len(h.pending))
	for _, v := range h.pending {
		if abs(v-base) <= h.opts.AgreementBand {
			agreeing = append(agreeing, v)
		}
	}
	if len(agreeing) < h.opts.ConfirmM {
		return false
	}

	promoted, _ := Median(agreeing)
	h.accept(promoted)
	return true
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
