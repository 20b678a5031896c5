// Package automode tracks the run/stop switch the supervising host delivers
// over stdin as line-oriented "true"/"false" text. Relay polarity differs
// between deployments, so the literal that means "run" is configurable.
package automode

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// maxPending bounds the unread-signal buffer. The running controller only
// consults State(), so without a cap every stdin line would accumulate a
// Signal that is never polled. Older unread signals are superseded anyway.
const maxPending = 16

// Signal is one observation of the switch.
type Signal int

const (
	// None means no new input arrived since the last poll.
	None Signal = iota
	// Run means the host commanded auto mode on.
	Run
	// Stop means the host commanded auto mode off.
	Stop
)

// Watcher consumes switch lines in the background and exposes the latest
// state without blocking. Safe for one reader goroutine and many pollers.
type Watcher struct {
	runValue string

	mu      sync.Mutex
	state   Signal // latest observed command; None until first line
	pending []Signal
}

// NewWatcher starts consuming lines from r. runValue is the literal
// ("true" or "false") that maps to Run; the other literal maps to Stop.
func NewWatcher(r io.Reader, runValue string) *Watcher {
	w := &Watcher{runValue: strings.ToLower(strings.TrimSpace(runValue))}
	go w.consume(r)
	return w
}

func (w *Watcher) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw := strings.ToLower(strings.TrimSpace(scanner.Text()))
		var sig Signal
		switch raw {
		case w.runValue:
			sig = Run
		case "true", "false":
			sig = Stop
		default:
			continue
		}
		w.mu.Lock()
		w.state = sig
		w.pending = append(w.pending, sig)
		if len(w.pending) > maxPending {
			w.pending = w.pending[len(w.pending)-maxPending:]
		}
		w.mu.Unlock()
	}
}

// Poll returns the next unread signal, or None when nothing new arrived.
func (w *Watcher) Poll() Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return None
	}
	sig := w.pending[0]
	w.pending = w.pending[1:]
	return sig
}

// State returns the latest observed command regardless of Poll consumption.
// It is the cheap check used at every suspension point: once Stop has been
// seen it stays visible until the host commands Run again.
func (w *Watcher) State() Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stopped reports whether the latest command is Stop.
func (w *Watcher) Stopped() bool {
	return w.State() == Stop
}
