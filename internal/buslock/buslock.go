// Package buslock serialises access to a shared physical bus across
// independent control-loop processes. Several loops may address the same
// RS-485/USB line; overlapping transactions corrupt both sides, so every
// acquisition sequence runs under an exclusive filesystem advisory lock.
package buslock

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// retryEvery is the poll interval while waiting for a contended lock.
const retryEvery = 50 * time.Millisecond

// Lock names one physical bus.
type Lock struct {
	path string
}

// New returns a lock handle for the bus identified by path. The file is a
// rendezvous point only; its contents are never read.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// WithExclusive acquires the bus lock, runs fn, and releases the lock on
// every exit path. The lock must wrap the entire read-retry sequence of one
// acquisition, not individual byte operations.
func (l *Lock) WithExclusive(ctx context.Context, fn func() error) error {
	fl := flock.New(l.path)

	locked, err := fl.TryLockContext(ctx, retryEvery)
	if err != nil {
		return fmt.Errorf("acquire bus lock %s: %w", l.path, err)
	}
	if !locked {
		return fmt.Errorf("acquire bus lock %s: not acquired", l.path)
	}
	defer func() {
		_ = fl.Unlock()
	}()

	return fn()
}
