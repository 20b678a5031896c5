package buslock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestWithExclusiveRunsAndPropagates(t *testing.T) {
	lock := New(filepath.Join(t.TempDir(), "bus.lock"))

	ran := false
	if err := lock.WithExclusive(context.Background(), func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("WithExclusive: %v", err)
	}
	if !ran {
		t.Fatal("fn did not run")
	}

	wantErr := errors.New("acquisition failed")
	err := lock.WithExclusive(context.Background(), func() error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want fn error passed through", err)
	}
}

func TestWithExclusiveReleasesAfterError(t *testing.T) {
	lock := New(filepath.Join(t.TempDir(), "bus.lock"))

	_ = lock.WithExclusive(context.Background(), func() error {
		return errors.New("boom")
	})

	// The lock must be free again immediately.
	done := make(chan error, 1)
	go func() {
		done <- lock.WithExclusive(context.Background(), func() error { return nil })
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("reacquire: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lock was not released after fn error")
	}
}

func TestWithExclusiveBlocksConcurrentHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.lock")
	holder := New(path)
	contender := New(path)

	acquired := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = holder.WithExclusive(context.Background(), func() error {
			close(acquired)
			<-release
			return nil
		})
	}()
	<-acquired
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := contender.WithExclusive(ctx, func() error { return nil })
	if err == nil {
		t.Fatal("contender acquired a held lock")
	}
}
