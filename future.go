package driver

import (
	"context"
	"sync"
)

// Future is a write-once outcome for a session operation or request.
// It is resolved exactly once, with either a result or an error; later
// resolution attempts are ignored. Any number of goroutines may wait on it.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value []byte
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve completes the future successfully. No-op if already resolved.
func (f *Future) resolve(value []byte) {
	f.once.Do(func() {
		f.value = value
		close(f.done)
	})
}

// fail completes the future with an error. No-op if already resolved.
func (f *Future) fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the future has been resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the future has been resolved.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves or ctx is done. It returns the
// future's error (nil on success), or the context error on timeout.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the resolved value and error. It blocks until resolution.
func (f *Future) Result() ([]byte, error) {
	<-f.done
	return f.value, f.err
}
