package worker

import (
	"context"
	"sync"
)

// Future is a shared, multi-waiter completion handle.
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewPending returns an unresolved future and the function resolving it.
// Only the first call to resolve has an effect.
func NewPending() (*Future, func(error)) {
	f := &Future{done: make(chan struct{})}
	return f, f.resolve
}

// Completed returns a future that is already resolved with err.
func Completed(err error) *Future {
	f := &Future{done: make(chan struct{}), err: err}
	f.once.Do(func() { close(f.done) })
	return f
}

func (f *Future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the future is resolved and returns its error.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

// WaitContext is Wait bounded by ctx. Giving up does not cancel the
// underlying work.
func (f *Future) WaitContext(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future is resolved.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the error of a resolved future, or nil while it is pending.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Then chains fn after f. fn receives f's error and its return value
// resolves the returned future.
func (f *Future) Then(fn func(error) error) *Future {
	if f.IsDone() {
		return Completed(fn(f.err))
	}

	next, resolve := NewPending()
	go func() {
		<-f.done
		resolve(fn(f.err))
	}()
	return next
}

// WaitAll waits for every future and returns the first error encountered.
func WaitAll(futures ...*Future) error {
	var firstErr error
	for _, f := range futures {
		if f == nil {
			continue
		}
		if err := f.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
