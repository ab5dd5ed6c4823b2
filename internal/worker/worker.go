package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"sight/pkg/logging"
)

// Sentinel errors for worker operations
var (
	// ErrWorkerStopped indicates a task was posted after Stop
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrPoolNotStarted indicates the pool hasn't been started yet
	ErrPoolNotStarted = errors.New("worker pool not started")

	// ErrPoolAlreadyStarted indicates Start() was called on an already-started pool
	ErrPoolAlreadyStarted = errors.New("worker pool already started")

	// ErrQueueFull indicates the work queue is at capacity
	ErrQueueFull = errors.New("worker pool queue full")

	// ErrStopTimeout indicates the pool didn't stop within the timeout
	ErrStopTimeout = errors.New("timeout waiting for workers to stop")

	// ErrTaskPanicked wraps a panic recovered from a task
	ErrTaskPanicked = errors.New("task panicked")

	// ErrNilTask indicates a nil task was posted
	ErrNilTask = errors.New("task cannot be nil")
)

// Task is a unit of work executed by a Worker.
type Task func(ctx context.Context) error

// Worker executes tasks and reports completion through futures.
type Worker interface {
	// Name returns the name the worker is registered under
	Name() string

	// Post submits a task. The returned future resolves with the task's error.
	Post(ctx context.Context, task Task) *Future

	// Stop stops accepting tasks, drains the queue and waits for it.
	Stop() error
}

type currentKey struct{}

// WithWorker returns a context recording that code runs on w.
func WithWorker(ctx context.Context, w Worker) context.Context {
	return context.WithValue(ctx, currentKey{}, w)
}

// Current returns the worker executing the calling task, or nil.
func Current(ctx context.Context) Worker {
	if ctx == nil {
		return nil
	}
	w, _ := ctx.Value(currentKey{}).(Worker)
	return w
}

// taskContext detaches ctx from cancellation and tags it with w.
func taskContext(ctx context.Context, w Worker) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return WithWorker(context.WithoutCancel(ctx), w)
}

// runTask executes task, converting panics into errors.
func runTask(ctx context.Context, name string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w on worker %s: %v", ErrTaskPanicked, name, r)
			logging.Error("Worker", err, "Recovered task panic\n%s", debug.Stack())
		}
	}()
	return task(ctx)
}
