// Package worker provides the executors services run their lifecycle on.
//
// # Futures
//
// Every submission returns a *Future: a shared completion handle carrying an
// error. Any number of goroutines may Wait on it, and continuations can be
// chained with Then. Completed returns a future that is already satisfied,
// which is what callers get when work runs inline.
//
// # Workers
//
// A Worker accepts tasks (func(ctx) error) and returns futures. Two
// implementations are provided:
//
//   - Loop: a single goroutine draining a FIFO queue. Tasks posted to the
//     same Loop never overlap, which gives a service bound to a Loop the
//     same guarantees as running on a dedicated thread.
//   - Pool: a fixed set of goroutines over a bounded queue with non-blocking
//     submission (ErrQueueFull) and optional Prometheus metrics.
//
// Once a task is accepted it runs to completion: the task context is
// detached from the caller's cancellation with context.WithoutCancel, and
// Stop drains the queue before returning.
//
// # Worker affinity
//
// The context handed to a task carries the worker executing it. Callers use
// Current(ctx) to detect that they already run on a given worker, and run
// the work inline instead of posting it (posting to your own Loop and waiting
// would deadlock).
//
//	w := worker.NewLoop("render")
//	defer w.Stop()
//
//	f := w.Post(ctx, func(ctx context.Context) error {
//	    return nil
//	})
//	if err := f.Wait(); err != nil {
//	    return err
//	}
package worker
