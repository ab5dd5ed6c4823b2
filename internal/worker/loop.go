package worker

import (
	"context"
	"sync"

	"gopkg.in/tomb.v2"

	"sight/pkg/logging"
)

type job struct {
	ctx     context.Context
	task    Task
	resolve func(error)
}

// Loop is a single-goroutine worker executing tasks in submission order.
type Loop struct {
	name string
	t    tomb.Tomb

	mu      sync.Mutex
	queue   []job
	stopped bool
	wake    chan struct{}
}

// NewLoop creates and starts a loop worker.
func NewLoop(name string) *Loop {
	l := &Loop{
		name: name,
		wake: make(chan struct{}, 1),
	}
	l.t.Go(l.loop)
	logging.Debug("Worker", "Started loop worker %s", name)
	return l
}

// Name returns the worker name.
func (l *Loop) Name() string {
	return l.name
}

// Post queues a task. Posting to a stopped loop returns a future failed with
// ErrWorkerStopped.
func (l *Loop) Post(ctx context.Context, task Task) *Future {
	if task == nil {
		return Completed(ErrNilTask)
	}

	f, resolve := NewPending()

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		resolve(ErrWorkerStopped)
		return f
	}
	l.queue = append(l.queue, job{ctx: taskContext(ctx, l), task: task, resolve: resolve})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return f
}

// Pending returns the number of queued tasks not yet started.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Stop refuses new tasks, runs the ones already queued and waits for the
// loop goroutine to exit. It must not be called from a task of this loop.
func (l *Loop) Stop() error {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	l.t.Kill(nil)
	err := l.t.Wait()
	logging.Debug("Worker", "Stopped loop worker %s", l.name)
	return err
}

func (l *Loop) next() (job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return job{}, false
	}
	j := l.queue[0]
	l.queue[0] = job{}
	l.queue = l.queue[1:]
	return j, true
}

func (l *Loop) loop() error {
	for {
		if j, ok := l.next(); ok {
			j.resolve(runTask(j.ctx, l.name, j.task))
			continue
		}

		select {
		case <-l.wake:
		case <-l.t.Dying():
			// Accepted tasks always run to completion.
			for {
				j, ok := l.next()
				if !ok {
					return nil
				}
				j.resolve(runTask(j.ctx, l.name, j.task))
			}
		}
	}
}
