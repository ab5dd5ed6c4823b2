package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sight/internal/metric"
	"sight/pkg/logging"
)

const (
	defaultPoolWorkers     = 10
	defaultPoolQueueSize   = 1000
	defaultPoolStopTimeout = 30 * time.Second
)

// Pool is a fixed-size group of goroutines consuming a bounded task queue.
// Tasks posted to a pool may run concurrently with each other.
type Pool struct {
	name      string
	workers   int
	queueSize int

	workChan chan job
	metrics  *poolMetrics
	wg       sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	// Statistics (atomic)
	submitted int64
	processed int64
	failed    int64
	dropped   int64

	metricsRegistry *metric.MetricsRegistry
	stopTimeout     time.Duration
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

type poolMetrics struct {
	queueDepth     prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	dropped        prometheus.Counter
	processingTime prometheus.ObserverVec
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithMetricsRegistry registers the pool metrics, labelled with the pool name.
func WithMetricsRegistry(registry *metric.MetricsRegistry) PoolOption {
	return func(p *Pool) {
		p.metricsRegistry = registry
	}
}

// WithStopTimeout bounds how long Stop waits for queued tasks.
func WithStopTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.stopTimeout = d
		}
	}
}

// NewPool creates a pool. Non-positive sizes fall back to defaults.
// The pool must be started before tasks are accepted.
func NewPool(name string, workers, queueSize int, opts ...PoolOption) *Pool {
	if workers <= 0 {
		workers = defaultPoolWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultPoolQueueSize
	}

	p := &Pool{
		name:        name,
		workers:     workers,
		queueSize:   queueSize,
		workChan:    make(chan job, queueSize),
		stopTimeout: defaultPoolStopTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.metricsRegistry != nil {
		if err := p.initializeMetrics(); err != nil {
			logging.Warn("Worker", "Metrics disabled for pool %s: %v", name, err)
		}
	}
	return p
}

func (p *Pool) initializeMetrics() error {
	const component = "worker_pool"
	labels := []string{"pool"}

	queueDepth, err := metric.RegisterOrExisting(p.metricsRegistry, component, "queue_depth",
		prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sight_worker_pool_queue_depth",
			Help: "Current worker pool queue depth",
		}, labels))
	if err != nil {
		return err
	}
	submitted, err := metric.RegisterOrExisting(p.metricsRegistry, component, "submitted_total",
		prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sight_worker_pool_submitted_total",
			Help: "Total tasks submitted",
		}, labels))
	if err != nil {
		return err
	}
	processed, err := metric.RegisterOrExisting(p.metricsRegistry, component, "processed_total",
		prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sight_worker_pool_processed_total",
			Help: "Total tasks processed",
		}, labels))
	if err != nil {
		return err
	}
	failed, err := metric.RegisterOrExisting(p.metricsRegistry, component, "failed_total",
		prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sight_worker_pool_failed_total",
			Help: "Total tasks that returned an error",
		}, labels))
	if err != nil {
		return err
	}
	dropped, err := metric.RegisterOrExisting(p.metricsRegistry, component, "dropped_total",
		prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sight_worker_pool_dropped_total",
			Help: "Total tasks dropped due to a full queue",
		}, labels))
	if err != nil {
		return err
	}
	processingTime, err := metric.RegisterOrExisting(p.metricsRegistry, component, "processing_duration_seconds",
		prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sight_worker_pool_processing_duration_seconds",
			Help:    "Time spent processing tasks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"pool", "status"}))
	if err != nil {
		return err
	}

	p.metrics = &poolMetrics{
		queueDepth:     queueDepth.WithLabelValues(p.name),
		submitted:      submitted.WithLabelValues(p.name),
		processed:      processed.WithLabelValues(p.name),
		failed:         failed.WithLabelValues(p.name),
		dropped:        dropped.WithLabelValues(p.name),
		processingTime: processingTime.MustCurryWith(prometheus.Labels{"pool": p.name}),
	}
	return nil
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Start launches the pool goroutines.
func (p *Pool) Start() error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	p.started = true
	logging.Debug("Worker", "Started pool %s with %d workers", p.name, p.workers)
	return nil
}

// Post submits a task without blocking. A full queue fails the returned
// future with ErrQueueFull.
func (p *Pool) Post(ctx context.Context, task Task) *Future {
	if task == nil {
		return Completed(ErrNilTask)
	}

	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.stopped {
		return Completed(ErrWorkerStopped)
	}
	if !p.started {
		return Completed(ErrPoolNotStarted)
	}

	f, resolve := NewPending()
	select {
	case p.workChan <- job{ctx: taskContext(ctx, p), task: task, resolve: resolve}:
		atomic.AddInt64(&p.submitted, 1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(len(p.workChan)))
		}
		return f
	default:
		atomic.AddInt64(&p.dropped, 1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		resolve(ErrQueueFull)
		return f
	}
}

// Stop closes the queue and waits, up to the configured timeout, for the
// queued tasks to finish.
func (p *Pool) Stop() error {
	return p.StopTimeout(p.stopTimeout)
}

// StopTimeout is Stop with an explicit timeout.
func (p *Pool) StopTimeout(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	close(p.workChan)
	p.lifecycleMu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		logging.Debug("Worker", "Stopped pool %s", p.name)
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns current pool statistics
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Submitted:  atomic.LoadInt64(&p.submitted),
		Processed:  atomic.LoadInt64(&p.processed),
		Failed:     atomic.LoadInt64(&p.failed),
		Dropped:    atomic.LoadInt64(&p.dropped),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for j := range p.workChan {
		start := time.Now()
		err := runTask(j.ctx, p.name, j.task)
		duration := time.Since(start)

		atomic.AddInt64(&p.processed, 1)
		if err != nil {
			atomic.AddInt64(&p.failed, 1)
		}

		if p.metrics != nil {
			p.metrics.processed.Inc()
			p.metrics.queueDepth.Set(float64(len(p.workChan)))
			status := "success"
			if err != nil {
				p.metrics.failed.Inc()
				status = "error"
			}
			p.metrics.processingTime.WithLabelValues(status).Observe(duration.Seconds())
		}

		j.resolve(err)
	}
}
