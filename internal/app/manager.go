package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/tomb.v2"

	"sight/internal/config"
	"sight/internal/data"
	"sight/internal/metric"
	"sight/internal/service"
	"sight/internal/signal"
	"sight/internal/worker"
	"sight/pkg/logging"
)

var (
	// ErrAlreadyBuilt indicates Build was called twice
	ErrAlreadyBuilt = errors.New("application already built")

	// ErrNotBuilt indicates Start was called before Build
	ErrNotBuilt = errors.New("application not built")

	// ErrAlreadyStarted indicates Start was called on a running application
	ErrAlreadyStarted = errors.New("application already started")
)

// Manager builds an application from its definition and supervises the
// lifecycle of its services.
type Manager struct {
	def      *config.AppDefinition
	registry *service.Registry
	workers  *worker.Registry
	metrics  *metric.MetricsRegistry

	defaultWorker string

	mu       sync.Mutex
	built    bool
	started  bool
	services []*service.Service
	bindings []*binding
	deferred map[string]bool

	// Object registry events are handled by the supervisor goroutine so
	// signal emitters, usually workers, never wait on other workers.
	conns   signal.Connections
	t       *tomb.Tomb
	ctx     context.Context
	eventMu sync.Mutex
	events  []objectEvent
	wake    chan struct{}
}

type objectEvent struct {
	added bool
	obj   *data.Object
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetricsRegistry exports service and pool metrics to reg.
func WithMetricsRegistry(reg *metric.MetricsRegistry) Option {
	return func(m *Manager) {
		m.metrics = reg
	}
}

// WithDefaultWorker runs services that name no worker on the named one.
func WithDefaultWorker(name string) Option {
	return func(m *Manager) {
		m.defaultWorker = name
	}
}

// NewManager creates a manager for def. Services are created by factory.
func NewManager(def *config.AppDefinition, factory *service.Factory, opts ...Option) *Manager {
	m := &Manager{
		def:      def,
		workers:  worker.NewRegistry(),
		deferred: make(map[string]bool),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}

	var regOpts []service.RegistryOption
	if m.metrics != nil {
		regOpts = append(regOpts, service.WithMetrics(m.metrics))
	}
	m.registry = service.NewRegistry(factory, regOpts...)
	return m
}

// Definition returns the application definition.
func (m *Manager) Definition() *config.AppDefinition { return m.def }

// Registry returns the service registry of the application.
func (m *Manager) Registry() *service.Registry { return m.registry }

// Objects returns the object registry of the application.
func (m *Manager) Objects() *data.Registry { return m.registry.Objects() }

// Workers returns the worker registry of the application.
func (m *Manager) Workers() *worker.Registry { return m.workers }

// Service returns the service with id.
func (m *Manager) Service(id string) (*service.Service, error) {
	return m.registry.Get(id)
}

// Build validates the definition and creates its workers, objects and
// services. Services are configured and bound but not started.
func (m *Manager) Build() (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.built {
		return ErrAlreadyBuilt
	}
	if err := m.def.Validate(); err != nil {
		return err
	}

	defer func() {
		if err != nil {
			m.teardownLocked()
		}
	}()

	if err := m.buildWorkers(); err != nil {
		return err
	}
	if err := m.buildObjects(); err != nil {
		return err
	}
	for i := range m.def.Services {
		if err := m.buildService(&m.def.Services[i]); err != nil {
			return err
		}
	}
	m.buildConnections()

	m.built = true
	logging.Info("App", "Built application %s: %d services, %d objects, %d workers",
		m.def.Name, len(m.services), m.Objects().Len(), len(m.workers.Names()))
	return nil
}

func (m *Manager) buildWorkers() error {
	for _, wd := range m.def.Workers {
		var w worker.Worker
		switch wd.Kind {
		case config.WorkerKindPool:
			var opts []worker.PoolOption
			if m.metrics != nil {
				opts = append(opts, worker.WithMetricsRegistry(m.metrics))
			}
			pool := worker.NewPool(wd.Name, wd.Size, wd.QueueSize, opts...)
			if err := pool.Start(); err != nil {
				return fmt.Errorf("starting worker %s: %w", wd.Name, err)
			}
			w = pool
		default:
			w = worker.NewLoop(wd.Name)
		}
		if err := m.workers.Add(w); err != nil {
			_ = w.Stop()
			return err
		}
	}
	return nil
}

func (m *Manager) buildObjects() error {
	for _, od := range m.def.Objects {
		if err := m.Objects().Add(data.NewObject(od.ID, od.Type, od.Value)); err != nil {
			return fmt.Errorf("creating object %s: %w", od.ID, err)
		}
	}
	return nil
}

// teardownLocked undoes a partial build.
func (m *Manager) teardownLocked() {
	for i := len(m.services) - 1; i >= 0; i-- {
		if err := m.registry.Unregister(m.services[i]); err != nil {
			logging.Warn("App", "Could not unregister %s: %v", m.services[i].ID(), err)
		}
	}
	m.services = nil
	m.bindings = nil
	for _, obj := range m.Objects().Objects() {
		_, _ = m.Objects().Remove(obj.ID())
	}
	if err := m.workers.StopAll(); err != nil {
		logging.Warn("App", "Stopping workers after failed build: %v", err)
	}
}

// startOrder returns the services of the explicit start list first, then
// the others in definition order.
func (m *Manager) startOrder() []*service.Service {
	listed := make(map[string]bool, len(m.def.Start))
	order := make([]*service.Service, 0, len(m.services))
	for _, id := range m.def.Start {
		if svc, err := m.registry.Get(id); err == nil && !listed[id] {
			listed[id] = true
			order = append(order, svc)
		}
	}
	for _, svc := range m.services {
		if !listed[svc.ID()] {
			order = append(order, svc)
		}
	}
	return order
}

// Start starts every service whose required objects are present. The others
// are deferred and started once their objects appear in the object registry.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if !m.built {
		m.mu.Unlock()
		return ErrNotBuilt
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	order := m.startOrder()

	m.t, m.ctx = tomb.WithContext(context.WithoutCancel(ctx))
	m.conns.Add(
		m.Objects().Signal(data.SignalAdded).Connect(m.onObjectEvent(true)),
		m.Objects().Signal(data.SignalRemoved).Connect(m.onObjectEvent(false)),
	)
	m.t.Go(m.supervise)
	m.mu.Unlock()

	logging.Info("App", "Starting application %s", m.def.Name)
	for _, svc := range order {
		if err := m.startIfReady(ctx, svc); err != nil {
			return err
		}
	}
	return nil
}

// startIfReady starts svc when all its required objects are bound, and
// defers it otherwise.
func (m *Manager) startIfReady(ctx context.Context, svc *service.Service) error {
	if !svc.HasAllRequiredObjects() {
		m.mu.Lock()
		first := !m.deferred[svc.ID()]
		m.deferred[svc.ID()] = true
		m.mu.Unlock()
		if first {
			logging.Info("App", "Deferring start of %s: missing %v", svc.ID(), svc.MissingObjects())
		}
		return nil
	}

	m.mu.Lock()
	delete(m.deferred, svc.ID())
	m.mu.Unlock()

	if err := svc.Start(ctx).WaitContext(ctx); err != nil {
		return fmt.Errorf("starting application %s: %w", m.def.Name, err)
	}
	return nil
}

// Update updates the services of the update list that are running.
func (m *Manager) Update(ctx context.Context) error {
	var errs []error
	for _, id := range m.def.Update {
		svc, err := m.registry.Get(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !svc.IsStarted() {
			logging.Debug("App", "Skipping update of %s: %s", id, svc.GlobalStatus())
			continue
		}
		if err := svc.Update(ctx).WaitContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop stops every service, unregisters them and stops the workers.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.built {
		m.mu.Unlock()
		return nil
	}
	m.conns.DisconnectAll()
	t := m.t
	m.mu.Unlock()

	if t != nil {
		t.Kill(nil)
		_ = t.Wait()
	}

	logging.Info("App", "Stopping application %s", m.def.Name)
	var g errgroup.Group
	for _, svc := range m.Services() {
		if !svc.IsStarted() {
			continue
		}
		g.Go(func() error {
			return svc.Stop(ctx).WaitContext(ctx)
		})
	}
	stopErr := g.Wait()
	if stopErr != nil {
		logging.Error("App", stopErr, "Failed to stop application %s cleanly", m.def.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	m.built = false
	m.started = false
	m.t = nil
	m.deferred = make(map[string]bool)
	return stopErr
}

// Services returns the services in definition order.
func (m *Manager) Services() []*service.Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*service.Service(nil), m.services...)
}

// Deferred reports whether svc waits for missing objects.
func (m *Manager) Deferred(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deferred[id]
}

// ServiceStatus is the status of one application service.
type ServiceStatus struct {
	service.Status
	Deferred bool     `json:"deferred,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}

// Status returns a snapshot of every service in definition order.
func (m *Manager) Status() []ServiceStatus {
	services := m.Services()
	out := make([]ServiceStatus, 0, len(services))
	for _, svc := range services {
		out = append(out, ServiceStatus{
			Status:   svc.Status(),
			Deferred: m.Deferred(svc.ID()),
			Missing:  svc.MissingObjects(),
		})
	}
	return out
}

func (m *Manager) onObjectEvent(added bool) signal.Handler {
	return func(args ...any) {
		if len(args) == 0 {
			return
		}
		obj, ok := args[0].(*data.Object)
		if !ok {
			return
		}
		m.eventMu.Lock()
		m.events = append(m.events, objectEvent{added: added, obj: obj})
		m.eventMu.Unlock()
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}

func (m *Manager) supervise() error {
	for {
		select {
		case <-m.t.Dying():
			return nil
		case <-m.wake:
		}

		m.eventMu.Lock()
		events := m.events
		m.events = nil
		m.eventMu.Unlock()

		for _, ev := range events {
			if ev.added {
				m.objectAdded(ev.obj)
			} else {
				m.objectRemoved(ev.obj)
			}
		}
	}
}
