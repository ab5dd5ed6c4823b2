package service

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"sight/internal/data"
	"sight/internal/metric"
	"sight/pkg/logging"
)

// Registry maps service ids to live services. It holds strong references:
// a service stays alive until it is unregistered. Create one per
// application and pass it explicitly.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Service

	factory *Factory
	objects *data.Registry
	proxy   *Proxy
	metrics *serviceMetrics
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithObjectRegistry shares an object registry instead of creating one.
func WithObjectRegistry(objects *data.Registry) RegistryOption {
	return func(r *Registry) { r.objects = objects }
}

// WithProxy shares a proxy instead of creating one.
func WithProxy(p *Proxy) RegistryOption {
	return func(r *Registry) { r.proxy = p }
}

// WithMetrics records lifecycle metrics into reg.
func WithMetrics(reg *metric.MetricsRegistry) RegistryOption {
	return func(r *Registry) {
		if reg == nil {
			return
		}
		m, err := newServiceMetrics(reg)
		if err != nil {
			logging.Warn("Registry", "Service metrics disabled: %v", err)
			return
		}
		r.metrics = m
	}
}

// NewRegistry creates a registry building services with factory.
func NewRegistry(factory *Factory, opts ...RegistryOption) *Registry {
	r := &Registry{
		services: make(map[string]*Service),
		factory:  factory,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.objects == nil {
		r.objects = data.NewRegistry()
	}
	if r.proxy == nil {
		r.proxy = NewProxy()
	}
	return r
}

// Factory returns the factory services are built with.
func (r *Registry) Factory() *Factory { return r.factory }

// Objects returns the object registry outputs are published to.
func (r *Registry) Objects() *data.Registry { return r.objects }

// Proxy returns the proxy channels of the registry's services.
func (r *Registry) Proxy() *Proxy { return r.proxy }

// Add builds a service of type typ and registers it under id. An empty id
// is replaced by a generated one.
func (r *Registry) Add(typ Type, id string) (*Service, error) {
	if id == "" {
		id = uuid.New().String()
	}

	r.mu.RLock()
	_, exists := r.services[id]
	r.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	svc, err := r.factory.New(typ, id, r)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.services[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	r.services[id] = svc
	n := len(r.services)
	r.mu.Unlock()

	r.metrics.setServices(n)
	logging.Debug("Registry", "Registered service %s (%s)", id, typ)
	return svc, nil
}

// Get returns the service registered under id.
func (r *Registry) Get(id string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, id)
	}
	return svc, nil
}

// Unregister removes svc and withdraws its outputs. It does not stop it.
func (r *Registry) Unregister(svc *Service) error {
	r.mu.Lock()
	current, ok := r.services[svc.ID()]
	if !ok || current != svc {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServiceNotFound, svc.ID())
	}
	delete(r.services, svc.ID())
	n := len(r.services)
	r.mu.Unlock()

	if !svc.IsStopped() {
		logging.Warn("Registry", "Unregistering service %s while %s", svc.ID(), svc.GlobalStatus())
	}
	svc.withdrawOutputs()
	r.metrics.setServices(n)
	logging.Debug("Registry", "Unregistered service %s", svc.ID())
	return nil
}

// Services returns every registered service, ordered by id.
func (r *Registry) Services() []*Service {
	r.mu.RLock()
	out := make([]*Service, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, svc)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ServicesOfType returns the registered services of type typ, ordered by id.
func (r *Registry) ServicesOfType(typ Type) []*Service {
	var out []*Service
	for _, svc := range r.Services() {
		if svc.Type() == typ {
			out = append(out, svc)
		}
	}
	return out
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}
