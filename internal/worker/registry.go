package worker

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"sight/pkg/logging"
)

var (
	// ErrWorkerExists indicates a worker name is already taken
	ErrWorkerExists = errors.New("worker already registered")

	// ErrWorkerNotFound indicates no worker has the requested name
	ErrWorkerNotFound = errors.New("worker not found")
)

// Registry holds named workers. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]Worker)}
}

// Add registers w under its name.
func (r *Registry) Add(w Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[w.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrWorkerExists, w.Name())
	}
	r.workers[w.Name()] = w
	logging.Debug("Worker", "Registered worker %s", w.Name())
	return nil
}

// Get returns the worker registered under name.
func (r *Registry) Get(name string) (Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkerNotFound, name)
	}
	return w, nil
}

// Names returns the registered worker names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StopAll stops and removes every worker, returning the joined errors.
func (r *Registry) StopAll() error {
	r.mu.Lock()
	workers := r.workers
	r.workers = make(map[string]Worker)
	r.mu.Unlock()

	var errs []error
	for name, w := range workers {
		if err := w.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping worker %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
