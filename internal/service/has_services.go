package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"weak"

	"sight/pkg/logging"
)

// HasServices lets an owner spawn child services and tear them down. It
// keeps weak references: the registry owns the children. Every child must
// be unregistered before the owner goes away; Close reports the ones that
// were not.
type HasServices struct {
	registry *Registry

	// never held across a child stop
	mu       sync.Mutex
	services []child
}

// child is a tracked entry. The id outlives the service for leak reports.
type child struct {
	id  string
	ref weak.Pointer[Service]
}

// NewHasServices creates an owner registering its children in registry.
func NewHasServices(registry *Registry) *HasServices {
	return &HasServices{registry: registry}
}

// Registry returns the registry children are created in.
func (h *HasServices) Registry() *Registry { return h.registry }

// RegisterService creates a child of type typ with id (generated when
// empty) and tracks it.
func (h *HasServices) RegisterService(typ Type, id string) (*Service, error) {
	svc, err := h.registry.Add(typ, id)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.services = append(h.services, child{id: svc.ID(), ref: weak.Make(svc)})
	h.mu.Unlock()
	return svc, nil
}

// RegisteredService returns the live child with id, or nil. Expired
// entries are skipped but kept.
func (h *HasServices) RegisteredService(id string) *Service {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.services {
		if svc := c.ref.Value(); svc != nil && svc.ID() == id {
			return svc
		}
	}
	return nil
}

// RegisteredServices returns the live children in registration order.
func (h *HasServices) RegisteredServices() []*Service {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Service, 0, len(h.services))
	for _, c := range h.services {
		if svc := c.ref.Value(); svc != nil {
			out = append(out, svc)
		}
	}
	return out
}

// Len returns the number of tracked entries, expired ones included.
func (h *HasServices) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.services)
}

// UnregisterService stops svc, waits until it is STOPPED, then removes it
// from the registry and from the owner. If the stop fails the child stays
// registered and the error is returned.
func (h *HasServices) UnregisterService(ctx context.Context, svc *Service) error {
	if svc == nil || !h.tracks(svc) {
		id := "<nil>"
		if svc != nil {
			id = svc.ID()
		}
		return fmt.Errorf("%w: %s", ErrNotOwned, id)
	}

	if err := svc.Stop(ctx).WaitContext(ctx); err != nil {
		logging.Error("HasServices", err, "Child %s did not stop; keeping it registered", svc.ID())
		return fmt.Errorf("unregistering service %s: %w", svc.ID(), err)
	}

	if err := h.registry.Unregister(svc); err != nil {
		logging.Warn("HasServices", "Child %s was already gone from the registry: %v", svc.ID(), err)
	}
	h.erase(svc)
	return nil
}

// UnregisterServiceByID is UnregisterService for the live child with id.
func (h *HasServices) UnregisterServiceByID(ctx context.Context, id string) error {
	svc := h.RegisteredService(id)
	if svc == nil {
		return fmt.Errorf("%w: %s", ErrNotOwned, id)
	}
	return h.UnregisterService(ctx, svc)
}

// UnregisterServices unregisters every live child of type typ, or every
// child when typ is empty. Expired entries are pruned. Errors are joined;
// children that failed to stop stay registered.
func (h *HasServices) UnregisterServices(ctx context.Context, typ Type) error {
	h.mu.Lock()
	var targets []*Service
	live := h.services[:0]
	for _, c := range h.services {
		svc := c.ref.Value()
		if svc == nil {
			continue
		}
		live = append(live, c)
		if typ == "" || svc.Type() == typ {
			targets = append(targets, svc)
		}
	}
	clear(h.services[len(live):])
	h.services = live
	h.mu.Unlock()

	var errs []error
	for _, svc := range targets {
		if err := h.UnregisterService(ctx, svc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close checks that no entry is left. Live children and expired entries
// that were never unregistered through the owner are both reported with a
// *LeakedServicesError; nothing is stopped.
func (h *HasServices) Close() error {
	h.mu.Lock()
	var leaked []string
	for _, c := range h.services {
		if c.ref.Value() == nil {
			leaked = append(leaked, c.id+" (expired)")
		} else {
			leaked = append(leaked, c.id)
		}
	}
	h.mu.Unlock()
	if len(leaked) > 0 {
		return &LeakedServicesError{IDs: leaked}
	}
	return nil
}

// MustClose is Close panicking on leaked children. A leak is a programming
// error in the owner.
func (h *HasServices) MustClose() {
	if err := h.Close(); err != nil {
		panic(err)
	}
}

func (h *HasServices) tracks(svc *Service) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.services {
		if c.ref.Value() == svc {
			return true
		}
	}
	return false
}

func (h *HasServices) erase(svc *Service) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, c := range h.services {
		if c.ref.Value() == svc {
			h.services = append(h.services[:i], h.services[i+1:]...)
			return
		}
	}
}
