package data

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"sight/internal/signal"
	"sight/pkg/logging"
)

// Registry signal keys.
const (
	// SignalAdded is emitted with the *Object after it is registered.
	SignalAdded = "added"
	// SignalRemoved is emitted with the *Object after it is removed.
	SignalRemoved = "removed"
)

var (
	// ErrObjectExists indicates an id is already registered to another object
	ErrObjectExists = errors.New("object already registered")

	// ErrObjectNotFound indicates no object has the requested id
	ErrObjectNotFound = errors.New("object not found")
)

type outputKey struct {
	serviceID string
	key       string
}

// Registry maps object ids to objects. It holds strong references, so an
// object stays alive as long as it is registered.
type Registry struct {
	mu      sync.RWMutex
	objects map[string]*Object
	outputs map[outputKey]*Object

	signals *signal.Signals
}

// NewRegistry creates an empty object registry.
func NewRegistry() *Registry {
	r := &Registry{
		objects: make(map[string]*Object),
		outputs: make(map[outputKey]*Object),
		signals: signal.NewSignals(),
	}
	r.signals.Add(signal.New(SignalAdded))
	r.signals.Add(signal.New(SignalRemoved))
	return r
}

// Signal returns the registry signal for key (added or removed).
func (r *Registry) Signal(key string) *signal.Signal {
	return r.signals.Get(key)
}

// Add registers obj under its id. Adding the same object twice is a no-op.
func (r *Registry) Add(obj *Object) error {
	r.mu.Lock()
	if existing, ok := r.objects[obj.ID()]; ok {
		r.mu.Unlock()
		if existing == obj {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrObjectExists, obj.ID())
	}
	r.objects[obj.ID()] = obj
	r.mu.Unlock()

	logging.Debug("Data", "Registered object %s of type %s", obj.ID(), obj.Type())
	r.signals.Get(SignalAdded).Emit(obj)
	return nil
}

// Get returns the object registered under id.
func (r *Registry) Get(id string) (*Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return obj, nil
}

// Remove unregisters id and returns the removed object.
func (r *Registry) Remove(id string) (*Object, error) {
	r.mu.Lock()
	obj, ok := r.objects[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	delete(r.objects, id)
	r.mu.Unlock()

	logging.Debug("Data", "Removed object %s", id)
	r.signals.Get(SignalRemoved).Emit(obj)
	return obj, nil
}

// Objects returns the registered objects ordered by id.
func (r *Registry) Objects() []*Object {
	r.mu.RLock()
	objs := make([]*Object, 0, len(r.objects))
	for _, o := range r.objects {
		objs = append(objs, o)
	}
	r.mu.RUnlock()

	sort.Slice(objs, func(i, j int) bool { return objs[i].ID() < objs[j].ID() })
	return objs
}

// Len returns the number of registered objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// Publish records obj as output key of a service and registers it. A
// previous output under the same key is withdrawn first.
func (r *Registry) Publish(serviceID, key string, obj *Object) error {
	k := outputKey{serviceID: serviceID, key: key}

	r.mu.Lock()
	previous := r.outputs[k]
	r.mu.Unlock()

	if previous == obj {
		return nil
	}
	if previous != nil {
		r.Withdraw(serviceID, key)
	}

	if err := r.Add(obj); err != nil {
		return fmt.Errorf("publishing %s/%s: %w", serviceID, key, err)
	}

	r.mu.Lock()
	r.outputs[k] = obj
	r.mu.Unlock()
	return nil
}

// Withdraw removes the output recorded for serviceID/key, if any.
func (r *Registry) Withdraw(serviceID, key string) {
	k := outputKey{serviceID: serviceID, key: key}

	r.mu.Lock()
	obj := r.outputs[k]
	delete(r.outputs, k)
	registered := obj != nil && r.objects[obj.ID()] == obj
	r.mu.Unlock()

	if registered {
		if _, err := r.Remove(obj.ID()); err != nil {
			logging.Warn("Data", "Withdrawing %s/%s: %v", serviceID, key, err)
		}
	}
}

// Output returns the object published by serviceID under key.
func (r *Registry) Output(serviceID, key string) (*Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.outputs[outputKey{serviceID: serviceID, key: key}]
	return obj, ok
}
