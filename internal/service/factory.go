package service

import (
	"fmt"
	"sort"
	"sync"
)

// Type identifies a service implementation, e.g. "sight::module::Echo".
type Type string

// Constructor builds the implementation of a new service. It declares the
// service objects, signals and slots on base.
type Constructor func(base *Service) (Impl, error)

// Factory maps implementation types to constructors.
type Factory struct {
	mu    sync.RWMutex
	ctors map[Type]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{ctors: make(map[Type]Constructor)}
}

// Register adds the constructor of typ.
func (f *Factory) Register(typ Type, ctor Constructor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.ctors[typ]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, typ)
	}
	f.ctors[typ] = ctor
	return nil
}

// MustRegister is Register panicking on duplicates. Meant for init-time tables.
func (f *Factory) MustRegister(typ Type, ctor Constructor) {
	if err := f.Register(typ, ctor); err != nil {
		panic(err)
	}
}

// Has reports whether typ is registered.
func (f *Factory) Has(typ Type) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ctors[typ]
	return ok
}

// Types returns the registered types, sorted.
func (f *Factory) Types() []Type {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]Type, 0, len(f.ctors))
	for t := range f.ctors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// New builds an unregistered service of type typ. An unknown type fails
// with a *FactoryNotFoundError.
func (f *Factory) New(typ Type, id string, registry *Registry) (*Service, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[typ]
	f.mu.RUnlock()
	if !ok {
		return nil, &FactoryNotFoundError{Type: typ}
	}

	s := newService(id, typ, registry)
	impl, err := ctor(s)
	if err != nil {
		return nil, fmt.Errorf("constructing %s (%s): %w", id, typ, err)
	}
	if impl == nil {
		return nil, fmt.Errorf("constructing %s (%s): constructor returned no implementation", id, typ)
	}
	s.impl = impl
	return s, nil
}
