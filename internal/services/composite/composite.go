// Package composite implements sight::module::Composite, a service owning
// child services.
package composite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"sight/internal/config"
	"sight/internal/service"
	"sight/pkg/logging"
)

// Type is the implementation type of the composite service.
const Type service.Type = "sight::module::Composite"

// ChildDefinition describes one child in the composite configuration:
//
//	children:
//	  - type: sight::module::Echo
//	    id: greeter
//	    config:
//	      message: hello
type ChildDefinition struct {
	Type   string    `yaml:"type"`
	ID     string    `yaml:"id,omitempty"`
	Config yaml.Node `yaml:"config,omitempty"`
}

// Service spawns its children on start, forwards updates to them and
// unregisters them on stop.
type Service struct {
	service.BaseImpl
	base *service.Service

	mu       sync.RWMutex
	children []ChildDefinition
	owner    *service.HasServices
}

// New builds a composite. The service must live in a registry.
func New(base *service.Service) (service.Impl, error) {
	if base.Registry() == nil {
		return nil, errors.New("composite services need a registry")
	}
	return &Service{base: base, owner: service.NewHasServices(base.Registry())}, nil
}

// Configuring reads the child list.
func (s *Service) Configuring(cfg *config.Tree) error {
	var parsed struct {
		Children []ChildDefinition `yaml:"children"`
	}
	if err := cfg.Decode(&parsed); err != nil {
		return fmt.Errorf("decoding children: %w", err)
	}
	for i, c := range parsed.Children {
		if c.Type == "" {
			return fmt.Errorf("children[%d]: type is required", i)
		}
	}

	s.mu.Lock()
	s.children = parsed.Children
	s.mu.Unlock()
	return nil
}

// Starting registers and starts every child on the composite's worker.
// Children started before a failure are torn down again.
func (s *Service) Starting(ctx context.Context) error {
	s.mu.RLock()
	children := append([]ChildDefinition(nil), s.children...)
	s.mu.RUnlock()

	for i, c := range children {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("%s.child%d", s.base.ID(), i)
		}
		child, err := s.owner.RegisterService(service.Type(c.Type), id)
		if err != nil {
			return errors.Join(err, s.owner.UnregisterServices(ctx, ""))
		}
		child.SetWorker(s.base.Worker())
		child.SetConfig(config.TreeFromNode(&c.Config))
		if err := child.Start(ctx).WaitContext(ctx); err != nil {
			return errors.Join(err, s.owner.UnregisterServices(ctx, ""))
		}
		logging.Debug("Composite", "%s started child %s (%s)", s.base.ID(), id, c.Type)
	}
	return nil
}

// Updating updates every child in order.
func (s *Service) Updating(ctx context.Context) error {
	var errs []error
	for _, child := range s.owner.RegisteredServices() {
		if err := child.Update(ctx).WaitContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stopping stops and unregisters every child.
func (s *Service) Stopping(ctx context.Context) error {
	if err := s.owner.UnregisterServices(ctx, ""); err != nil {
		return err
	}
	return s.owner.Close()
}

// Children returns the live children.
func (s *Service) Children() []*service.Service {
	return s.owner.RegisteredServices()
}

// Info implements service.Informer.
func (s *Service) Info(w io.Writer) {
	for _, child := range s.owner.RegisteredServices() {
		fmt.Fprintf(w, "  child %s (%s): %s\n", child.ID(), child.Type(), child.GlobalStatus())
	}
}
