// Package counter implements sight::module::Counter.
package counter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"sight/internal/config"
	"sight/internal/data"
	"sight/internal/service"
	"sight/pkg/logging"
)

// Type is the implementation type of the counter service.
const Type service.Type = "sight::module::Counter"

// Object keys, slots and signals.
const (
	KeyValue   = "value"
	KeyTrigger = "trigger"

	// SlotReset sets the value back to the configured start.
	SlotReset = "reset"

	// SignalCounted is emitted with the new value after every increment.
	SignalCounted = "counted"
)

// ErrNoValue is returned by an update without a live value object.
var ErrNoValue = errors.New("counter has no value object")

// Service increments the integer held by its value object.
type Service struct {
	service.BaseImpl
	base *service.Service

	mu    sync.RWMutex
	step  int
	start int
}

// New declares the counter keys, slot and signal on base.
func New(base *service.Service) (service.Impl, error) {
	s := &Service{base: base, step: 1}
	if err := base.RegisterObject(KeyValue, service.AccessInOut); err != nil {
		return nil, err
	}
	if err := base.RegisterObject(KeyTrigger, service.AccessInput, service.Optional(), service.AutoConnect()); err != nil {
		return nil, err
	}
	base.NewSlot(SlotReset, func(context.Context, ...any) error { return s.Reset() })
	base.NewSignal(SignalCounted)
	return s, nil
}

// Configuring reads step and start.
func (s *Service) Configuring(cfg *config.Tree) error {
	step := cfg.Int("step", 1)
	if step == 0 {
		return fmt.Errorf("step must not be zero")
	}
	s.mu.Lock()
	s.step = step
	s.start = cfg.Int("start", 0)
	s.mu.Unlock()
	return nil
}

// Reconfiguring accepts a new step while started.
func (s *Service) Reconfiguring(cfg *config.Tree) error {
	return s.Configuring(cfg)
}

// Updating adds step to the value.
func (s *Service) Updating(context.Context) error {
	obj := s.base.InOut(KeyValue)
	if obj == nil {
		return ErrNoValue
	}

	s.mu.RLock()
	step, start := s.step, s.start
	s.mu.RUnlock()

	next := obj.Update(func(old any) any {
		n, ok := old.(int)
		if !ok {
			n = start
		}
		return n + step
	})
	s.base.Signal(SignalCounted).Emit(next)
	return nil
}

// Swapping logs the new value object.
func (s *Service) Swapping(_ context.Context, key string) error {
	logging.Info("Counter", "%s now counts in %s", s.base.ID(), s.base.ObjectID(key))
	return nil
}

// Reset stores the start value.
func (s *Service) Reset() error {
	obj := s.base.InOut(KeyValue)
	if obj == nil {
		return ErrNoValue
	}
	s.mu.RLock()
	start := s.start
	s.mu.RUnlock()
	obj.Set(start)
	return nil
}

// AutoConnections updates the counter on every trigger change.
func (s *Service) AutoConnections() service.KeyConnectionsMap {
	m := service.NewKeyConnectionsMap()
	m.Push(KeyTrigger, data.SignalModified, service.SlotUpdate)
	return m
}

// Info implements service.Informer.
func (s *Service) Info(w io.Writer) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fmt.Fprintf(w, "  step: %d, start: %d\n", s.step, s.start)
}
