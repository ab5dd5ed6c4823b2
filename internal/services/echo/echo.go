// Package echo implements sight::module::Echo.
package echo

import (
	"context"
	"fmt"
	"io"
	"sync"

	"sight/internal/config"
	"sight/internal/data"
	"sight/internal/service"
	"sight/pkg/logging"
)

// Type is the implementation type of the echo service.
const Type service.Type = "sight::module::Echo"

// Object keys and slots.
const (
	KeySource = "source"
	KeyEcho   = "echo"

	// SlotEcho replaces the message with its first argument and updates.
	SlotEcho = "echo"
)

// Service writes its message, or the value of its source, into its output.
type Service struct {
	service.BaseImpl
	base *service.Service

	mu      sync.RWMutex
	message string
	echoes  int
}

// New declares the echo keys on base.
func New(base *service.Service) (service.Impl, error) {
	s := &Service{base: base}
	if err := base.RegisterObject(KeySource, service.AccessInput, service.Optional(), service.AutoConnect()); err != nil {
		return nil, err
	}
	if err := base.RegisterObject(KeyEcho, service.AccessOutput); err != nil {
		return nil, err
	}
	base.NewSlot(SlotEcho, s.echo)
	return s, nil
}

// Configuring reads the message.
func (s *Service) Configuring(cfg *config.Tree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = cfg.String("message", "")
	return nil
}

// Updating publishes the source value, or the message without a source.
func (s *Service) Updating(context.Context) error {
	value := s.Message()
	if src := s.base.Input(KeySource); src != nil {
		value = fmt.Sprint(src.Get())
	}

	out := s.base.Output(KeyEcho)
	if out == nil {
		out = data.NewObject(s.base.OutputID(KeyEcho), "string", value)
		if err := s.base.RegisterOutput(KeyEcho, out); err != nil {
			return err
		}
	} else {
		out.Set(value)
	}

	s.mu.Lock()
	s.echoes++
	s.mu.Unlock()
	logging.Debug("Echo", "%s echoed %q", s.base.ID(), value)
	return nil
}

// AutoConnections updates the service whenever the source changes.
func (s *Service) AutoConnections() service.KeyConnectionsMap {
	m := service.NewKeyConnectionsMap()
	m.Push(KeySource, data.SignalModified, service.SlotUpdate)
	return m
}

func (s *Service) echo(ctx context.Context, args ...any) error {
	if len(args) > 0 {
		s.mu.Lock()
		s.message = fmt.Sprint(args[0])
		s.mu.Unlock()
	}
	return s.base.Update(ctx).Wait()
}

// Message returns the configured message.
func (s *Service) Message() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message
}

// Echoes returns the number of completed updates.
func (s *Service) Echoes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.echoes
}

// Info implements service.Informer.
func (s *Service) Info(w io.Writer) {
	fmt.Fprintf(w, "  message: %q, echoes: %d\n", s.Message(), s.Echoes())
}
