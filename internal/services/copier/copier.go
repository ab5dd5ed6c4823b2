// Package copier implements sight::module::Copier.
package copier

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sight/internal/config"
	"sight/internal/data"
	"sight/internal/service"
	"sight/pkg/logging"
)

// Type is the implementation type of the copier service.
const Type service.Type = "sight::module::Copier"

// Object keys.
const (
	KeySources = "sources"
	KeyTarget  = "target"
)

// Group bounds used when the configuration sets none.
const (
	DefaultMinSources = 1
	DefaultMaxSources = 8
)

// Service joins the values of its source group into its target.
type Service struct {
	service.BaseImpl
	base *service.Service

	mu        sync.RWMutex
	separator string
}

// New declares the target output on base. The source group is declared on
// configuration.
func New(base *service.Service) (service.Impl, error) {
	s := &Service{base: base}
	if err := base.RegisterObject(KeyTarget, service.AccessOutput); err != nil {
		return nil, err
	}
	return s, nil
}

// Configuring declares the source group with min and max from cfg and
// reads the separator.
func (s *Service) Configuring(cfg *config.Tree) error {
	minCount := cfg.Int("min", DefaultMinSources)
	maxCount := cfg.Int("max", DefaultMaxSources)
	if err := s.base.RegisterObjectGroup(KeySources, service.AccessInput, minCount, maxCount, service.AutoConnect()); err != nil {
		return err
	}

	s.mu.Lock()
	s.separator = cfg.String("separator", "")
	s.mu.Unlock()
	return nil
}

// Reconfiguring applies new bounds while started.
func (s *Service) Reconfiguring(cfg *config.Tree) error {
	return s.Configuring(cfg)
}

// Starting refuses to run with missing sources.
func (s *Service) Starting(context.Context) error {
	if missing := s.base.MissingObjects(); len(missing) > 0 {
		return fmt.Errorf("missing sources: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Updating writes the joined source values into the target.
func (s *Service) Updating(context.Context) error {
	s.mu.RLock()
	sep := s.separator
	s.mu.RUnlock()

	_, maxCount, _ := s.base.GroupBounds(KeySources)
	var parts []string
	for i := 0; i < maxCount; i++ {
		if src := s.base.InputAt(KeySources, i); src != nil {
			parts = append(parts, fmt.Sprint(src.Get()))
		}
	}
	joined := strings.Join(parts, sep)

	target := s.base.Output(KeyTarget)
	if target == nil {
		target = data.NewObject(s.base.OutputID(KeyTarget), "string", joined)
		return s.base.RegisterOutput(KeyTarget, target)
	}
	target.Set(joined)
	return nil
}

// Swapping copies again with the swapped source.
func (s *Service) Swapping(ctx context.Context, key string) error {
	logging.Debug("Copier", "%s copying from %s after swap of %s", s.base.ID(), s.base.ObjectID(key), key)
	return s.Updating(ctx)
}

// AutoConnections copies again whenever a source changes.
func (s *Service) AutoConnections() service.KeyConnectionsMap {
	m := service.NewKeyConnectionsMap()
	m.Push(KeySources, data.SignalModified, service.SlotUpdate)
	return m
}
