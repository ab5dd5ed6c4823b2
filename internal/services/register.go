package services

import (
	"errors"

	"sight/internal/service"
	"sight/internal/services/composite"
	"sight/internal/services/copier"
	"sight/internal/services/counter"
	"sight/internal/services/echo"
)

// Register adds every built-in implementation to f.
func Register(f *service.Factory) error {
	return errors.Join(
		f.Register(echo.Type, echo.New),
		f.Register(counter.Type, counter.New),
		f.Register(copier.Type, copier.New),
		f.Register(composite.Type, composite.New),
	)
}

// NewFactory returns a factory with every built-in implementation.
func NewFactory() *service.Factory {
	f := service.NewFactory()
	if err := Register(f); err != nil {
		panic(err)
	}
	return f
}
