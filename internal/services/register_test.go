package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sight/internal/service"
	"sight/internal/services/composite"
	"sight/internal/services/copier"
	"sight/internal/services/counter"
	"sight/internal/services/echo"
)

func TestRegister(t *testing.T) {
	f := NewFactory()
	assert.Equal(t, []service.Type{composite.Type, copier.Type, counter.Type, echo.Type}, f.Types())

	err := Register(f)
	assert.ErrorIs(t, err, service.ErrDuplicateType)
}
