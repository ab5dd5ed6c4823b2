package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFactoryNotFound is matched by every *FactoryNotFoundError
	ErrFactoryNotFound = errors.New("factory not found")

	// ErrDuplicateType indicates a constructor is already registered for a type
	ErrDuplicateType = errors.New("service type already registered")

	// ErrDuplicateID indicates another live service has the same id
	ErrDuplicateID = errors.New("service id already registered")

	// ErrServiceNotFound indicates no registered service has the requested id
	ErrServiceNotFound = errors.New("service not found")

	// ErrAccessMismatch indicates a key was declared before with another access
	ErrAccessMismatch = errors.New("object key registered with another access")

	// ErrUnknownKey indicates an object key was never declared
	ErrUnknownKey = errors.New("unknown object key")

	// ErrNotOwned indicates a service is not tracked by a HasServices owner
	ErrNotOwned = errors.New("service not registered with this owner")

	// ErrLeakedServices is matched by every *LeakedServicesError
	ErrLeakedServices = errors.New("leaked services")

	// ErrReconfigureUnsupported indicates a started service can't be reconfigured
	ErrReconfigureUnsupported = errors.New("service does not support reconfiguration")
)

// FactoryNotFoundError reports an unknown implementation type.
type FactoryNotFoundError struct {
	Type Type
}

func (e *FactoryNotFoundError) Error() string {
	return fmt.Sprintf("factory not found for service type %q", e.Type)
}

// Is makes errors.Is(err, ErrFactoryNotFound) hold.
func (e *FactoryNotFoundError) Is(target error) bool {
	return target == ErrFactoryNotFound
}

// LeakedServicesError lists the children still registered when an owner closes.
type LeakedServicesError struct {
	IDs []string
}

func (e *LeakedServicesError) Error() string {
	return fmt.Sprintf("%d leaked services: %s", len(e.IDs), strings.Join(e.IDs, ", "))
}

// Is makes errors.Is(err, ErrLeakedServices) hold.
func (e *LeakedServicesError) Is(target error) bool {
	return target == ErrLeakedServices
}
