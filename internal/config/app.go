package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidAppDefinition is matched by every *ValidationError.
var ErrInvalidAppDefinition = errors.New("invalid application definition")

// ValidationError lists every problem found in an application definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidAppDefinition, strings.Join(e.Problems, "; "))
}

// Is makes errors.Is(err, ErrInvalidAppDefinition) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidAppDefinition
}

// LoadAppDefinition reads and validates an application definition file.
func LoadAppDefinition(path string) (*AppDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading application definition %s: %w", path, err)
	}
	def, err := ParseAppDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ParseAppDefinition decodes and validates an application definition.
// Unknown fields are rejected.
func ParseAppDefinition(data []byte) (*AppDefinition, error) {
	var def AppDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decoding application definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// SplitEndpoint splits a "serviceID/key" endpoint.
func SplitEndpoint(endpoint string) (serviceID, key string, err error) {
	serviceID, key, ok := strings.Cut(endpoint, "/")
	if !ok || serviceID == "" || key == "" || strings.Contains(key, "/") {
		return "", "", fmt.Errorf("malformed endpoint %q, expected service/key", endpoint)
	}
	return serviceID, key, nil
}

func validAccess(access string) bool {
	switch access {
	case AccessIn, AccessInOut, AccessOut:
		return true
	}
	return false
}

// Validate checks the definition and reports every problem at once.
func (d *AppDefinition) Validate() error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(d.Services) == 0 {
		addf("no services defined")
	}

	workers := make(map[string]bool)
	for i, w := range d.Workers {
		switch {
		case w.Name == "":
			addf("workers[%d]: name is required", i)
		case workers[w.Name]:
			addf("duplicate worker %q", w.Name)
		}
		workers[w.Name] = true
		if w.Kind != "" && w.Kind != WorkerKindLoop && w.Kind != WorkerKindPool {
			addf("worker %q: unknown kind %q", w.Name, w.Kind)
		}
		if w.Size < 0 || w.QueueSize < 0 {
			addf("worker %q: sizes must not be negative", w.Name)
		}
	}

	objects := make(map[string]bool)
	for i, o := range d.Objects {
		switch {
		case o.ID == "":
			addf("objects[%d]: id is required", i)
		case objects[o.ID]:
			addf("duplicate object %q", o.ID)
		}
		objects[o.ID] = true
		if o.Type == "" {
			addf("object %q: type is required", o.ID)
		}
	}

	// Outputs publish objects under their binding id; inputs may consume them.
	outputs := make(map[string]string)
	for _, s := range d.Services {
		for _, b := range s.Objects {
			if b.Access != AccessOut || b.ID == "" {
				continue
			}
			if objects[b.ID] {
				addf("service %q: output %q reuses the id of a declared object", s.ID, b.ID)
			}
			if owner, taken := outputs[b.ID]; taken {
				addf("service %q: output %q is already produced by %q", s.ID, b.ID, owner)
			}
			outputs[b.ID] = s.ID
		}
	}

	services := make(map[string]bool)
	for i, s := range d.Services {
		switch {
		case s.ID == "":
			addf("services[%d]: id is required", i)
		case services[s.ID]:
			addf("duplicate service %q", s.ID)
		}
		services[s.ID] = true
		if s.Type == "" {
			addf("service %q: type is required", s.ID)
		}
		if s.Worker != "" && !workers[s.Worker] {
			addf("service %q: unknown worker %q", s.ID, s.Worker)
		}

		groups := make(map[string]GroupDefinition)
		for _, g := range s.Groups {
			if g.Key == "" {
				addf("service %q: group key is required", s.ID)
				continue
			}
			if _, dup := groups[g.Key]; dup {
				addf("service %q: duplicate group %q", s.ID, g.Key)
			}
			groups[g.Key] = g
			if !validAccess(g.Access) {
				addf("service %q: group %q has unknown access %q", s.ID, g.Key, g.Access)
			}
			if g.Max <= 0 {
				addf("service %q: group %q max must be positive", s.ID, g.Key)
			}
			if g.Min < 0 || g.Min > g.Max {
				addf("service %q: group %q needs 0 <= min <= max", s.ID, g.Key)
			}
		}

		keys := make(map[string]bool)
		for _, b := range s.Objects {
			if b.Key == "" {
				addf("service %q: object key is required", s.ID)
				continue
			}
			if !validAccess(b.Access) {
				addf("service %q: key %q has unknown access %q", s.ID, b.Key, b.Access)
			}

			slot := b.Key
			if b.Index != nil {
				g, ok := groups[b.Key]
				switch {
				case !ok:
					addf("service %q: key %q has an index but no group", s.ID, b.Key)
				case *b.Index < 0 || *b.Index >= g.Max:
					addf("service %q: index %d out of range for group %q", s.ID, *b.Index, b.Key)
				case g.Access != b.Access:
					addf("service %q: key %q access %q differs from its group", s.ID, b.Key, b.Access)
				}
				slot = fmt.Sprintf("%s#%d", b.Key, *b.Index)
			}
			if keys[slot] {
				addf("service %q: key %q bound twice", s.ID, slot)
			}
			keys[slot] = true

			if b.ID == "" {
				addf("service %q: key %q needs an object id", s.ID, slot)
				continue
			}
			if b.Access != AccessOut && !objects[b.ID] && outputs[b.ID] == "" {
				addf("service %q: key %q references unknown object %q", s.ID, slot, b.ID)
			}
		}
	}

	for i, c := range d.Connections {
		if c.Channel == "" {
			addf("connections[%d]: channel is required", i)
		}
		for _, endpoint := range append(append([]string{}, c.Signals...), c.Slots...) {
			svc, _, err := SplitEndpoint(endpoint)
			if err != nil {
				addf("connection %q: %v", c.Channel, err)
				continue
			}
			if !services[svc] {
				addf("connection %q: unknown service %q", c.Channel, svc)
			}
		}
	}

	for _, id := range d.Start {
		if !services[id] {
			addf("start: unknown service %q", id)
		}
	}
	for _, id := range d.Update {
		if !services[id] {
			addf("update: unknown service %q", id)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
