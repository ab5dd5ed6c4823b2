package config

import "gopkg.in/yaml.v3"

// SightConfig is the top-level configuration structure for the sight process.
type SightConfig struct {
	GlobalSettings GlobalSettings     `yaml:"globalSettings"`
	Workers        []WorkerDefinition `yaml:"workers,omitempty"`
}

// GlobalSettings holds process-wide settings.
type GlobalSettings struct {
	LogLevel       string `yaml:"logLevel,omitempty"`       // debug, info, warn, error
	LogFormat      string `yaml:"logFormat,omitempty"`      // text or json
	MetricsAddress string `yaml:"metricsAddress,omitempty"` // empty disables the Prometheus endpoint
	DefaultWorker  string `yaml:"defaultWorker,omitempty"`  // worker for services that don't name one
}

// WorkerKind selects the executor implementation.
type WorkerKind string

const (
	// WorkerKindLoop is a single goroutine running tasks in order.
	WorkerKindLoop WorkerKind = "loop"
	// WorkerKindPool is a fixed set of goroutines over a bounded queue.
	WorkerKindPool WorkerKind = "pool"
)

// WorkerDefinition declares a named worker.
type WorkerDefinition struct {
	Name      string     `yaml:"name"`
	Kind      WorkerKind `yaml:"kind,omitempty"`
	Size      int        `yaml:"size,omitempty"`      // pool goroutines
	QueueSize int        `yaml:"queueSize,omitempty"` // pool queue capacity
}

// Object access modes as written in application definitions.
const (
	AccessIn    = "in"
	AccessInOut = "inout"
	AccessOut   = "out"
)

// AppDefinition describes one application.
type AppDefinition struct {
	Name        string                 `yaml:"name"`
	Workers     []WorkerDefinition     `yaml:"workers,omitempty"`
	Objects     []ObjectDefinition     `yaml:"objects,omitempty"`
	Services    []ServiceDefinition    `yaml:"services"`
	Connections []ConnectionDefinition `yaml:"connections,omitempty"`
	Start       []string               `yaml:"start,omitempty"`  // explicit start order
	Update      []string               `yaml:"update,omitempty"` // services updated after start
}

// ObjectDefinition declares a data object created when the application is built.
type ObjectDefinition struct {
	ID    string `yaml:"id"`
	Type  string `yaml:"type"`
	Value any    `yaml:"value,omitempty"`
}

// ServiceDefinition declares one service instance.
type ServiceDefinition struct {
	ID          string            `yaml:"id"`
	Type        string            `yaml:"type"`
	Worker      string            `yaml:"worker,omitempty"`
	AutoConnect bool              `yaml:"autoConnect,omitempty"`
	Objects     []ObjectBinding   `yaml:"objects,omitempty"`
	Groups      []GroupDefinition `yaml:"groups,omitempty"`
	Config      yaml.Node         `yaml:"config,omitempty"`
}

// ObjectBinding binds an object id to a service key.
type ObjectBinding struct {
	Key         string `yaml:"key"`
	ID          string `yaml:"id"`
	Access      string `yaml:"access"`
	AutoConnect bool   `yaml:"autoConnect,omitempty"`
	Optional    bool   `yaml:"optional,omitempty"`
	Index       *int   `yaml:"index,omitempty"` // member of the group named by Key
}

// GroupDefinition declares an object group on a service.
type GroupDefinition struct {
	Key         string `yaml:"key"`
	Access      string `yaml:"access"`
	Min         int    `yaml:"min,omitempty"`
	Max         int    `yaml:"max"`
	AutoConnect bool   `yaml:"autoConnect,omitempty"`
}

// ConnectionDefinition joins signals and slots through a named proxy channel.
// Endpoints are written "serviceID/key".
type ConnectionDefinition struct {
	Channel string   `yaml:"channel"`
	Signals []string `yaml:"signals,omitempty"`
	Slots   []string `yaml:"slots,omitempty"`
}

// ConfigTree returns the service's configuration subtree.
func (d *ServiceDefinition) ConfigTree() *Tree {
	return TreeFromNode(&d.Config)
}
