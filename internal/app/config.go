package app

import (
	"time"

	"sight/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Application definition file
	AppPath string

	// Debug settings
	Debug bool

	// Once starts the application, updates it a single time and stops it
	Once bool

	// Interval between periodic updates; zero disables them
	UpdateInterval time.Duration

	// Address of the Prometheus endpoint; empty disables it
	MetricsAddress string

	// Process settings; loaded from the layered configuration when nil
	SightConfig *config.SightConfig
}

// NewConfig creates a new application configuration
func NewConfig(appPath string, debug bool) *Config {
	return &Config{
		AppPath: appPath,
		Debug:   debug,
	}
}
