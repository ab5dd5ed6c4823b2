package app

import (
	"context"
	"fmt"
	"os"

	"sight/internal/config"
	"sight/internal/metric"
	"sight/internal/service"
	"sight/pkg/logging"
)

// Application is the main application structure that bootstraps and runs sight
type Application struct {
	config  *Config
	metrics *metric.MetricsRegistry
	manager *Manager
}

// NewApplication loads the process settings and the application definition
// and prepares a manager for it. Services are created by factory.
func NewApplication(cfg *Config, factory *service.Factory) (*Application, error) {
	if cfg.SightConfig == nil {
		sightCfg, err := config.LoadConfig()
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load sight configuration")
			return nil, fmt.Errorf("failed to load sight configuration: %w", err)
		}
		cfg.SightConfig = &sightCfg
	}
	settings := cfg.SightConfig.GlobalSettings

	initLogging(cfg.Debug, settings)

	def, err := config.LoadAppDefinition(cfg.AppPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load application %s", cfg.AppPath)
		return nil, err
	}
	def.Workers = config.MergeWorkers(cfg.SightConfig.Workers, def.Workers)
	logging.Info("Bootstrap", "Loaded application %s from %s", def.Name, cfg.AppPath)

	if cfg.MetricsAddress == "" {
		cfg.MetricsAddress = settings.MetricsAddress
	}

	metrics := metric.NewMetricsRegistry()
	manager := NewManager(def, factory,
		WithMetricsRegistry(metrics),
		WithDefaultWorker(settings.DefaultWorker),
	)

	return &Application{
		config:  cfg,
		metrics: metrics,
		manager: manager,
	}, nil
}

func initLogging(debug bool, settings config.GlobalSettings) {
	level := logging.LevelInfo
	if settings.LogLevel != "" {
		parsed, err := logging.ParseLevel(settings.LogLevel)
		if err != nil {
			logging.Warn("Bootstrap", "Ignoring log level: %v", err)
		} else {
			level = parsed
		}
	}
	if debug {
		level = logging.LevelDebug
	}

	format := logging.FormatText
	if settings.LogFormat == string(logging.FormatJSON) {
		format = logging.FormatJSON
	}
	logging.Init(level, format, os.Stderr)
}

// Manager returns the application manager.
func (a *Application) Manager() *Manager {
	return a.manager
}

// Metrics returns the metrics registry of the application.
func (a *Application) Metrics() *metric.MetricsRegistry {
	return a.metrics
}

// Run executes the application in the appropriate mode
func (a *Application) Run(ctx context.Context) error {
	if a.config.Once {
		return runOnceMode(ctx, a)
	}
	return runCLIMode(ctx, a)
}
