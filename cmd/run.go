package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sight/internal/app"
	"sight/internal/services"
)

type runOptions struct {
	debug          bool
	once           bool
	updateInterval time.Duration
	metricsAddress string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <app.yaml>",
		Short: "Run an application until interrupted",
		Long: `Builds the application described by the given definition, starts its
services and keeps them running until the process receives an interrupt.

Services whose required objects are not available yet are deferred and
started as soon as another service publishes the missing objects.

With --update-interval the services listed under 'update' are updated
periodically. With --once the application is started, updated a single
time and stopped, which is useful for scripting and CI.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApplication(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.once, "once", false, "Start, update once and stop")
	cmd.Flags().DurationVar(&opts.updateInterval, "update-interval", 0, "Interval between updates (0 disables periodic updates)")
	cmd.Flags().StringVar(&opts.metricsAddress, "metrics-address", "", "Address of the Prometheus endpoint, e.g. :9090")
	return cmd
}

func runApplication(cmd *cobra.Command, path string, opts *runOptions) error {
	cfg := app.NewConfig(path, opts.debug)
	cfg.Once = opts.once
	cfg.UpdateInterval = opts.updateInterval
	cfg.MetricsAddress = opts.metricsAddress

	application, err := app.NewApplication(cfg, services.NewFactory())
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}
