package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sight/internal/app"
	"sight/internal/control"
	"sight/internal/services"
	"sight/pkg/logging"
)

func newServeCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve <app.yaml>",
		Short: "Run an application controlled over MCP on stdio",
		Long: `Builds and starts the application, then serves the Model Context Protocol
on stdin and stdout so an AI assistant can list, start, stop and update its
services and change its objects. Logs are written to stderr.

The application is stopped when the client closes the connection.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return serveApplication(ctx, app.NewConfig(args[0], debug))
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

func serveApplication(ctx context.Context, cfg *app.Config) (err error) {
	application, err := app.NewApplication(cfg, services.NewFactory())
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	manager := application.Manager()
	if err := manager.Build(); err != nil {
		return err
	}
	if err := manager.Start(ctx); err != nil {
		return errors.Join(err, manager.Stop(context.WithoutCancel(ctx)))
	}
	defer func() {
		if stopErr := manager.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			logging.Error("Serve", stopErr, "Failed to stop application")
			if err == nil {
				err = stopErr
			}
		}
	}()

	return control.ServeStdio(control.NewServer(manager, rootCmd.Version))
}
