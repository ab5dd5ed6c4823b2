package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sight/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

// runOnceMode builds and starts the application, updates it once and stops it.
func runOnceMode(ctx context.Context, a *Application) error {
	m := a.manager
	if err := m.Build(); err != nil {
		return err
	}
	if err := m.Start(ctx); err != nil {
		return errors.Join(err, m.Stop(context.Background()))
	}
	updateErr := m.Update(ctx)
	if updateErr != nil {
		logging.Error("CLI", updateErr, "Update failed")
	}
	return errors.Join(updateErr, m.Stop(ctx))
}

// runCLIMode runs the application until interrupted
func runCLIMode(ctx context.Context, a *Application) error {
	m := a.manager
	name := m.Definition().Name

	if err := m.Build(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := a.config.MetricsAddress; addr != "" {
		srv := &http.Server{Addr: addr, Handler: a.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("CLI", err, "Metrics endpoint on %s failed", addr)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logging.Info("CLI", "Serving metrics on %s/metrics", addr)
	}

	if err := m.Start(ctx); err != nil {
		logging.Error("CLI", err, "Failed to start application %s", name)
		return errors.Join(err, m.Stop(context.Background()))
	}
	logging.Info("CLI", "Application %s started. Press Ctrl+C to stop all services and exit.", name)

	var tick <-chan time.Time
	if a.config.UpdateInterval > 0 {
		ticker := time.NewTicker(a.config.UpdateInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-tick:
			if err := m.Update(ctx); err != nil {
				logging.Error("CLI", err, "Periodic update failed")
			}
		}
	}

	logging.Info("CLI", "--- Shutting down application %s ---", name)
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return m.Stop(stopCtx)
}
