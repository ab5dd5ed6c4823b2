package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sight/internal/config"
	"sight/internal/services"
	"sight/pkg/logging"
)

const tickerApp = `
name: ticker
workers:
  - name: main
objects:
  - id: count
    type: int
    value: 0
services:
  - id: counter
    type: sight::module::Counter
    objects:
      - key: value
        id: count
        access: inout
update: [counter]
`

func newTestApplication(t *testing.T, app string, configure func(*Config)) *Application {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(app), 0o600))

	sightCfg := config.GetDefaultConfig()
	sightCfg.GlobalSettings.DefaultWorker = "main"
	cfg := NewConfig(path, false)
	cfg.SightConfig = &sightCfg
	if configure != nil {
		configure(cfg)
	}

	a, err := NewApplication(cfg, services.NewFactory())
	require.NoError(t, err)
	return a
}

func TestNewApplication(t *testing.T) {
	a := newTestApplication(t, tickerApp, nil)

	assert.Equal(t, "ticker", a.Manager().Definition().Name)
	assert.NotNil(t, a.Metrics())

	_, err := NewApplication(NewConfig(filepath.Join(t.TempDir(), "missing.yaml"), false), services.NewFactory())
	assert.Error(t, err)
}

func TestApplication_RunOnce(t *testing.T) {
	a := newTestApplication(t, tickerApp, func(cfg *Config) { cfg.Once = true })

	entries := logging.Capture(logging.LevelInfo, 64)
	defer logging.StopCapture()

	require.NoError(t, a.Run(context.Background()))
	assert.Zero(t, a.Manager().Registry().Len())
	assert.Empty(t, a.Manager().Workers().Names())

	var messages []string
	for len(entries) > 0 {
		messages = append(messages, (<-entries).Message)
	}
	assert.Contains(t, messages, "Built application ticker: 1 services, 1 objects, 1 workers")
	assert.Contains(t, messages, "Stopping application ticker")
}

func TestApplication_RunUntilCancelled(t *testing.T) {
	a := newTestApplication(t, tickerApp, func(cfg *Config) {
		cfg.UpdateInterval = 5 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	assert.Eventually(t, func() bool {
		obj, err := a.Manager().Objects().Get("count")
		if err != nil {
			return false
		}
		n, _ := obj.Get().(int)
		return n >= 3
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}
	assert.Zero(t, a.Manager().Registry().Len())
}
