// Package metric wraps a Prometheus registry shared by the workers and the
// service registry. Components receive a *MetricsRegistry and register their
// collectors under a component name; a nil registry disables metrics.
package metric

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrDuplicateMetric is returned when the same component registers a metric name twice.
var ErrDuplicateMetric = errors.New("metric already registered")

// MetricsRegistry manages the registration of component metrics.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	registered         map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a registry preloaded with Go runtime and process collectors.
func NewMetricsRegistry() *MetricsRegistry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsRegistry{
		prometheusRegistry: reg,
		registered:         make(map[string]prometheus.Collector),
	}
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Register registers a collector for a component. Registering a second
// collector under an existing component/metric pair fails with
// ErrDuplicateMetric.
func (r *MetricsRegistry) Register(component, metricName string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, metricName)
	if _, exists := r.registered[key]; exists {
		return fmt.Errorf("%w: %s for %s", ErrDuplicateMetric, metricName, component)
	}

	if err := r.prometheusRegistry.Register(c); err != nil {
		return fmt.Errorf("registering %s for %s: %w", metricName, component, err)
	}

	r.registered[key] = c
	return nil
}

// Lookup returns a collector previously registered under component/metricName.
func (r *MetricsRegistry) Lookup(component, metricName string) (prometheus.Collector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.registered[fmt.Sprintf("%s.%s", component, metricName)]
	return c, ok
}

// Unregister removes a collector; it reports whether anything was removed.
func (r *MetricsRegistry) Unregister(component, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, metricName)
	c, ok := r.registered[key]
	if !ok {
		return false
	}
	delete(r.registered, key)
	return r.prometheusRegistry.Unregister(c)
}

// Handler returns an HTTP handler exposing the registry in the Prometheus text format.
func (r *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}

// RegisterOrExisting registers c and returns it, or returns the collector
// already registered under the same component/metric pair when c was
// registered earlier. It lets several instances share one vector.
func RegisterOrExisting[T prometheus.Collector](r *MetricsRegistry, component, metricName string, c T) (T, error) {
	if existing, ok := r.Lookup(component, metricName); ok {
		if typed, ok := existing.(T); ok {
			return typed, nil
		}
		var zero T
		return zero, fmt.Errorf("%w: %s for %s has a different type", ErrDuplicateMetric, metricName, component)
	}
	if err := r.Register(component, metricName, c); err != nil {
		var zero T
		return zero, err
	}
	return c, nil
}
