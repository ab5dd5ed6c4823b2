package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sight/internal/metric"
)

const metricsComponent = "service"

type serviceMetrics struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	services    prometheus.Gauge
}

func newServiceMetrics(reg *metric.MetricsRegistry) (*serviceMetrics, error) {
	transitions, err := metric.RegisterOrExisting(reg, metricsComponent, "transitions_total",
		prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sight_service_transitions_total",
			Help: "Lifecycle transitions by service type, operation and result",
		}, []string{"type", "op", "result"}))
	if err != nil {
		return nil, err
	}

	duration, err := metric.RegisterOrExisting(reg, metricsComponent, "transition_duration_seconds",
		prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sight_service_transition_duration_seconds",
			Help:    "Time spent in lifecycle hooks",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}))
	if err != nil {
		return nil, err
	}

	services, err := metric.RegisterOrExisting(reg, metricsComponent, "registry_services",
		prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sight_registry_services",
			Help: "Services currently registered",
		}))
	if err != nil {
		return nil, err
	}

	return &serviceMetrics{transitions: transitions, duration: duration, services: services}, nil
}

func (m *serviceMetrics) observe(typ Type, op string, begin time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transitions.WithLabelValues(string(typ), op, result).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(begin).Seconds())
}

func (m *serviceMetrics) setServices(n int) {
	if m == nil {
		return
	}
	m.services.Set(float64(n))
}
