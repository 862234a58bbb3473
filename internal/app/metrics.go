package app

import (
	"net/http"
	"time"

	"heimdall/internal/notify"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus instrumentation for sweeps and deliveries.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	hostChecks    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	activeAlerts  prometheus.Gauge
	subscribers   *prometheus.GaugeVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "heimdall",
				Name:      "sweeps_total",
				Help:      "Completed sweeps partitioned by result.",
			},
			[]string{"result"},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "heimdall",
				Name:      "sweep_duration_seconds",
				Help:      "Wall time of one sweep over every host.",
				Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
			},
		),
		hostChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "heimdall",
				Name:      "host_checks_total",
				Help:      "Host checks partitioned by result.",
			},
			[]string{"result"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "heimdall",
				Name:      "notifications_total",
				Help:      "Notification deliveries partitioned by channel and result.",
			},
			[]string{"channel", "result"},
		),
		activeAlerts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "heimdall",
				Name:      "active_alerts",
				Help:      "Alerts currently in the active partition.",
			},
		),
		subscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "heimdall",
				Name:      "subscribers",
				Help:      "Telegram subscribers partitioned by approval state.",
			},
			[]string{"state"},
		),
	}
	m.registry.MustRegister(
		m.sweeps,
		m.sweepDuration,
		m.hostChecks,
		m.notifications,
		m.activeAlerts,
		m.subscribers,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSweep records one sweep outcome.
func (m *Metrics) ObserveSweep(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(result).Inc()
	m.sweepDuration.Observe(duration.Seconds())
}

// ObserveHost records one host check outcome.
func (m *Metrics) ObserveHost(result string) {
	if m == nil {
		return
	}
	m.hostChecks.WithLabelValues(result).Inc()
}

// ObserveDelivery records per-channel delivery outcomes.
func (m *Metrics) ObserveDelivery(result notify.DeliveryResult) {
	if m == nil {
		return
	}
	for channel, err := range result.Outcomes {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		m.notifications.WithLabelValues(channel, outcome).Inc()
	}
}

// SetActiveAlerts publishes the active partition size.
func (m *Metrics) SetActiveAlerts(count int) {
	if m == nil {
		return
	}
	m.activeAlerts.Set(float64(count))
}

// SetSubscribers publishes subscriber counts.
func (m *Metrics) SetSubscribers(total, approved int) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues("approved").Set(float64(approved))
	m.subscribers.WithLabelValues("pending").Set(float64(total - approved))
}
