// Package metrics defines the prometheus collectors exported by the adapter.
//
// All Observe methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eplusfmu"

// Metrics contains all adapter-level metrics.
type Metrics struct {
	InstancesAllocated prometheus.Counter
	InstancesByPhase   *prometheus.GaugeVec
	Calls              *prometheus.CounterVec
	ExchangeDuration   *prometheus.HistogramVec
	Launches           *prometheus.CounterVec
}

// New creates the collectors; they are not registered anywhere yet.
func New() *Metrics {
	return &Metrics{
		InstancesAllocated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "instances_allocated_total",
				Help:      "Total number of slave instances allocated",
			},
		),

		InstancesByPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "instances",
				Help:      "Number of slave instances per lifecycle phase",
			},
			[]string{"phase"},
		),

		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "calls_total",
				Help:      "Total number of adapter calls by operation and returned status",
			},
			[]string{"op", "status"},
		),

		ExchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "channel",
				Name:      "exchange_duration_seconds",
				Help:      "Time spent sending to or waiting on the companion process",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"direction"},
		),

		Launches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "companion",
				Name:      "launches_total",
				Help:      "Companion process launches by result",
			},
			[]string{"result"},
		),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.InstancesAllocated,
		m.InstancesByPhase,
		m.Calls,
		m.ExchangeDuration,
		m.Launches,
	}
}

// Register registers all collectors, tolerating ones that are already registered.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAllocated counts a new instance entering phase.
func (m *Metrics) ObserveAllocated(phase string) {
	if m == nil {
		return
	}
	m.InstancesAllocated.Inc()
	m.InstancesByPhase.WithLabelValues(phase).Inc()
}

// ObservePhase moves one instance from one phase gauge to another.
func (m *Metrics) ObservePhase(from, to string) {
	if m == nil || from == to {
		return
	}
	m.InstancesByPhase.WithLabelValues(from).Dec()
	m.InstancesByPhase.WithLabelValues(to).Inc()
}

// ObserveCall counts one adapter call.
func (m *Metrics) ObserveCall(op, status string) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(op, status).Inc()
}

// ObserveExchange records the duration of one channel operation.
func (m *Metrics) ObserveExchange(direction string, d time.Duration) {
	if m == nil {
		return
	}
	m.ExchangeDuration.WithLabelValues(direction).Observe(d.Seconds())
}

// ObserveLaunch counts one companion launch attempt.
func (m *Metrics) ObserveLaunch(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Launches.WithLabelValues(result).Inc()
}
