// Package metrics exposes the hub's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles all collectors for the hub.
type Metrics struct {
	Moisture          prometheus.Gauge
	PumpRunning       prometheus.Gauge
	PumpRunsTotal     *prometheus.CounterVec
	PumpSecondsTotal  prometheus.Counter
	SensorErrorsTotal prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Moisture: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hub",
			Name:      "soil_moisture_percent",
			Help:      "Last soil moisture reading",
		}),
		PumpRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hub",
			Name:      "pump_running",
			Help:      "Whether the pump relay is energized",
		}),
		PumpRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub",
			Name:      "pump_runs_total",
			Help:      "Completed pump runs by mode",
		}, []string{"mode"}),
		PumpSecondsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hub",
			Name:      "pump_seconds_total",
			Help:      "Accumulated pump runtime in seconds",
		}),
		SensorErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hub",
			Name:      "sensor_read_errors_total",
			Help:      "Monitor cycles where the moisture sensor was unavailable",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.Moisture,
		m.PumpRunning,
		m.PumpRunsTotal,
		m.PumpSecondsTotal,
		m.SensorErrorsTotal,
	)
	return m
}

// Registry returns the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
