// Package metrics records wallet-session and provider activity in a
// Prometheus registry. Every method is safe on a nil *Metrics.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Connect outcomes.
const (
	OutcomeSuccess          = "success"
	OutcomeCancelled        = "cancelled"
	OutcomeNoAddress        = "no_address"
	OutcomeDeclined         = "declined"
	OutcomeProviderError    = "provider_error"
	OutcomeAlreadyConnected = "already_connected"
)

const namespace = "estatelink"

// Metrics holds the collectors for one process.
type Metrics struct {
	registry        *prometheus.Registry
	connects        *prometheus.CounterVec
	disconnects     prometheus.Counter
	restores        *prometheus.CounterVec
	connected       prometheus.Gauge
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
}

// Global is the process metrics instance used by the CLI.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = New()

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connect_total",
			Help:      "Wallet connect attempts by outcome.",
		}, []string{"outcome"}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "disconnect_total",
			Help:      "Wallet disconnects, explicit or rollback.",
		}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "restore_total",
			Help:      "Startup session restores by result.",
		}, []string{"restored"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connected",
			Help:      "1 when a wallet address is linked to the session.",
		}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Wallet provider calls by provider, method and result.",
		}, []string{"provider", "method", "result"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Wallet provider call latency, including time spent waiting on the user.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"provider", "method"}),
	}

	m.registry.MustRegister(
		m.connects,
		m.disconnects,
		m.restores,
		m.connected,
		m.providerCalls,
		m.providerLatency,
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordConnect counts a connect attempt with its outcome.
func (m *Metrics) RecordConnect(outcome string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(outcome).Inc()
}

// RecordDisconnect counts a provider disconnect.
func (m *Metrics) RecordDisconnect() {
	if m == nil {
		return
	}
	m.disconnects.Inc()
}

// RecordRestore counts a startup restore attempt.
func (m *Metrics) RecordRestore(restored bool) {
	if m == nil {
		return
	}
	m.restores.WithLabelValues(fmt.Sprint(restored)).Inc()
}

// SetConnected updates the connected gauge.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// RecordProviderCall records one provider call with its duration and result.
func (m *Metrics) RecordProviderCall(provider, method string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.providerCalls.WithLabelValues(provider, method, result).Inc()
	m.providerLatency.WithLabelValues(provider, method).Observe(d.Seconds())
}

// WriteText writes every metric in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil {
		return nil
	}

	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
