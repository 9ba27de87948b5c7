// Package metrics exposes the game loop's Prometheus instruments.
//
// All methods are safe on a nil *Metrics, so components can run without
// instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/u1974754/p-final-multi/internal/wire"
)

// Config selects where instruments are registered.
type Config struct {
	// Namespace is the metrics namespace (default: "arena").
	Namespace string

	// Subsystem is usually the process role ("server" or "client").
	Subsystem string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

type Metrics struct {
	connections   prometheus.Counter
	sessions      prometheus.Gauge
	messages      *prometheus.CounterVec
	decodeErrors  prometheus.Counter
	selections    *prometheus.CounterVec
	positions     *prometheus.CounterVec
	hackerFlags   prometheus.Counter
	slotsTaken    prometheus.Gauge
	evictions     prometheus.Counter
	sendFailures  prometheus.Counter
	tickDuration  prometheus.Histogram
	eventsPerTick prometheus.Histogram
}

func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "arena"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "connections_total",
			Help:      "Connections accepted or dialed",
		}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sessions",
			Help:      "Open sessions",
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "messages_total",
			Help:      "Messages by direction and tag",
		}, []string{"direction", "tag"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "decode_errors_total",
			Help:      "Inbound payloads that could not be decoded",
		}),
		selections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "slot_requests_total",
			Help:      "Character slot requests by result",
		}, []string{"result"}),
		positions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "position_reports_total",
			Help:      "Position reports by result",
		}, []string{"result"}),
		hackerFlags: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "hacker_flags_total",
			Help:      "HackerFlag messages sent",
		}),
		slotsTaken: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "slots_taken",
			Help:      "Character slots currently owned",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "evictions_total",
			Help:      "Sessions closed by the timeout sweeper",
		}),
		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "send_failures_total",
			Help:      "Outbound messages the transport refused",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tick_duration_seconds",
			Help:      "Time spent draining and dispatching one tick",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		}),
		eventsPerTick: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "events_per_tick",
			Help:      "Transport events drained per tick",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.sessions.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) Message(dir string, tag wire.Tag) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(dir, tag.String()).Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// SlotRequest records the outcome of a selection ("granted", "taken", ...).
func (m *Metrics) SlotRequest(result string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(result).Inc()
}

func (m *Metrics) SlotsTaken(n int) {
	if m == nil {
		return
	}
	m.slotsTaken.Set(float64(n))
}

// PositionReport records "accepted", "rejected" or "ignored".
func (m *Metrics) PositionReport(result string) {
	if m == nil {
		return
	}
	m.positions.WithLabelValues(result).Inc()
}

func (m *Metrics) HackerFlag() {
	if m == nil {
		return
	}
	m.hackerFlags.Inc()
}

func (m *Metrics) Evicted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.evictions.Add(float64(n))
}

func (m *Metrics) SendFailure() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

func (m *Metrics) Tick(d time.Duration, events int) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
	m.eventsPerTick.Observe(float64(events))
}
