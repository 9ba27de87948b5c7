package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/u1974754/p-final-multi/internal/wire"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric %v", m.String())
	return 0
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.Message("in", wire.TagSelect)
	m.SlotRequest("granted")
	m.Tick(time.Millisecond, 3)
}

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(Config{Subsystem: "server", Registry: reg})

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.SlotRequest("granted")
	m.SlotRequest("taken")
	m.SlotRequest("taken")
	m.Message("in", wire.TagSpawnPosition)
	m.SlotsTaken(2)

	if got := value(t, m.connections); got != 2 {
		t.Fatalf("connections=%v", got)
	}
	if got := value(t, m.sessions); got != 1 {
		t.Fatalf("sessions=%v", got)
	}
	if got := value(t, m.selections.WithLabelValues("taken")); got != 2 {
		t.Fatalf("taken=%v", got)
	}
	if got := value(t, m.messages.WithLabelValues("in", "SpawnPosition")); got != 1 {
		t.Fatalf("messages=%v", got)
	}
	if got := value(t, m.slotsTaken); got != 2 {
		t.Fatalf("slotsTaken=%v", got)
	}
}
