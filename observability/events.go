package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// committedEvents counts what the runtime publishes after each commit.
type committedEvents struct {
	byType   *prometheus.CounterVec
	perBatch *prometheus.HistogramVec
}

var (
	committedOnce sync.Once
	committed     *committedEvents
)

// Events is the process-wide committed event collector.
func Events() *committedEvents {
	committedOnce.Do(func() {
		committed = &committedEvents{
			byType: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "voucher",
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Committed events by emitting module and event name.",
			}, []string{"module", "event"}),
			perBatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "voucher",
				Subsystem: "events",
				Name:      "per_execution",
				Help:      "Events published by one committed execution.",
				Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
			}, []string{"op"}),
		}
		prometheus.MustRegister(committed.byType, committed.perBatch)
	})
	return committed
}

// RecordEvent counts one event. Types are "<module>.<event>".
func (m *committedEvents) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	module, event, ok := strings.Cut(strings.TrimSpace(eventType), ".")
	if !ok || module == "" || event == "" {
		module, event = "unknown", "unknown"
	}
	m.byType.WithLabelValues(module, event).Inc()
}

// RecordBatch observes how many events op published in one commit.
func (m *committedEvents) RecordBatch(op string, n int) {
	if m == nil {
		return
	}
	m.perBatch.WithLabelValues(op).Observe(float64(n))
}
