// ABOUTME: Prometheus counters for fetches, optimistic reverts and notifications.
// ABOUTME: A nil *Metrics is valid and records nothing.
package feed

import "github.com/prometheus/client_golang/prometheus"

// Fetch results recorded by Metrics.
const (
	resultOK        = "ok"
	resultError     = "error"
	resultNotReady  = "not_ready"
	resultDiscarded = "discarded"
)

// Metrics holds the feed store's counters.
type Metrics struct {
	Fetches       *prometheus.CounterVec
	Reverts       *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "circle",
			Subsystem: "feed",
			Name:      "fetches_total",
			Help:      "Feed page fetches by feed and result.",
		}, []string{"feed", "result"}),
		Reverts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "circle",
			Subsystem: "feed",
			Name:      "optimistic_reverts_total",
			Help:      "Optimistic mutations rolled back after a persistence failure.",
		}, []string{"action"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "circle",
			Subsystem: "feed",
			Name:      "notifications_total",
			Help:      "Subscriber notification rounds by feed.",
		}, []string{"feed"}),
	}
	if reg != nil {
		reg.MustRegister(m.Fetches, m.Reverts, m.Notifications)
	}
	return m
}

func (m *Metrics) fetched(kind Kind, result string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(kind.String(), result).Inc()
}

func (m *Metrics) reverted(action string) {
	if m == nil {
		return
	}
	m.Reverts.WithLabelValues(action).Inc()
}

func (m *Metrics) notified(kind Kind) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind.String()).Inc()
}
