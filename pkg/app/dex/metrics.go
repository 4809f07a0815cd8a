package dex

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coboltblu/exchange/pkg/events"
)

// MetricsNamespace prefixes every metric exported by the venue.
const MetricsNamespace = "coboltblu"

// Metrics contains the venue's Prometheus collectors.
type Metrics struct {
	// Transactions applied, by type and result kind ("ok" on success).
	Txs *prometheus.CounterVec
	// Committed events by kind.
	Events *prometheus.CounterVec
	// Orders currently open.
	OpenOrders prometheus.Gauge
	// Sequence number of the last committed event.
	LogHeight prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg. A nil reg
// leaves them unregistered, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Txs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "transactions_total",
			Help:      "Signed transactions processed, by type and result.",
		}, []string{"type", "result"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "events_total",
			Help:      "Committed events by kind.",
		}, []string{"kind"}),
		OpenOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "open_orders",
			Help:      "Orders in the Open state.",
		}),
		LogHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "event_log_height",
			Help:      "Sequence number of the last committed event.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Txs, m.Events, m.OpenOrders, m.LogHeight)
	}
	return m
}

func (m *Metrics) observeTx(typ, result string) {
	m.Txs.WithLabelValues(typ, result).Inc()
}

func (m *Metrics) observeCommit(evs []events.Event, height uint64, open int) {
	for _, e := range evs {
		m.Events.WithLabelValues(e.Kind.String()).Inc()
	}
	m.LogHeight.Set(float64(height))
	m.OpenOrders.Set(float64(open))
}
