package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DeliveriesAccepted prometheus.Counter
	DeliveriesRejected *prometheus.CounterVec
	ReceiveDuration    prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DeliveriesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ccns_receiver_deliveries_accepted_total",
			Help: "Total number of inbound name updates applied",
		}),
		DeliveriesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccns_receiver_deliveries_rejected_total",
			Help: "Total number of inbound deliveries rejected by reason",
		}, []string{"reason"}),
		ReceiveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ccns_receiver_receive_duration_seconds",
			Help:    "Duration of inbound delivery handling",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementAccepted() {
	m.DeliveriesAccepted.Inc()
}

func (m *Metrics) IncrementRejected(reason string) {
	m.DeliveriesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveReceiveDuration(seconds float64) {
	m.ReceiveDuration.Observe(seconds)
}
