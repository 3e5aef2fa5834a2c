package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	id "ccns/pkg/domain"
)

type Metrics struct {
	RegistrationsTotal *prometheus.CounterVec
	DispatchesTotal    *prometheus.CounterVec
	FeesSpentTotal     prometheus.Counter
	RegisterDuration   prometheus.Histogram
	EnabledChains      prometheus.Gauge
}

// New registers the registrar collectors on reg. Pass prometheus.NewRegistry()
// in tests to keep registrations isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RegistrationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccns_registrar_registrations_total",
			Help: "Total number of register calls by outcome",
		}, []string{"outcome"}),
		DispatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccns_registrar_dispatches_total",
			Help: "Total number of messages handed to the substrate by destination selector",
		}, []string{"destination"}),
		FeesSpentTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ccns_registrar_fees_spent_total",
			Help: "Total fees paid to the substrate for committed dispatches",
		}),
		RegisterDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ccns_registrar_register_duration_seconds",
			Help:    "Duration of register transitions",
			Buckets: prometheus.DefBuckets,
		}),
		EnabledChains: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ccns_registrar_enabled_chains",
			Help: "Current number of enabled destination chains",
		}),
	}
}

func (m *Metrics) IncrementRegistrations(outcome string) {
	m.RegistrationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementDispatches(dest id.ChainSelector) {
	m.DispatchesTotal.WithLabelValues(dest.String()).Inc()
}

func (m *Metrics) AddFeesSpent(amount uint64) {
	m.FeesSpentTotal.Add(float64(amount))
}

func (m *Metrics) ObserveRegisterDuration(seconds float64) {
	m.RegisterDuration.Observe(seconds)
}

func (m *Metrics) SetEnabledChains(count int) {
	m.EnabledChains.Set(float64(count))
}
