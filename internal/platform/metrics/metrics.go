// Package metrics owns the process-wide Prometheus registry. Services
// register their collectors on it through prometheus.Registerer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the registry with the HTTP handler exposing it.
type Registry struct {
	*prometheus.Registry
}

// New returns a registry preloaded with the Go runtime and process collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{Registry: reg}
}

// Wrap prefixes every collector registered through the returned Registerer
// with a chain label, so two chains in one process do not collide.
func (r *Registry) Wrap(chain string) prometheus.Registerer {
	return prometheus.WrapRegistererWith(prometheus.Labels{"chain": chain}, r.Registry)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}
