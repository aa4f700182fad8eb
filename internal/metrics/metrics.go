// Package metrics exposes prometheus collectors for refresh activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the collectors recorded by the integration manager and
// the websocket hub.
type Registry struct {
	refreshTotal        *prometheus.CounterVec
	refreshDuration     *prometheus.HistogramVec
	consecutiveFailures *prometheus.GaugeVec
	wsClients           prometheus.Gauge
	reg                 *prometheus.Registry
}

// New creates the collectors and registers them on a private registry
func New() *Registry {
	r := &Registry{
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_refresh_total",
			Help: "Refresh attempts per integration, labeled by result.",
		}, []string{"integration", "result"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearth_refresh_duration_seconds",
			Help:    "Duration of integration refresh cycles.",
			Buckets: prometheus.DefBuckets,
		}, []string{"integration"}),
		consecutiveFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hearth_consecutive_failures",
			Help: "Failed fetches since the last success, per integration.",
		}, []string{"integration"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearth_websocket_clients",
			Help: "Currently connected websocket clients.",
		}),
		reg: prometheus.NewRegistry(),
	}

	r.reg.MustRegister(r.refreshTotal, r.refreshDuration, r.consecutiveFailures, r.wsClients)
	return r
}

// Gatherer returns the underlying registry for the /metrics handler
func (r *Registry) Gatherer() *prometheus.Registry {
	return r.reg
}

// ObserveRefresh records one refresh outcome for an integration
func (r *Registry) ObserveRefresh(integration string, duration time.Duration, failures int, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.refreshTotal.WithLabelValues(integration, result).Inc()
	r.refreshDuration.WithLabelValues(integration).Observe(duration.Seconds())
	r.consecutiveFailures.WithLabelValues(integration).Set(float64(failures))
}

// SetWSClients updates the connected websocket client gauge
func (r *Registry) SetWSClients(n int) {
	r.wsClients.Set(float64(n))
}
