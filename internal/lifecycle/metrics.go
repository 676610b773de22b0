package lifecycle

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values for the Deployments and AddressLookups collectors.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"

	sourceManagement = "management"
	sourceFallback   = "fallback"
)

// Metrics counts lifecycle events. Each instance owns its registry so that
// parallel suites and tests never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	ServerStarts     prometheus.Counter
	StartFailures    prometheus.Counter
	StartDuration    prometheus.Histogram
	Deployments      *prometheus.CounterVec
	UndeployWarnings prometheus.Counter
	AddressLookups   *prometheus.CounterVec
}

// NewMetrics creates the collectors under namespace and registers them.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ServerStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_starts_total",
			Help:      "Number of successful starts of the shared server",
		}),
		StartFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_start_failures_total",
			Help:      "Number of server starts that failed or timed out",
		}),
		StartDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "server_start_duration_seconds",
			Help:      "Time from start request until the server reported ready",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		Deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Deployment attempts by outcome",
		}, []string{"outcome"}),
		UndeployWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undeploy_warnings_total",
			Help:      "Undeploy operations that failed and were only logged",
		}),
		AddressLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "address_lookups_total",
			Help:      "Address resolutions by source",
		}, []string{"source"}),
	}

	m.registry.MustRegister(
		m.ServerStarts,
		m.StartFailures,
		m.StartDuration,
		m.Deployments,
		m.UndeployWarnings,
		m.AddressLookups,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Totals sums every counter family across its labels, keyed by the full
// metric name. Histograms contribute their sample count.
func (m *Metrics) Totals() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, f := range families {
		var sum float64
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				sum += metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				sum += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		out[f.GetName()] = sum
	}
	return out, nil
}

// Summary renders the non-zero totals as "name=value" pairs in name order.
func (m *Metrics) Summary() (string, error) {
	totals, err := m.Totals()
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(totals))
	for name, v := range totals {
		if v != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%g", name, totals[name])
	}
	return strings.Join(parts, " "), nil
}
