// ABOUTME: Prometheus collectors for tool calls, sessions and upstream QuickBooks traffic.
// ABOUTME: Collectors live on a private registry so each gateway instance owns its own.

package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's collectors. It satisfies both the protocol
// server's and the upstream client's observer interfaces.
type Metrics struct {
	registry *prometheus.Registry

	ToolCallsTotal          *prometheus.CounterVec
	ToolCallDuration        *prometheus.HistogramVec
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
	UpstreamPagesTotal      prometheus.Counter
	UpstreamItemsTotal      prometheus.Counter
	ActiveSessions          prometheus.Gauge
}

// New registers every collector, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ToolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qbo_gateway_tool_calls_total",
			Help: "Total number of tool calls by domain and outcome",
		}, []string{"domain", "outcome"}),
		ToolCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qbo_gateway_tool_call_duration_seconds",
			Help:    "Duration of tool calls in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"domain"}),
		UpstreamRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qbo_gateway_upstream_requests_total",
			Help: "Total number of QuickBooks API requests by method, route and status class",
		}, []string{"method", "route", "status"}),
		UpstreamRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qbo_gateway_upstream_request_duration_seconds",
			Help:    "Latency of QuickBooks API requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		UpstreamPagesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "qbo_gateway_upstream_query_pages_total",
			Help: "Total number of query pages fetched",
		}),
		UpstreamItemsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "qbo_gateway_upstream_query_items_total",
			Help: "Total number of entities returned by query pages",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "qbo_gateway_active_sessions",
			Help: "Current number of open protocol sessions",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveToolCall counts one tool call. Navigation calls carry no domain and
// are labelled "none".
func (m *Metrics) ObserveToolCall(domain, outcome string, elapsed time.Duration) {
	if domain == "" {
		domain = "none"
	}
	m.ToolCallsTotal.WithLabelValues(domain, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(domain).Observe(elapsed.Seconds())
}

// ObserveUpstreamRequest records one QuickBooks request. Status 0 means the
// request never got a response.
func (m *Metrics) ObserveUpstreamRequest(method, path string, status int, elapsed time.Duration) {
	route := Route(path)
	m.UpstreamRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	m.UpstreamRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObservePage records one fetched query page and its entity count.
func (m *Metrics) ObservePage(items int) {
	m.UpstreamPagesTotal.Inc()
	m.UpstreamItemsTotal.Add(float64(items))
}

// SetActiveSessions sets the open session gauge.
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// Route collapses an upstream path to a bounded label: entity ids are dropped,
// report names are kept.
func Route(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 0 || parts[0] == "":
		return "/"
	case parts[0] == "reports" && len(parts) > 1:
		return "/reports/" + parts[1]
	case len(parts) > 2:
		return "/" + parts[0] + "/:id/" + parts[2]
	case len(parts) == 2:
		return "/" + parts[0] + "/:id"
	default:
		return "/" + parts[0]
	}
}

func statusClass(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
