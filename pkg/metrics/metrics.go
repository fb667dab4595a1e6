// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TelemetryEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adengine_telemetry_events_total",
		Help: "Telemetry events by kind and outcome",
	}, []string{"kind", "outcome"})

	SessionsArchived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adengine_sessions_archived_total",
		Help: "Sessions moved out of the live index by path",
	}, []string{"path"})

	DuplicateArchives = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adengine_sessions_duplicate_archive_total",
		Help: "Archive attempts suppressed because the session was already archived",
	})

	LiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adengine_live_sessions",
		Help: "Sessions in the live index at the last sweep",
	})

	Placements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adengine_placements_total",
		Help: "Zones placed by origin",
	}, []string{"origin"})

	OptimizerRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adengine_optimizer_runs_total",
		Help: "Optimizer runs by status",
	}, []string{"status"})

	OptimizerChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adengine_optimizer_changes_total",
		Help: "Settings changes applied by rule",
	}, []string{"rule"})

	OptimizerDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "adengine_optimizer_duration_seconds",
		Help:    "Wall time of a daily optimizer run",
		Buckets: prometheus.DefBuckets,
	})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adengine_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status class",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method", "route", "code"})
)

func init() {
	prometheus.MustRegister(TelemetryEvents)
	prometheus.MustRegister(SessionsArchived)
	prometheus.MustRegister(DuplicateArchives)
	prometheus.MustRegister(LiveSessions)
	prometheus.MustRegister(Placements)
	prometheus.MustRegister(OptimizerRuns)
	prometheus.MustRegister(OptimizerChanges)
	prometheus.MustRegister(OptimizerDuration)
	prometheus.MustRegister(HTTPDuration)
}

func IncEvent(kind, outcome string) {
	TelemetryEvents.WithLabelValues(kind, outcome).Inc()
}

func IncArchived(path string) {
	SessionsArchived.WithLabelValues(path).Inc()
}

func IncDuplicateArchive() {
	DuplicateArchives.Inc()
}

func SetLiveSessions(n int) {
	LiveSessions.Set(float64(n))
}

func AddPlacements(origin string, n int) {
	Placements.WithLabelValues(origin).Add(float64(n))
}

func IncOptimizerRun(status string) {
	OptimizerRuns.WithLabelValues(status).Inc()
}

func IncOptimizerChange(rule string) {
	OptimizerChanges.WithLabelValues(rule).Inc()
}

func ObserveOptimizerDuration(seconds float64) {
	OptimizerDuration.Observe(seconds)
}

// ObserveHTTP records one request. code is the status class, e.g. "2xx".
func ObserveHTTP(method, route, code string, seconds float64) {
	HTTPDuration.WithLabelValues(method, route, code).Observe(seconds)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
