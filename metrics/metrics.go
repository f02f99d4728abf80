// Package metrics exposes Prometheus instrumentation for API calls and clone runs.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the cloner publishes. A nil *Metrics is valid
// and records nothing, so components can be built without instrumentation.
type Metrics struct {
	APIRequests        *prometheus.CounterVec   // guildcloner_api_requests_total{method,status}
	APIRequestDuration *prometheus.HistogramVec // guildcloner_api_request_duration_seconds{method}
	APIRetries         *prometheus.CounterVec   // guildcloner_api_retries_total{reason}
	EntitiesProcessed  *prometheus.CounterVec   // guildcloner_entities_total{phase,result}
	Runs               *prometheus.CounterVec   // guildcloner_runs_total{state}
	ActiveRuns         prometheus.Gauge
	RunProgress        prometheus.Gauge
}

// New registers the collectors with registry. If nil, the default registerer is used.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		APIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guildcloner_api_requests_total",
			Help: "REST calls issued, by method and final HTTP status (0 for transport failures)",
		}, []string{"method", "status"}),

		APIRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guildcloner_api_request_duration_seconds",
			Help:    "Wall-clock duration of a REST call including retries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"method"}),

		APIRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guildcloner_api_retries_total",
			Help: "Retries performed by the REST client",
		}, []string{"reason"}),

		EntitiesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guildcloner_entities_total",
			Help: "Units of replication work by phase and result",
		}, []string{"phase", "result"}),

		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guildcloner_runs_total",
			Help: "Clone runs by terminal state",
		}, []string{"state"}),

		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "guildcloner_active_runs",
			Help: "1 while a clone run is executing",
		}),

		RunProgress: factory.NewGauge(prometheus.GaugeOpts{
			Name: "guildcloner_run_progress_ratio",
			Help: "Progress of the current clone run between 0 and 1",
		}),
	}
}

func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.APIRequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRetry(reason string) {
	if m == nil {
		return
	}
	m.APIRetries.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveEntity(phase, result string) {
	if m == nil {
		return
	}
	m.EntitiesProcessed.WithLabelValues(phase, result).Inc()
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Set(1)
	m.RunProgress.Set(0)
}

func (m *Metrics) RunFinished(state string) {
	if m == nil {
		return
	}
	m.ActiveRuns.Set(0)
	m.Runs.WithLabelValues(state).Inc()
}

func (m *Metrics) SetProgress(progress float64) {
	if m == nil {
		return
	}
	m.RunProgress.Set(progress)
}
