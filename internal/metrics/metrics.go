package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder defines the metric hooks used by the orchestrator and the fallback store
type Recorder interface {
	ObserveCompletion(provider string, status string, duration time.Duration)
	ObserveSkip(provider string, reason string)
	ObserveQuota(provider string, percentUsed float64)
	ObserveAlert(provider string, threshold float64)
	ObserveCacheLookup(tier string, hit bool)
}

// NoopRecorder discards all observations
type NoopRecorder struct{}

func (NoopRecorder) ObserveCompletion(string, string, time.Duration) {}
func (NoopRecorder) ObserveSkip(string, string)                      {}
func (NoopRecorder) ObserveQuota(string, float64)                    {}
func (NoopRecorder) ObserveAlert(string, float64)                    {}
func (NoopRecorder) ObserveCacheLookup(string, bool)                 {}

// PrometheusRecorder reports runtime metrics using Prometheus primitives.
type PrometheusRecorder struct {
	registry     *prometheus.Registry
	completions  *prometheus.CounterVec
	durations    *prometheus.HistogramVec
	skips        *prometheus.CounterVec
	quota        *prometheus.GaugeVec
	alerts       *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

func NewPrometheusRecorder(registry *prometheus.Registry) (*PrometheusRecorder, error) {
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	r := &PrometheusRecorder{
		registry: registry,
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_ai_completions_total",
			Help: "Total completion attempts by provider and status",
		}, []string{"provider", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mentor_ai_completion_duration_seconds",
			Help:    "Completion latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_ai_provider_skips_total",
			Help: "Providers skipped during routing by reason",
		}, []string{"provider", "reason"}),
		quota: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mentor_ai_quota_percent_used",
			Help: "Daily token quota used, in percent",
		}, []string{"provider"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_ai_quota_alerts_total",
			Help: "Quota threshold alerts fired",
		}, []string{"provider", "threshold"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_fallback_cache_lookups_total",
			Help: "Fallback content lookups by tier and result",
		}, []string{"tier", "result"}),
	}

	for _, collector := range []prometheus.Collector{r.completions, r.durations, r.skips, r.quota, r.alerts, r.cacheLookups} {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) ObserveCompletion(provider string, status string, duration time.Duration) {
	r.completions.WithLabelValues(provider, status).Inc()
	r.durations.WithLabelValues(provider).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) ObserveSkip(provider string, reason string) {
	r.skips.WithLabelValues(provider, reason).Inc()
}

func (r *PrometheusRecorder) ObserveQuota(provider string, percentUsed float64) {
	r.quota.WithLabelValues(provider).Set(percentUsed)
}

func (r *PrometheusRecorder) ObserveAlert(provider string, threshold float64) {
	r.alerts.WithLabelValues(provider, fmt.Sprintf("%g", threshold)).Inc()
}

func (r *PrometheusRecorder) ObserveCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(tier, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
