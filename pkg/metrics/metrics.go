// Package metrics exposes Prometheus metrics for the gateway and the
// conversation pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicechat"

// Outcome labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// httpRequestsTotal counts gateway requests by route and status code.
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of gateway HTTP requests",
		},
		[]string{"route", "code"},
	)

	// providerRequestDuration is a histogram of upstream provider call duration.
	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of upstream provider calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "operation", "status"},
	)

	// voiceFallbacksTotal counts voice catalog requests served from the fallback list.
	voiceFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_catalog_fallbacks_total",
			Help:      "Voice catalog requests answered with the built-in fallback list",
		},
	)

	// turnStageDuration is a histogram of conversation pipeline stage duration.
	turnStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_duration_seconds",
			Help:      "Duration of conversation turn stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// turnsTotal counts conversation turns by outcome.
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	// sessionsActive is a gauge of live conversation sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live conversation sessions",
		},
	)
)

var allMetrics = []prometheus.Collector{
	httpRequestsTotal,
	providerRequestDuration,
	voiceFallbacksTotal,
	turnStageDuration,
	turnsTotal,
	sessionsActive,
}

// NewRegistry returns a registry holding all voicechat metrics plus the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordHTTPRequest counts one gateway request.
func RecordHTTPRequest(route string, code int) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveProvider records one upstream call.
func ObserveProvider(provider, operation string, d time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	providerRequestDuration.WithLabelValues(provider, operation, status).Observe(d.Seconds())
}

// RecordVoiceFallback counts a fallback voice catalog response.
func RecordVoiceFallback() {
	voiceFallbacksTotal.Inc()
}

// ObserveStage records the duration of one pipeline stage.
func ObserveStage(stage string, d time.Duration) {
	turnStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordTurn counts a finished turn. outcome is one of "completed", "empty",
// "transcribe_failed" or "respond_failed".
func RecordTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

// SessionOpened increments the live session gauge.
func SessionOpened() {
	sessionsActive.Inc()
}

// SessionClosed decrements the live session gauge.
func SessionClosed() {
	sessionsActive.Dec()
}
