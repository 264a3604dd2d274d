// Package metrics exposes Prometheus metrics for guide sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "panoguide"

// Metrics holds all Prometheus metrics for the server. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ClientsConnected    prometheus.Gauge
	LiveSessionsActive  prometheus.Gauge
	LiveSessionsTotal   *prometheus.CounterVec
	LiveSessionDuration prometheus.Histogram
	AudioBytesTotal     *prometheus.CounterVec
	AudioFramesDropped  prometheus.Counter
	ToolCallsTotal      *prometheus.CounterVec
	ToolCallDuration    *prometheus.HistogramVec
	GeocodeCacheTotal   *prometheus.CounterVec
	SessionsExpired     prometheus.Counter
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_connected",
			Help:      "Number of browser clients with an open websocket",
		}),
		LiveSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of connected Gemini Live sessions",
		}),
		LiveSessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_total",
			Help:      "Total number of Gemini Live connection attempts",
		}, []string{"status"}), // status: connected, failed
		LiveSessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		AudioBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total PCM bytes relayed",
		}, []string{"direction"}), // direction: in, out
		AudioFramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Microphone frames dropped while muted or disconnected",
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		}, []string{"tool", "status"}), // status: success, failure, error
		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Duration of tool calls in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"tool"}),
		GeocodeCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocode cache lookups",
		}, []string{"result"}), // result: hit, miss, error
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Conversation records expired by the cleanup loop",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ClientsConnected,
		m.LiveSessionsActive,
		m.LiveSessionsTotal,
		m.LiveSessionDuration,
		m.AudioBytesTotal,
		m.AudioFramesDropped,
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.GeocodeCacheTotal,
		m.SessionsExpired,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordClient tracks a browser websocket opening or closing.
func (m *Metrics) RecordClient(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.ClientsConnected.Inc()
	} else {
		m.ClientsConnected.Dec()
	}
}

// RecordLiveSessionStart records a connection attempt outcome.
func (m *Metrics) RecordLiveSessionStart(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.LiveSessionsTotal.WithLabelValues("failed").Inc()
		return
	}
	m.LiveSessionsTotal.WithLabelValues("connected").Inc()
	m.LiveSessionsActive.Inc()
}

// RecordLiveSessionEnd records a connected session going away.
func (m *Metrics) RecordLiveSessionEnd(duration time.Duration) {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Dec()
	m.LiveSessionDuration.Observe(duration.Seconds())
}

// RecordAudio records relayed PCM bytes. direction is "in" or "out".
func (m *Metrics) RecordAudio(direction string, bytes int) {
	if m == nil {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordDroppedFrame counts a microphone frame that was not forwarded.
func (m *Metrics) RecordDroppedFrame() {
	if m == nil {
		return
	}
	m.AudioFramesDropped.Inc()
}

// RecordToolCall records a finished tool call. status is "success",
// "failure" for a reported failure, or "error" for a handler error.
func (m *Metrics) RecordToolCall(tool, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordGeocodeCache records a cache lookup result: "hit", "miss" or "error".
func (m *Metrics) RecordGeocodeCache(result string) {
	if m == nil {
		return
	}
	m.GeocodeCacheTotal.WithLabelValues(result).Inc()
}

// RecordExpired counts conversation records expired by cleanup.
func (m *Metrics) RecordExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsExpired.Add(float64(n))
}
