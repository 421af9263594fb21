// Package metrics exposes Prometheus collectors for the bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups        *prometheus.CounterVec
	generations         *prometheus.CounterVec
	inferenceDuration   prometheus.Histogram
	classifierFallbacks prometheus.Counter
	compressions        *prometheus.CounterVec
	chatMessages        *prometheus.CounterVec
	activeSockets       prometheus.Gauge
}

// New creates and registers collectors in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelbot_cache_lookups_total",
			Help: "Result cache lookups by outcome.",
		}, []string{"result"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelbot_generations_total",
			Help: "Generation requests by channel and outcome.",
		}, []string{"channel", "outcome"}),
		inferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reelbot_inference_duration_seconds",
			Help:    "Latency of text-to-video inference calls.",
			Buckets: []float64{5, 15, 30, 60, 120, 240, 480},
		}),
		classifierFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reelbot_classifier_fallbacks_total",
			Help: "Classifier calls that degraded to the default style.",
		}),
		compressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelbot_compressions_total",
			Help: "Oversize re-encode attempts by outcome.",
		}, []string{"outcome"}),
		chatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelbot_chat_messages_total",
			Help: "Inbound chat messages by command.",
		}, []string{"command"}),
		activeSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reelbot_active_websockets",
			Help: "Open web client sockets.",
		}),
	}

	reg.MustRegister(
		m.cacheLookups,
		m.generations,
		m.inferenceDuration,
		m.classifierFallbacks,
		m.compressions,
		m.chatMessages,
		m.activeSockets,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CacheLookup counts a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Generation counts a finished generation.
func (m *Metrics) Generation(channel, outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(channel, outcome).Inc()
}

// ObserveInference records inference latency.
func (m *Metrics) ObserveInference(d time.Duration) {
	if m == nil {
		return
	}
	m.inferenceDuration.Observe(d.Seconds())
}

// ClassifierFallback counts a degraded classification.
func (m *Metrics) ClassifierFallback() {
	if m == nil {
		return
	}
	m.classifierFallbacks.Inc()
}

// Compression counts a re-encode attempt.
func (m *Metrics) Compression(outcome string) {
	if m == nil {
		return
	}
	m.compressions.WithLabelValues(outcome).Inc()
}

// ChatMessage counts an inbound chat message.
func (m *Metrics) ChatMessage(command string) {
	if m == nil {
		return
	}
	m.chatMessages.WithLabelValues(command).Inc()
}

// SocketOpened increments the open socket gauge.
func (m *Metrics) SocketOpened() {
	if m == nil {
		return
	}
	m.activeSockets.Inc()
}

// SocketClosed decrements the open socket gauge.
func (m *Metrics) SocketClosed() {
	if m == nil {
		return
	}
	m.activeSockets.Dec()
}
