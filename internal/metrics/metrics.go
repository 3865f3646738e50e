// Package metrics exposes Prometheus collectors for the voice relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicerelay"

var (
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections_active",
			Help:      "Number of open client WebSocket connections",
		},
	)

	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Transcription turns by outcome",
		},
		[]string{"outcome"}, // qualified, empty, dropped
	)

	repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Generated replies by intent and outcome",
		},
		[]string{"intent", "outcome"}, // outcome: ok, quota, auth, failure
	)

	replyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_duration_seconds",
			Help:      "Time spent generating a reply",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"intent"},
	)

	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM provider calls",
		},
		[]string{"provider", "status"},
	)

	llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by LLM calls",
		},
		[]string{"provider", "type"}, // type: input, output
	)

	ttsConnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_connect_attempts_total",
			Help:      "Upstream TTS connection attempts",
		},
		[]string{"status"},
	)

	ttsStreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_streams_total",
			Help:      "TTS streams by how they ended",
		},
		[]string{"outcome"}, // final, timeout, client_closed, error, connect_failed, cancelled
	)

	audioChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_total",
			Help:      "Audio chunks relayed to clients",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	allMetrics = []prometheus.Collector{
		connectionsActive,
		turnsTotal,
		repliesTotal,
		replyDuration,
		llmRequestsTotal,
		llmTokensTotal,
		ttsConnectAttempts,
		ttsStreamsTotal,
		audioChunksTotal,
		httpRequestsTotal,
	}

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(allMetrics...)
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the relay's registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func ConnectionOpened() { connectionsActive.Inc() }
func ConnectionClosed() { connectionsActive.Dec() }

func RecordTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

func RecordReply(intent, outcome string, durationSeconds float64) {
	repliesTotal.WithLabelValues(intent, outcome).Inc()
	replyDuration.WithLabelValues(intent).Observe(durationSeconds)
}

// RecordLLMRequest records one provider call and, on success, its token counts.
func RecordLLMRequest(provider, status string, inputTokens, outputTokens int) {
	llmRequestsTotal.WithLabelValues(provider, status).Inc()
	if inputTokens > 0 {
		llmTokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		llmTokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

func RecordTTSConnect(status string) {
	ttsConnectAttempts.WithLabelValues(status).Inc()
}

func RecordTTSStream(outcome string) {
	ttsStreamsTotal.WithLabelValues(outcome).Inc()
}

func RecordAudioChunk() {
	audioChunksTotal.Inc()
}

func RecordHTTPRequest(method, route, status string) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
}
