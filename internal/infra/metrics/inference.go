package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		streamLatency,
		streamChunks,
		streamTokens,
		streamParseErrors,
		streamResults,
		promptTokens,
	)
}

var (
	streamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_stream_seconds",
			Help:    "Upstream stream duration from open to sentinel.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider"},
	)

	streamChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_chunks_total",
			Help: "Raw chunks received from upstream.",
		},
		[]string{"provider"},
	)

	streamTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_tokens_total",
			Help: "Normalized tokens handed to executors.",
		},
		[]string{"provider"},
	)

	streamParseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_chunk_parse_errors_total",
			Help: "Chunks skipped because they could not be normalized.",
		},
		[]string{"provider"},
	)

	streamResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_streams_total",
			Help: "Finished streams by outcome.",
		},
		[]string{"provider", "result"}, // 'ok', 'error'
	)

	promptTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_prompt_tokens_total",
			Help: "Estimated prompt tokens sent upstream.",
		},
		[]string{"provider"},
	)
)

func ObserveStream(provider string, d time.Duration, chunks, tokens int, err error) {
	p := norm(provider)
	streamLatency.WithLabelValues(p).Observe(d.Seconds())
	streamChunks.WithLabelValues(p).Add(float64(chunks))
	streamTokens.WithLabelValues(p).Add(float64(tokens))
	result := "ok"
	if err != nil {
		result = "error"
	}
	streamResults.WithLabelValues(p, result).Inc()
}

func IncChunkParseError(provider string) {
	streamParseErrors.WithLabelValues(norm(provider)).Inc()
}

func AddPromptTokens(provider string, n int) {
	promptTokens.WithLabelValues(norm(provider)).Add(float64(n))
}
