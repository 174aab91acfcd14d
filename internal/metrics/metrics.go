// Package metrics provides Prometheus instrumentation for working memory.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records working-memory metrics. A nil or disabled Recorder is
// safe to use and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	eventsRecorded      *prometheus.CounterVec
	embeddingFailures   prometheus.Counter
	llmFallbacks        *prometheus.CounterVec
	consolidationRuns   *prometheus.CounterVec
	consolidationErrors *prometheus.CounterVec
	acbTokens           prometheus.Histogram
	acbDuration         prometheus.Histogram
	degradedChannels    *prometheus.CounterVec
}

// New creates a Recorder with a private registry. It returns nil when
// disabled.
func New(enabled bool) *Recorder {
	if !enabled {
		return nil
	}
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		eventsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "working_memory",
			Name:      "events_recorded_total",
			Help:      "Events recorded, by kind.",
		}, []string{"kind"}),
		embeddingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "working_memory",
			Name:      "embedding_failures_total",
			Help:      "Chunk embeddings that could not be produced or indexed.",
		}),
		llmFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "working_memory",
			Name:      "llm_fallbacks_total",
			Help:      "Consolidation stages that fell back to heuristics.",
		}, []string{"stage"}),
		consolidationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "working_memory",
			Name:      "consolidation_runs_total",
			Help:      "Consolidation runs, by tier.",
		}, []string{"tier"}),
		consolidationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "working_memory",
			Name:      "consolidation_item_errors_total",
			Help:      "Per-item consolidation failures, by tier.",
		}, []string{"tier"}),
		acbTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "working_memory",
			Name:      "acb_tokens_used",
			Help:      "Estimated tokens used per context bundle.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 10),
		}),
		acbDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "working_memory",
			Name:      "acb_build_seconds",
			Help:      "Context bundle build latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		degradedChannels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "working_memory",
			Name:      "acb_degraded_channels_total",
			Help:      "Candidate channels that failed during context assembly.",
		}, []string{"channel"}),
	}
	reg.MustRegister(
		r.eventsRecorded, r.embeddingFailures, r.llmFallbacks,
		r.consolidationRuns, r.consolidationErrors,
		r.acbTokens, r.acbDuration, r.degradedChannels,
	)
	return r
}

// Registry exposes the private registry, or nil when disabled.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) EventRecorded(kind string) {
	if r == nil {
		return
	}
	r.eventsRecorded.WithLabelValues(kind).Inc()
}

func (r *Recorder) EmbeddingFailed() {
	if r == nil {
		return
	}
	r.embeddingFailures.Inc()
}

func (r *Recorder) LLMFallback(stage string) {
	if r == nil {
		return
	}
	r.llmFallbacks.WithLabelValues(stage).Inc()
}

func (r *Recorder) ConsolidationRun(tier string, itemErrors int) {
	if r == nil {
		return
	}
	r.consolidationRuns.WithLabelValues(tier).Inc()
	r.consolidationErrors.WithLabelValues(tier).Add(float64(itemErrors))
}

func (r *Recorder) ACBBuilt(tokens int, d time.Duration) {
	if r == nil {
		return
	}
	r.acbTokens.Observe(float64(tokens))
	r.acbDuration.Observe(d.Seconds())
}

func (r *Recorder) ChannelDegraded(channel string) {
	if r == nil {
		return
	}
	r.degradedChannels.WithLabelValues(channel).Inc()
}
