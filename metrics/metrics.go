// Package metrics exports run lifecycle events as Prometheus metrics. [*Hooks] implements
// the hook interfaces of package analyst; register it with a hooks.Registry.
package metrics

import (
	"context"
	"net/http"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "analyst"

// Hooks holds the collectors. Create one per Registerer; registering two on the same
// Registerer panics on the duplicate names.
type Hooks struct {
	ModelCalls       *prometheus.CounterVec
	ModelLatency     prometheus.Histogram
	Tokens           *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	ToolLatency      *prometheus.HistogramVec
	Retries          prometheus.Counter
	RetrySleep       prometheus.Counter
	Prunes           *prometheus.CounterVec
	Runs             *prometheus.CounterVec
	RunIterations    prometheus.Histogram
	RunQueries       prometheus.Histogram
	AnswerConfidence prometheus.Histogram
}

var (
	_ analyst.AfterModelCallHook = (*Hooks)(nil)
	_ analyst.AfterToolCallHook  = (*Hooks)(nil)
	_ analyst.RetryHook          = (*Hooks)(nil)
	_ analyst.PruneHook          = (*Hooks)(nil)
	_ analyst.AfterRunHook       = (*Hooks)(nil)
)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Hooks {
	f := promauto.With(reg)
	return &Hooks{
		ModelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "model_calls_total", Help: "Completion calls by result.",
		}, []string{"result"}),
		ModelLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "model_call_duration_seconds", Help: "Completion call latency including retries.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		Tokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "model_tokens_total", Help: "Tokens reported by the provider.",
		}, []string{"direction"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tool_calls_total", Help: "Tool dispatches by kind and result code.",
		}, []string{"kind", "code"}),
		ToolLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tool_call_duration_seconds", Help: "Tool dispatch latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "retries_total", Help: "Rate-limit retries.",
		}),
		RetrySleep: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "retry_sleep_seconds_total", Help: "Time spent in backoff sleeps.",
		}),
		Prunes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "prunes_total", Help: "Conversation prunes by mode.",
		}, []string{"mode"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total", Help: "Finished runs by outcome and error kind.",
		}, []string{"outcome", "kind"}),
		RunIterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "run_iterations", Help: "Completion rounds used per run.",
			Buckets: prometheus.LinearBuckets(1, 1, 12),
		}),
		RunQueries: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "run_queries", Help: "Query dispatches per run.",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),
		AnswerConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "answer_confidence", Help: "Confidence score of final answers.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
	}
}

func (h *Hooks) OnAfterModelCall(_ context.Context, e analyst.AfterModelCallEvent) {
	h.ModelLatency.Observe(e.Duration.Seconds())
	if e.Err != nil {
		h.ModelCalls.WithLabelValues("error").Inc()
		return
	}
	h.ModelCalls.WithLabelValues("ok").Inc()
	if e.Completion != nil {
		h.Tokens.WithLabelValues("input").Add(float64(e.Completion.Usage.InputTokens))
		h.Tokens.WithLabelValues("output").Add(float64(e.Completion.Usage.OutputTokens))
	}
}

func (h *Hooks) OnAfterToolCall(_ context.Context, e analyst.AfterToolCallEvent) {
	code := "ok"
	if e.Result.IsError() {
		code = e.Result.Err.Code
	}
	h.ToolCalls.WithLabelValues(e.Kind.String(), code).Inc()
	h.ToolLatency.WithLabelValues(e.Kind.String()).Observe(e.Duration.Seconds())
}

func (h *Hooks) OnRetry(_ context.Context, e analyst.RetryEvent) {
	h.Retries.Inc()
	h.RetrySleep.Add(e.Delay.Seconds())
}

func (h *Hooks) OnPrune(_ context.Context, e analyst.PruneEvent) {
	mode := "window"
	if e.Aggressive {
		mode = "aggressive"
	}
	h.Prunes.WithLabelValues(mode).Inc()
}

func (h *Hooks) OnAfterRun(_ context.Context, e analyst.AfterRunEvent) {
	r := e.Result
	kind := string(r.Kind)
	if kind == "" {
		kind = "none"
	}
	h.Runs.WithLabelValues(string(r.Outcome), kind).Inc()
	h.RunIterations.Observe(float64(r.Budget.IterationsUsed))
	h.RunQueries.Observe(float64(r.Budget.QueriesUsed))
	if r.Answer != nil {
		h.AnswerConfidence.Observe(r.Answer.Confidence)
	}
}

// Handler returns the HTTP handler serving the metrics of gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
