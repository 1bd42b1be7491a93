// Package observe provides application-wide observability primitives for
// voicefront: OpenTelemetry metrics and HTTP middleware that records them.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voicefront metrics.
const meterName = "github.com/triamed/voicefront"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ChunkDuration tracks per-chunk session pipeline latency.
	ChunkDuration metric.Float64Histogram

	// FinalizeDuration tracks utterance finalization latency, covering
	// recognition, the speaker gate, and text correction.
	FinalizeDuration metric.Float64Histogram

	// SynthesisDuration tracks end-to-end TTS job synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// SynthesisRTF tracks the real-time factor of synthesized segments.
	// Below 1.0 means faster than real time.
	SynthesisRTF metric.Float64Histogram

	// --- Counters ---

	// Wakeups counts accepted wake-word detections.
	Wakeups metric.Int64Counter

	// Utterances counts finalized utterances. Use with attribute:
	//   attribute.String("status", "completed"|"sv_failed"|"empty")
	Utterances metric.Int64Counter

	// TTSJobs counts synthesis jobs by terminal state. Use with attribute:
	//   attribute.String("status", ...)
	TTSJobs metric.Int64Counter

	// InferenceErrors counts swallowed model errors. Use with attribute:
	//   attribute.String("stage", "vad"|"kws"|"asr"|"sv"|"llm"|"tts")
	InferenceErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// rtfBuckets covers the useful real-time-factor range.
var rtfBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ChunkDuration, err = m.Float64Histogram("voicefront.chunk.duration",
		metric.WithDescription("Latency of one audio chunk through the session pipeline."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("voicefront.finalize.duration",
		metric.WithDescription("Latency of utterance finalization: recognition, speaker gate, correction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("voicefront.tts.synthesis.duration",
		metric.WithDescription("End-to-end TTS job synthesis latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisRTF, err = m.Float64Histogram("voicefront.tts.rtf",
		metric.WithDescription("Real-time factor of synthesized segments."),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(rtfBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Wakeups, err = m.Int64Counter("voicefront.wakeups",
		metric.WithDescription("Accepted wake-word detections."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("voicefront.utterances",
		metric.WithDescription("Finalized utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.TTSJobs, err = m.Int64Counter("voicefront.tts.jobs",
		metric.WithDescription("Synthesis jobs by terminal state."),
	); err != nil {
		return nil, err
	}
	if met.InferenceErrors, err = m.Int64Counter("voicefront.inference.errors",
		metric.WithDescription("Swallowed model errors by pipeline stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voicefront.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicefront.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordUtterance records one finalized utterance with its outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, status string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordTTSJob records one synthesis job reaching a terminal state.
func (m *Metrics) RecordTTSJob(ctx context.Context, status string) {
	m.TTSJobs.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordInferenceError records a swallowed model error for a pipeline stage.
func (m *Metrics) RecordInferenceError(ctx context.Context, stage string) {
	m.InferenceErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
