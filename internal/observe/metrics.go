// Package observe provides application-wide observability primitives for
// Parlo: OpenTelemetry metrics and the Prometheus exporter bridge that makes
// them scrapeable via /metrics.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Parlo metrics.
const meterName = "github.com/tbjorklund/parlo"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks time from end of speech to final transcript.
	TranscriptionDuration metric.Float64Histogram

	// PlanningDuration tracks time from transcript to the first reply sentence.
	PlanningDuration metric.Float64Histogram

	// SynthesisDuration tracks per-sentence synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// ResponseDuration tracks end-of-user-speech to first audio out.
	ResponseDuration metric.Float64Histogram

	// --- Counters ---

	// UserTurns counts finalized and discarded user turns. Use with
	// attribute.String("outcome", "finalized"|"discarded").
	UserTurns metric.Int64Counter

	// AgentTurns counts agent turns by how they ended. Use with
	// attribute.String("outcome", "completed"|"interrupted"|"failed").
	AgentTurns metric.Int64Counter

	// BargeIns counts user interruptions of agent speech.
	BargeIns metric.Int64Counter

	// SynthesisFailures counts sentence chunks skipped due to synthesis errors.
	SynthesisFailures metric.Int64Counter

	// DroppedFrames counts audio frames discarded by the ingestion queue.
	DroppedFrames metric.Int64Counter

	// DegradedDetection counts switches to fallback voice detection.
	DegradedDetection metric.Int64Counter

	// --- Gauges ---

	// ActiveAgentTurns tracks in-flight agent turns (0 or 1 by design; a
	// sustained higher reading indicates a coordination bug).
	ActiveAgentTurns metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("parlo.transcription.duration",
		metric.WithDescription("Latency from end of speech to final transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlanningDuration, err = m.Float64Histogram("parlo.planning.duration",
		metric.WithDescription("Latency from transcript to first reply sentence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("parlo.synthesis.duration",
		metric.WithDescription("Per-sentence speech synthesis latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResponseDuration, err = m.Float64Histogram("parlo.response.duration",
		metric.WithDescription("End of user speech to first audio out."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.UserTurns, err = m.Int64Counter("parlo.user_turns",
		metric.WithDescription("User turns by outcome (finalized, discarded)."),
	); err != nil {
		return nil, err
	}
	if met.AgentTurns, err = m.Int64Counter("parlo.agent_turns",
		metric.WithDescription("Agent turns by outcome (completed, interrupted, failed)."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("parlo.barge_ins",
		metric.WithDescription("User interruptions of agent speech."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisFailures, err = m.Int64Counter("parlo.synthesis.failures",
		metric.WithDescription("Sentence chunks skipped due to synthesis errors."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("parlo.audio.dropped_frames",
		metric.WithDescription("Audio frames discarded by the ingestion queue."),
	); err != nil {
		return nil, err
	}
	if met.DegradedDetection, err = m.Int64Counter("parlo.vad.degraded",
		metric.WithDescription("Switches to fallback voice detection."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveAgentTurns, err = m.Int64UpDownCounter("parlo.active_agent_turns",
		metric.WithDescription("In-flight agent turns."),
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

// RecordUserTurn records a user turn counter increment with its outcome.
func (m *Metrics) RecordUserTurn(ctx context.Context, outcome string) {
	m.UserTurns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordAgentTurn records an agent turn counter increment with its outcome.
func (m *Metrics) RecordAgentTurn(ctx context.Context, outcome string) {
	m.AgentTurns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
