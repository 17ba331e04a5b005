// Package observe provides application-wide observability primitives for
// voicelaunch: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from /metrics. Tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voicelaunch metrics.
const meterName = "github.com/MrWong99/voicelaunch"

// Recognition outcomes recorded by [Metrics.RecordOutcome].
const (
	OutcomeLaunched = "launched"
	OutcomeNoMatch  = "no_match"
	OutcomeError    = "error"
	OutcomeStopped  = "stopped"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// RecognitionOutcomes counts finished listening attempts. Use with
	// attribute.String("outcome", ...).
	RecognitionOutcomes metric.Int64Counter

	// RankDuration tracks how long ranking the installed apps takes.
	RankDuration metric.Float64Histogram

	// RankCandidates tracks how many candidates survive the threshold.
	RankCandidates metric.Int64Histogram

	// Launches counts launch attempts. Use with attribute.String("status", ...).
	Launches metric.Int64Counter

	// Utterances counts synthesis requests. Use with attribute.String("status", ...).
	Utterances metric.Int64Counter

	// UtteranceQueueDepth tracks utterances waiting to be spoken.
	UtteranceQueueDepth metric.Int64UpDownCounter

	// ActiveSessions is 1 while a listening attempt is in flight.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks control-surface request latency.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// in-process work such as ranking.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognitionOutcomes, err = m.Int64Counter("voicelaunch.recognition.outcomes",
		metric.WithDescription("Finished listening attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.RankDuration, err = m.Float64Histogram("voicelaunch.rank.duration",
		metric.WithDescription("Latency of ranking installed applications."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RankCandidates, err = m.Int64Histogram("voicelaunch.rank.candidates",
		metric.WithDescription("Number of candidates above the similarity threshold."),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 25),
	); err != nil {
		return nil, err
	}
	if met.Launches, err = m.Int64Counter("voicelaunch.launches",
		metric.WithDescription("Application launch attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("voicelaunch.utterances",
		metric.WithDescription("Synthesis requests by status."),
	); err != nil {
		return nil, err
	}
	if met.UtteranceQueueDepth, err = m.Int64UpDownCounter("voicelaunch.utterance_queue.depth",
		metric.WithDescription("Utterances waiting to be spoken."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voicelaunch.active_sessions",
		metric.WithDescription("Listening attempts currently in flight."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicelaunch.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordOutcome increments the recognition outcome counter.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	m.RecognitionOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordLaunch increments the launch counter with status "ok" or "error".
func (m *Metrics) RecordLaunch(ctx context.Context, err error) {
	m.Launches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status(err))),
	)
}

// RecordUtterance increments the utterance counter with the given status.
func (m *Metrics) RecordUtterance(ctx context.Context, st string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", st)),
	)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
