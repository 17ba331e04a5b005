package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttr returns the int64 sum data points of a metric keyed by the value
// of attribute key.
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name, key string) map[string]int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, met.Data)
	}
	out := make(map[string]int64, len(sum.DataPoints))
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key(key))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestRecordOutcome(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordOutcome(ctx, OutcomeLaunched)
	m.RecordOutcome(ctx, OutcomeLaunched)
	m.RecordOutcome(ctx, OutcomeNoMatch)
	m.RecordOutcome(ctx, OutcomeError)

	got := sumByAttr(t, collect(t, reader), "voicelaunch.recognition.outcomes", "outcome")
	want := map[string]int64{OutcomeLaunched: 2, OutcomeNoMatch: 1, OutcomeError: 1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("outcome %q = %d, want %d", k, got[k], v)
		}
	}
	if got[OutcomeStopped] != 0 {
		t.Errorf("outcome %q = %d, want 0", OutcomeStopped, got[OutcomeStopped])
	}
}

func TestRecordLaunch(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLaunch(ctx, nil)
	m.RecordLaunch(ctx, errors.New("no such file"))
	m.RecordLaunch(ctx, nil)

	got := sumByAttr(t, collect(t, reader), "voicelaunch.launches", "status")
	if got["ok"] != 2 || got["error"] != 1 {
		t.Errorf("launches = %v, want ok=2 error=1", got)
	}
}

func TestRecordUtterance(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUtterance(ctx, "ok")
	m.RecordUtterance(ctx, "fallback_locale")

	got := sumByAttr(t, collect(t, reader), "voicelaunch.utterances", "status")
	if got["ok"] != 1 || got["fallback_locale"] != 1 {
		t.Errorf("utterances = %v", got)
	}
}

func TestUpDownCounters(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)
	m.ActiveSessions.Add(ctx, 1)
	m.UtteranceQueueDepth.Add(ctx, 3)
	m.UtteranceQueueDepth.Add(ctx, -1)

	rm := collect(t, reader)
	tests := []struct {
		name string
		want int64
	}{
		{"voicelaunch.active_sessions", 1},
		{"voicelaunch.utterance_queue.depth", 2},
	}
	for _, tt := range tests {
		got := sumByAttr(t, rm, tt.name, "unused")
		if got[""] != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got[""], tt.want)
		}
	}
}

func TestRankHistograms(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RankDuration.Record(ctx, 0.0004)
	m.RankDuration.Record(ctx, 0.002)
	m.RankCandidates.Record(ctx, 0)
	m.RankCandidates.Record(ctx, 3)

	rm := collect(t, reader)

	dur := findMetric(rm, "voicelaunch.rank.duration")
	if dur == nil {
		t.Fatal("rank duration metric not found")
	}
	fh, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok || len(fh.DataPoints) != 1 {
		t.Fatalf("rank duration data = %#v", dur.Data)
	}
	if fh.DataPoints[0].Count != 2 {
		t.Errorf("rank duration count = %d, want 2", fh.DataPoints[0].Count)
	}

	cands := findMetric(rm, "voicelaunch.rank.candidates")
	if cands == nil {
		t.Fatal("rank candidates metric not found")
	}
	ih, ok := cands.Data.(metricdata.Histogram[int64])
	if !ok || len(ih.DataPoints) != 1 {
		t.Fatalf("rank candidates data = %#v", cands.Data)
	}
	if ih.DataPoints[0].Sum != 3 {
		t.Errorf("rank candidates sum = %d, want 3", ih.DataPoints[0].Sum)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a == nil || a != b {
		t.Fatalf("DefaultMetrics() = %p, %p; want same non-nil instance", a, b)
	}
}
