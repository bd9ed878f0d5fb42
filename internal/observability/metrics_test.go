package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveStepRecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.ObserveStep(5*time.Millisecond, 7, 2)
	collector.ObserveStep(time.Millisecond, 3, 0)

	if got := testutil.ToFloat64(collector.Steps); got != 2 {
		t.Fatalf("conjunction_steps_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.AABBCollisions); got != 10 {
		t.Fatalf("conjunction_aabb_collisions_total = %v, want 10", got)
	}
	if got := testutil.ToFloat64(collector.Conjunctions); got != 2 {
		t.Fatalf("conjunction_events_total = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "conjunction_step_duration_seconds", nil); count != 2 {
		t.Fatalf("conjunction_step_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestObserveRunLabelsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.ObserveRun(time.Second, OutcomeOK, 12)
	collector.ObserveRun(0, OutcomeInvalid, 0)

	if got := testutil.ToFloat64(collector.Runs.WithLabelValues(OutcomeOK)); got != 1 {
		t.Fatalf("conjunction_runs_total{outcome=ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Runs.WithLabelValues(OutcomeInvalid)); got != 1 {
		t.Fatalf("conjunction_runs_total{outcome=invalid_config} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Objects); got != 12 {
		t.Fatalf("conjunction_objects = %v, want 12", got)
	}
	if count := histogramSampleCount(t, reg, "conjunction_run_duration_seconds", nil); count != 1 {
		t.Fatalf("conjunction_run_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var collector *EngineCollector
	collector.ObserveStep(time.Millisecond, 1, 1)
	collector.ObserveRun(time.Millisecond, OutcomeOK, 1)
}

func TestCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	second, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("second NewEngineCollector: %v", err)
	}

	first.ObserveStep(time.Millisecond, 0, 0)
	if got := testutil.ToFloat64(second.Steps); got != 1 {
		t.Fatalf("second collector should share counters, got %v", got)
	}
}

func TestMetricsHandlerExposesEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	collector.ObserveStep(time.Millisecond, 4, 1)
	collector.ObserveRun(10*time.Millisecond, OutcomeOK, 3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"conjunction_runs_total",
		"conjunction_steps_total",
		"conjunction_aabb_collisions_total",
		"conjunction_events_total",
		"conjunction_run_duration_seconds",
		"conjunction_step_duration_seconds",
		"conjunction_objects",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestTracingDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown returned %v", err)
	}
}

func TestTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, nil)
	if err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("CONJ_TRACING_ENABLED", "TRUE")
	t.Setenv("CONJ_TRACING_EXPORTER", "OTLP")
	t.Setenv("CONJ_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("CONJ_TRACING_SERVICE_NAME", "")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.SampleRatio != 0.25 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ServiceName != "conjunction-screener" {
		t.Fatalf("default service name = %q", cfg.ServiceName)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
