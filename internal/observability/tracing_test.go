package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartStepSpanRecordsWindow(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, parent := tp.Tracer("test").Start(context.Background(), "conjunctions.run")
	_, span := StartStepSpan(ctx, tp.Tracer("test"), 3, 1.5, 2.25)
	span.End()
	parent.End()

	ended := rec.Ended()
	if len(ended) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(ended))
	}
	step := ended[0]
	if step.Name() != "conjunctions.step" {
		t.Fatalf("span name = %q", step.Name())
	}
	if step.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Fatalf("step span is not a child of the run span")
	}

	want := map[attribute.Key]attribute.Value{
		"conj.step": attribute.IntValue(3),
		"conj.t0":   attribute.Float64Value(1.5),
		"conj.t1":   attribute.Float64Value(2.25),
	}
	got := make(map[attribute.Key]attribute.Value)
	for _, kv := range step.Attributes() {
		got[kv.Key] = kv.Value
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("attribute %s = %v, want %v", k, got[k].Emit(), v.Emit())
		}
	}
}

func TestTracerUsesGlobalProvider(t *testing.T) {
	if Tracer("conjunction-screener/test") == nil {
		t.Fatalf("Tracer returned nil")
	}
}
