package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingEmitter(t *testing.T) (*OTelEmitter, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelEmitter(otel.Tracer("test")), exporter
}

func TestOTelEmitter_EmitCreatesOneEndedSpanWithStandardAttributes(t *testing.T) {
	emitter, exporter := newRecordingEmitter(t)

	emitter.Emit(Event{RunID: "run-001", Step: 1, NodeID: "nodeA", Msg: "node_start",
		Meta: map[string]interface{}{"node_type": "llm", "tokens": 150}})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "node_start" {
		t.Errorf("span name = %q, want node_start", span.Name)
	}
	if !span.EndTime.After(span.StartTime) {
		t.Error("span was not ended")
	}

	attrs := attributeMap(span.Attributes)
	if attrs["agentforge.run_id"] != "run-001" || attrs["agentforge.node_id"] != "nodeA" {
		t.Errorf("unexpected standard attributes: %+v", attrs)
	}
	if attrs["node_type"] != "llm" || attrs["tokens"] != int64(150) {
		t.Errorf("unexpected metadata attributes: %+v", attrs)
	}
}

func TestOTelEmitter_EmitSetsErrorStatusFromMeta(t *testing.T) {
	emitter, exporter := newRecordingEmitter(t)

	emitter.Emit(Event{RunID: "run-001", NodeID: "nodeA", Msg: "node_error",
		Meta: map[string]interface{}{"error": "validation failed"}})

	span := exporter.GetSpans()[0]
	if span.Status.Code != codes.Error || span.Status.Description != "validation failed" {
		t.Errorf("unexpected status: %+v", span.Status)
	}
	if len(span.Events) == 0 {
		t.Error("expected a recorded error event")
	}
}

func TestOTelEmitter_EmitBatchCreatesOneSpanPerEventInOrder(t *testing.T) {
	emitter, exporter := newRecordingEmitter(t)

	events := []Event{
		{RunID: "run-001", Step: 1, NodeID: "nodeA", Msg: "node_start"},
		{RunID: "run-001", Step: 1, NodeID: "nodeA", Msg: "node_end"},
		{RunID: "run-001", Step: 2, NodeID: "nodeB", Msg: "node_start"},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	want := []string{"node_start", "node_end", "node_start"}
	for i, span := range spans {
		if span.Name != want[i] {
			t.Errorf("span[%d] name = %q, want %q", i, span.Name, want[i])
		}
	}
}

func TestOTelEmitter_EmitBatchEmptyCreatesNoSpans(t *testing.T) {
	emitter, exporter := newRecordingEmitter(t)
	if err := emitter.EmitBatch(context.Background(), nil); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if len(exporter.GetSpans()) != 0 {
		t.Error("expected no spans for an empty batch")
	}
}

func TestOTelEmitter_FlushForcesExportThroughBatchProcessor(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{RunID: "run-001", NodeID: "nodeA", Msg: "node_start"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := emitter.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(exporter.GetSpans()) != 1 {
		t.Errorf("expected 1 span after flush, got %d", len(exporter.GetSpans()))
	}
}

func TestOTelEmitter_ConcurrencyAttributesSurfaceReplayBookkeeping(t *testing.T) {
	emitter, exporter := newRecordingEmitter(t)

	emitter.Emit(Event{RunID: "run-001", NodeID: "nodeA", Msg: "node_start",
		Meta: map[string]interface{}{"step_id": "step-abc123", "order_key": "00000001:0", "attempt": 2}})

	attrs := attributeMap(exporter.GetSpans()[0].Attributes)
	if attrs["agentforge.step_id"] != "step-abc123" {
		t.Errorf("step_id = %v", attrs["agentforge.step_id"])
	}
	if attrs["agentforge.order_key"] != "00000001:0" {
		t.Errorf("order_key = %v", attrs["agentforge.order_key"])
	}
	if attrs["agentforge.attempt"] != int64(2) {
		t.Errorf("attempt = %v", attrs["agentforge.attempt"])
	}
}

func TestOTelEmitter_MetadataTypeConversions(t *testing.T) {
	emitter, exporter := newRecordingEmitter(t)

	emitter.Emit(Event{RunID: "run-001", NodeID: "nodeA", Msg: "test_types", Meta: map[string]interface{}{
		"string_val":   "hello",
		"int_val":      42,
		"int64_val":    int64(99),
		"float64_val":  3.14,
		"bool_val":     true,
		"duration_val": 250 * time.Millisecond,
	}})

	attrs := attributeMap(exporter.GetSpans()[0].Attributes)
	cases := map[string]interface{}{
		"string_val": "hello", "int_val": int64(42), "int64_val": int64(99),
		"float64_val": 3.14, "bool_val": true, "duration_val": int64(250),
	}
	for key, want := range cases {
		if attrs[key] != want {
			t.Errorf("%s = %v, want %v", key, attrs[key], want)
		}
	}
}

func TestOTelEmitter_NilMetaDoesNotPanic(t *testing.T) {
	emitter, exporter := newRecordingEmitter(t)
	emitter.Emit(Event{RunID: "run-001", NodeID: "nodeA", Msg: "node_start", Meta: nil})

	if len(exporter.GetSpans()) != 1 {
		t.Fatalf("expected 1 span, got %d", len(exporter.GetSpans()))
	}
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}
