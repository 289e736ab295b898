package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each Event into an OpenTelemetry span: the event's Msg
// is the span name, standard fields and Meta become attributes, and an
// "error" meta key sets the span's status. Spans are point-in-time (started
// and ended immediately) rather than representing a duration, since Event
// itself carries no start/end pair.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter wraps an OpenTelemetry tracer, typically otel.Tracer("agentforge").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event Event) {
	ctx := context.Background()
	_, span := o.tracer.Start(ctx, event.Msg)
	defer span.End()
	o.annotate(span, event)
}

func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)
		o.annotate(span, event)
		span.End()
	}
	return nil
}

// Flush force-flushes the process-wide tracer provider if it supports it
// (the SDK provider does; the no-op provider does not).
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (o *OTelEmitter) annotate(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("agentforge.run_id", event.RunID),
		attribute.Int("agentforge.step", event.Step),
		attribute.String("agentforge.node_id", event.NodeID),
	)
	o.addMetadataAttributes(span, event.Meta)
	o.addConcurrencyAttributes(span, event.Meta)
	if err, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, err)
		span.RecordError(fmt.Errorf("%s", err))
	}
}

// addMetadataAttributes maps an event's Meta onto span attributes, giving
// cost-tracking keys (graph/cost.go's CostTracker) their own OpenTelemetry
// namespace.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	if meta == nil {
		return
	}
	for key, value := range meta {
		if key == "step_id" || key == "order_key" || key == "attempt" {
			continue
		}
		attrKey := key
		switch key {
		case "tokens_in":
			attrKey = "agentforge.llm.tokens_in"
		case "tokens_out":
			attrKey = "agentforge.llm.tokens_out"
		case "cost_usd":
			attrKey = "agentforge.llm.cost_usd"
		case "latency_ms":
			attrKey = "agentforge.node.latency_ms"
		case "model":
			attrKey = "agentforge.llm.model"
		}
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}

// addConcurrencyAttributes surfaces the frontier's deterministic-replay
// bookkeeping (step_id, order_key, attempt) as span attributes, under the
// "agentforge" namespace like every other attribute this emitter sets.
func (o *OTelEmitter) addConcurrencyAttributes(span trace.Span, meta map[string]interface{}) {
	if meta == nil {
		return
	}
	if stepID, ok := meta["step_id"].(string); ok {
		span.SetAttributes(attribute.String("agentforge.step_id", stepID))
	}
	if orderKey, ok := meta["order_key"].(string); ok {
		span.SetAttributes(attribute.String("agentforge.order_key", orderKey))
	}
	if attempt, ok := meta["attempt"].(int); ok {
		span.SetAttributes(attribute.Int("agentforge.attempt", attempt))
	} else if attempt, ok := meta["attempt"].(int64); ok {
		span.SetAttributes(attribute.Int64("agentforge.attempt", attempt))
	}
}
