package emit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns run events into OpenTelemetry spans.
//
// Each event becomes an instant span named after the event, carrying
// ragflow.run_id, ragflow.step and ragflow.node attributes plus every Meta
// entry. node_end spans are back-dated by their duration_ms so a trace view
// shows how long each node ran. run_error spans get an error status.
//
// Usage:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	defer tp.Shutdown(ctx)
//
//	emitter := emit.NewOTelEmitter(tp.Tracer("ragflow"))
//	g, _ := b.Compile(graph.WithEmitter(emitter))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter on top of tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit records the event as a span.
func (o *OTelEmitter) Emit(event Event) {
	end := time.Now()
	start := end
	if ms, ok := durationMillis(event.Meta["duration_ms"]); ok && event.Msg == NodeEnd {
		start = end.Add(-time.Duration(ms) * time.Millisecond)
	}

	_, span := o.tracer.Start(context.Background(), event.Msg, trace.WithTimestamp(start))
	span.SetAttributes(
		attribute.String("ragflow.run_id", event.RunID),
		attribute.Int("ragflow.step", event.Step),
		attribute.String("ragflow.node", event.NodeID),
	)
	span.SetAttributes(metaAttributes(event.Meta)...)

	if msg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, msg)
		span.RecordError(errors.New(msg))
	}
	span.End(trace.WithTimestamp(end))
}

// Flush forces export of pending spans when the tracer provider supports it
// (the SDK provider does). Call it before shutdown.
func Flush(ctx context.Context, tp trace.TracerProvider) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// metaAttributes converts event metadata to span attributes under the
// ragflow. namespace.
func metaAttributes(meta map[string]any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(meta))
	for _, k := range sortedMetaKeys(meta) {
		key := "ragflow." + k
		switch v := meta[k].(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		case []string:
			attrs = append(attrs, attribute.StringSlice(key, v))
		case time.Duration:
			attrs = append(attrs, attribute.Int64(key, v.Milliseconds()))
		default:
			attrs = append(attrs, attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
	return attrs
}

func durationMillis(v any) (int64, bool) {
	switch d := v.(type) {
	case int64:
		return d, true
	case int:
		return int64(d), true
	case float64:
		return int64(d), true
	default:
		return 0, false
	}
}

func sortedMetaKeys(meta map[string]any) []string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
