package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter records each event as a short-lived OpenTelemetry span.
// The span name is the event kind; run, step and node identifiers plus
// all Meta entries become attributes. Events carrying an "error" Meta
// field mark the span's status as error.
//
//	tracer := otel.Tracer("biflow")
//	exec := graph.NewExecutor(g, graph.WithEmitter(emit.NewOTelEmitter(tracer)))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter wraps an OpenTelemetry tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(ev Event) {
	if o.tracer == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, 3+len(ev.Meta))
	attrs = append(attrs,
		attribute.String("run.id", ev.RunID),
		attribute.Int("run.step", ev.Step),
		attribute.String("node.id", ev.NodeID),
	)
	for k, v := range ev.Meta {
		attrs = append(attrs, attribute.String("meta."+k, fmt.Sprintf("%v", v)))
	}
	_, span := o.tracer.Start(context.Background(), ev.Msg, trace.WithAttributes(attrs...))
	if errVal, failed := ev.Meta["error"]; failed {
		span.SetStatus(codes.Error, fmt.Sprintf("%v", errVal))
	}
	span.End()
}
