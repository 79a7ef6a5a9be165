package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

type Tracer interface {
	Start()
	WithAttributes(attributes *SpanAttributes) Tracer
	AddEvent(name string, attributes EventAttributes)
	SetStatus(code codes.Code, message string)
	Spawn(spanName string) Tracer
	AddLink(spanContext trace.SpanContext)
	Export() string
	End()
}

type TracerKey struct{} // stores the current Tracer in a context

// FromContext returns the tracer stored under TracerKey, or a DummyTracer.
func FromContext(ctx context.Context) Tracer {
	if tracer, ok := ctx.Value(TracerKey{}).(Tracer); ok && tracer != nil {
		return tracer
	}
	return &DummyTracer{}
}

type TracerFactory struct {
	telemetry Telemetry
}

type TracerFactoryParams struct {
	fx.In
	Telemetry Telemetry `optional:"true"`
}

func NewTracerFactory(p TracerFactoryParams) *TracerFactory {
	return &TracerFactory{telemetry: p.Telemetry}
}

func (t *TracerFactory) enabled() bool {
	return t != nil && t.telemetry != nil && t.telemetry.GetTracer() != nil
}

func (t *TracerFactory) NewTracer(ctx context.Context, spanName string) Tracer {
	if !t.enabled() {
		return &DummyTracer{}
	}
	return NewTelemetryTracer(ctx, t.telemetry.GetTracer(), spanName)
}

// NewTracerWithLinks returns a tracer linked to previously exported spans.
// Links that cannot be decoded are skipped.
func (t *TracerFactory) NewTracerWithLinks(ctx context.Context, links []string, spanName string) Tracer {
	if !t.enabled() {
		return &DummyTracer{}
	}
	tracer := t.NewTracer(ctx, spanName)
	for _, link := range links {
		if link == "" {
			continue
		}
		spanContext, err := spanContextFromRaw(link)
		if err != nil || !spanContext.IsValid() {
			continue
		}
		tracer.AddLink(spanContext)
	}
	return tracer
}

// A dummy tracer that does nothing when telemetry is not enabled
type DummyTracer struct{}

func (t *DummyTracer) Start()                                           {}
func (t *DummyTracer) WithAttributes(attributes *SpanAttributes) Tracer { return t }
func (t *DummyTracer) AddEvent(name string, attributes EventAttributes) {}
func (t *DummyTracer) SetStatus(code codes.Code, message string)        {}
func (t *DummyTracer) Spawn(spanName string) Tracer                     { return t }
func (t *DummyTracer) AddLink(spanContext trace.SpanContext)            {}
func (t *DummyTracer) Export() string                                   { return "" }
func (t *DummyTracer) End()                                             {}
