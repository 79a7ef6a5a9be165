package telemetry

import (
	"fmt"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

type SpanAttributes struct {
	ActionCategory string

	Session     optional[string]        // fuzz.session
	PhaseIndex  optional[int]           // fuzz.phase.index
	PhaseEngine optional[string]        // fuzz.phase.engine
	RunTime     optional[time.Duration] // fuzz.phase.run_time
	TargetBin   optional[string]        // fuzz.target.binary
	corpusSize  optional[int]           // fuzz.corpus.size

	extraAttributes map[string]any
}

func NewSpanAttributes(actionCategory ActionCategory) *SpanAttributes {
	return &SpanAttributes{
		ActionCategory:  actionCategory.String(),
		extraAttributes: make(map[string]any),
	}
}

// EmptySpanAttributes has no action category; fill it in later.
func EmptySpanAttributes() *SpanAttributes {
	return &SpanAttributes{
		extraAttributes: make(map[string]any),
	}
}

// Merge copies the fields set in other but not in o. The action category
// of other always wins when set.
func (o *SpanAttributes) Merge(other *SpanAttributes) {
	if other == nil {
		return
	}

	if other.ActionCategory != "" {
		o.ActionCategory = other.ActionCategory
	}

	mergeOptional(&o.Session, &other.Session)
	mergeOptional(&o.PhaseIndex, &other.PhaseIndex)
	mergeOptional(&o.PhaseEngine, &other.PhaseEngine)
	mergeOptional(&o.RunTime, &other.RunTime)
	mergeOptional(&o.TargetBin, &other.TargetBin)
	mergeOptional(&o.corpusSize, &other.corpusSize)

	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	for k, v := range other.extraAttributes {
		if _, exists := o.extraAttributes[k]; !exists {
			o.extraAttributes[k] = v
		}
	}
}

func (o *SpanAttributes) WithSession(val string) *SpanAttributes {
	o.Session.Set(val)
	return o
}

func (o *SpanAttributes) WithPhase(index int, engine string) *SpanAttributes {
	o.PhaseIndex.Set(index)
	o.PhaseEngine.Set(engine)
	return o
}

func (o *SpanAttributes) WithRunTime(val time.Duration) *SpanAttributes {
	o.RunTime.Set(val)
	return o
}

func (o *SpanAttributes) WithTargetBinary(val string) *SpanAttributes {
	o.TargetBin.Set(val)
	return o
}

func (o *SpanAttributes) WithCorpusSize(val int) *SpanAttributes {
	o.corpusSize.Set(val)
	return o
}

func (o *SpanAttributes) WithExtraAttribute(key string, val any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	o.extraAttributes[key] = val
	return o
}

func (o *SpanAttributes) WithExtraAttributes(attrs map[string]any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	maps.Copy(o.extraAttributes, attrs)
	return o
}

func (o SpanAttributes) Attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	attrs = append(attrs, attribute.String("fuzz.action.category", o.ActionCategory))
	if o.Session.set {
		attrs = append(attrs, attribute.String("fuzz.session", o.Session.val))
	}
	if o.PhaseIndex.set {
		attrs = append(attrs, attribute.Int("fuzz.phase.index", o.PhaseIndex.val))
	}
	if o.PhaseEngine.set {
		attrs = append(attrs, attribute.String("fuzz.phase.engine", o.PhaseEngine.val))
	}
	if o.RunTime.set {
		attrs = append(attrs, attribute.String("fuzz.phase.run_time", o.RunTime.val.String()))
	}
	if o.TargetBin.set {
		attrs = append(attrs, attribute.String("fuzz.target.binary", o.TargetBin.val))
	}
	if o.corpusSize.set {
		attrs = append(attrs, attribute.Int("fuzz.corpus.size", o.corpusSize.val))
	}

	for k, v := range o.extraAttributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	return attrs
}

type EventAttributes []attribute.KeyValue

func NewEventAttributes(attributes map[string]string) EventAttributes {
	attrs := make(EventAttributes, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

type optional[T any] struct {
	val T
	set bool
}

func (o *optional[T]) Set(val T) { o.val = val; o.set = true }

func mergeOptional[T any](target, source *optional[T]) {
	if !target.set && source.set {
		target.val = source.val
		target.set = true
	}
}
