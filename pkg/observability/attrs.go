// Package observability provides sigla-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// sigla semantic convention attributes.
var (
	// Assessment attributes
	AttrAssessmentID = attribute.Key("sigla.assessment.id")
	AttrAreaID       = attribute.Key("sigla.area.id")
	AttrActor        = attribute.Key("sigla.actor")

	// Calculation attributes
	AttrIndicatorID = attribute.Key("sigla.indicator.id")
	AttrVerdict     = attribute.Key("sigla.verdict")

	// Workflow attributes
	AttrEventType = attribute.Key("sigla.event.type")

	// Sweep attributes
	AttrSweepAction = attribute.Key("sigla.sweep.action")

	// Storage attributes
	AttrStoreDriver = attribute.Key("sigla.store.driver")
)

// EvaluationAttrs creates attributes for one calculated response.
func EvaluationAttrs(indicatorID, verdict string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrIndicatorID.String(indicatorID),
		AttrVerdict.String(verdict),
	}
}

// TransitionAttrs creates attributes for one committed workflow event.
func TransitionAttrs(assessmentID, eventType, actor string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAssessmentID.String(assessmentID),
		AttrEventType.String(eventType),
		AttrActor.String(actor),
	}
}

// SweepAttrs creates attributes for one deadline sweep action.
func SweepAttrs(action, assessmentID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSweepAction.String(action),
		AttrAssessmentID.String(assessmentID),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
