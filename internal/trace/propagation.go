package trace

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// propagator reads the W3C trace-continuation headers: traceparent (parent
// span id, trace id, sampling flag) and baggage (comma-separated key=value
// pairs). Both are optional on inbound requests.
var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// Continuation carries upstream trace identifiers extracted from inbound
// headers, so the exported root span attaches to the caller's trace instead
// of starting a new one.
type Continuation struct {
	TraceID      string
	ParentSpanID string
	Sampled      bool
	// Baggage is the propagated key=value context in W3C baggage encoding.
	Baggage string
}

// ContinuationFromHeaders extracts a continuation from inbound request
// headers. Returns nil when the request carries neither a valid traceparent
// nor baggage.
func ContinuationFromHeaders(h http.Header) *Continuation {
	ctx := propagator.Extract(context.Background(), propagation.HeaderCarrier(h))

	sc := oteltrace.SpanContextFromContext(ctx)
	bag := baggage.FromContext(ctx)

	if !sc.IsValid() && bag.Len() == 0 {
		return nil
	}

	cont := &Continuation{Baggage: bag.String()}
	if sc.IsValid() {
		cont.TraceID = sc.TraceID().String()
		cont.ParentSpanID = sc.SpanID().String()
		cont.Sampled = sc.IsSampled()
	}
	return cont
}
