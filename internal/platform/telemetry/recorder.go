package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/tracewrap/internal/trace"
)

const instrumentationName = "github.com/jsamuelsen/tracewrap/telemetry"

// TraceRecorder exports finished transactions as OpenTelemetry spans. A
// transaction is replayed with its original timestamps: the root span gets
// the transaction's start/end, child spans nest beneath it, and captured
// error events become span error events.
type TraceRecorder struct {
	tracer  oteltrace.Tracer
	metrics *Metrics
}

// NewTraceRecorder creates a recorder using the globally registered tracer
// provider. Metrics may be nil.
func NewTraceRecorder(metrics *Metrics) *TraceRecorder {
	return &TraceRecorder{
		tracer:  otel.Tracer(instrumentationName),
		metrics: metrics,
	}
}

// NewTraceRecorderWithProvider creates a recorder bound to a specific tracer
// provider. Used by tests with an in-memory span recorder.
func NewTraceRecorderWithProvider(tp oteltrace.TracerProvider, metrics *Metrics) *TraceRecorder {
	return &TraceRecorder{
		tracer:  tp.Tracer(instrumentationName),
		metrics: metrics,
	}
}

// RecordTransaction implements trace.Recorder.
func (r *TraceRecorder) RecordTransaction(ctx context.Context, t *trace.Transaction) {
	if t == nil || !t.Finished() {
		return
	}

	// The request context may already be cancelled; the export must not be.
	ctx = context.WithoutCancel(ctx)
	ctx = r.withRemoteParent(ctx, t.Continuation())

	attrs := []attribute.KeyValue{
		attribute.String("tracewrap.transaction_id", t.ID()),
		attribute.String("tracewrap.source", string(t.Source())),
	}
	if t.StatusCode() != 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", t.StatusCode()))
	}
	for k, v := range t.Tags() {
		attrs = append(attrs, attribute.String(k, v))
	}

	ctx, root := r.tracer.Start(ctx, t.Name(),
		oteltrace.WithTimestamp(t.StartTime()),
		oteltrace.WithSpanKind(oteltrace.SpanKindServer),
		oteltrace.WithAttributes(attrs...),
	)

	for _, sd := range t.Spans() {
		_, child := r.tracer.Start(ctx, sd.Op,
			oteltrace.WithTimestamp(sd.StartTime),
		)
		child.End(oteltrace.WithTimestamp(sd.EndTime))
	}

	for _, event := range t.Events() {
		root.RecordError(event.Err,
			oteltrace.WithTimestamp(event.Timestamp),
			oteltrace.WithAttributes(
				attribute.String("exception.mechanism", event.Mechanism),
				attribute.Bool("exception.handled", event.Handled),
			),
		)
	}

	if t.StatusCode() >= http.StatusInternalServerError || len(t.Events()) > 0 {
		root.SetStatus(codes.Error, http.StatusText(t.StatusCode()))
	}

	root.End(oteltrace.WithTimestamp(t.EndTime()))

	if r.metrics != nil {
		r.metrics.RecordFinished(ctx, t)
	}
}

// withRemoteParent attaches the upstream span context carried in the
// continuation headers, so the exported trace continues the caller's trace.
func (r *TraceRecorder) withRemoteParent(ctx context.Context, cont *trace.Continuation) context.Context {
	if cont == nil || cont.TraceID == "" {
		return ctx
	}

	traceID, err := oteltrace.TraceIDFromHex(cont.TraceID)
	if err != nil {
		return ctx
	}
	spanID, err := oteltrace.SpanIDFromHex(cont.ParentSpanID)
	if err != nil {
		return ctx
	}

	var flags oteltrace.TraceFlags
	if cont.Sampled {
		flags = oteltrace.FlagsSampled
	}

	sc := oteltrace.NewSpanContext(oteltrace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	})
	return oteltrace.ContextWithRemoteSpanContext(ctx, sc)
}
