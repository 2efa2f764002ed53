package telemetry

import (
	"context"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ProviderFlusher implements trace.Flusher on top of the SDK tracer
// provider's ForceFlush, draining the batch span processor to the remote
// collector within the caller's deadline.
type ProviderFlusher struct {
	tp      *sdktrace.TracerProvider
	metrics *Metrics
}

// NewProviderFlusher creates a flusher. A nil tracer provider (telemetry
// disabled) yields a flusher whose Flush is a no-op. Metrics may be nil.
func NewProviderFlusher(tp *sdktrace.TracerProvider, metrics *Metrics) *ProviderFlusher {
	return &ProviderFlusher{tp: tp, metrics: metrics}
}

// Flush implements trace.Flusher.
func (f *ProviderFlusher) Flush(ctx context.Context) error {
	if f.tp == nil {
		return nil
	}

	start := time.Now()
	err := f.tp.ForceFlush(ctx)
	if f.metrics != nil {
		f.metrics.RecordFlush(ctx, time.Since(start), err)
	}
	return err
}
