package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jsamuelsen/tracewrap/internal/trace"
)

// Metrics holds instrumentation metrics for the transaction lifecycle:
// finished transactions, flush outcomes, and flush latency.
type Metrics struct {
	transactionsFinished metric.Int64Counter
	flushDuration        metric.Float64Histogram
	flushFailures        metric.Int64Counter
}

// NewMetrics creates lifecycle metrics on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	transactionsFinished, err := meter.Int64Counter(
		"tracewrap.transactions.finished",
		metric.WithDescription("Total number of finished transactions"),
	)
	if err != nil {
		return nil, err
	}

	flushDuration, err := meter.Float64Histogram(
		"tracewrap.flush.duration",
		metric.WithDescription("Telemetry flush duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	flushFailures, err := meter.Int64Counter(
		"tracewrap.flush.failures",
		metric.WithDescription("Total number of failed or timed out flushes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transactionsFinished: transactionsFinished,
		flushDuration:        flushDuration,
		flushFailures:        flushFailures,
	}, nil
}

// RecordFinished counts one finished transaction.
func (m *Metrics) RecordFinished(ctx context.Context, t *trace.Transaction) {
	attrs := []attribute.KeyValue{
		attribute.String("transaction.source", string(t.Source())),
		attribute.Int("http.status_code", t.StatusCode()),
		attribute.Int("transaction.events", len(t.Events())),
	}
	m.transactionsFinished.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFlush records one flush attempt's duration and outcome.
func (m *Metrics) RecordFlush(ctx context.Context, elapsed time.Duration, err error) {
	m.flushDuration.Record(ctx, elapsed.Seconds())
	if err != nil {
		m.flushFailures.Add(ctx, 1)
	}
}
