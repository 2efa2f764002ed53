package telemetry

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/tracewrap/internal/trace"
)

func newTestRecorder(t *testing.T) (*TraceRecorder, *tracetest.SpanRecorder) {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})

	return NewTraceRecorderWithProvider(tp, nil), sr
}

func finishedTransaction(t *testing.T, rec trace.Recorder, opts trace.StartOptions, mutate func(*trace.Transaction)) *trace.Transaction {
	t.Helper()

	ctrl := trace.NewController(trace.ControllerConfig{Recorder: rec})
	txn := ctrl.StartOrResume(opts)
	if mutate != nil {
		mutate(txn)
	}
	ctrl.Finish(context.Background(), txn)
	return txn
}

func attrValue(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTraceRecorderExportsRootSpan(t *testing.T) {
	t.Parallel()

	rec, sr := newTestRecorder(t)

	txn := finishedTransaction(t, rec, trace.StartOptions{
		Name:   "GET /users/[id]",
		Op:     "http.server",
		Source: trace.SourceRoute,
	}, func(txn *trace.Transaction) {
		txn.SetStatusCode(http.StatusOK)
		txn.SetTag("tenant", "acme")
	})

	spans := sr.Ended()
	require.Len(t, spans, 1)

	root := spans[0]
	assert.Equal(t, "GET /users/[id]", root.Name())
	assert.Equal(t, oteltrace.SpanKindServer, root.SpanKind())
	assert.Equal(t, txn.StartTime(), root.StartTime())
	assert.Equal(t, txn.EndTime(), root.EndTime())

	v, ok := attrValue(root.Attributes(), "tracewrap.transaction_id")
	require.True(t, ok)
	assert.Equal(t, txn.ID(), v.AsString())

	v, ok = attrValue(root.Attributes(), "http.response.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusOK), v.AsInt64())

	v, ok = attrValue(root.Attributes(), "tenant")
	require.True(t, ok)
	assert.Equal(t, "acme", v.AsString())

	assert.Equal(t, codes.Unset, root.Status().Code)
}

func TestTraceRecorderReplaysChildSpans(t *testing.T) {
	t.Parallel()

	rec, sr := newTestRecorder(t)

	finishedTransaction(t, rec, trace.StartOptions{
		Name:   "GET /orders",
		Source: trace.SourceRoute,
	}, func(txn *trace.Transaction) {
		txn.StartChild("loader.server").Finish()
		txn.StartChild("loader.static").Finish()
	})

	spans := sr.Ended()
	require.Len(t, spans, 3)

	// Children end before the root span, so they come first.
	var root sdktrace.ReadOnlySpan
	ops := make([]string, 0, 2)
	for _, s := range spans {
		if s.Parent().IsValid() {
			ops = append(ops, s.Name())
			assert.Equal(t, spans[2].SpanContext().TraceID(), s.SpanContext().TraceID())
		} else {
			root = s
		}
	}
	require.NotNil(t, root)
	assert.ElementsMatch(t, []string{"loader.server", "loader.static"}, ops)
}

func TestTraceRecorderRecordsErrorEvents(t *testing.T) {
	t.Parallel()

	rec, sr := newTestRecorder(t)

	ctrl := trace.NewController(trace.ControllerConfig{Recorder: rec})
	txn := ctrl.StartOrResume(trace.StartOptions{
		Name:   "GET /boom",
		Source: trace.SourceRoute,
	})
	txn.SetStatusCode(http.StatusInternalServerError)

	scope := trace.NewScope(nil)
	scope.SetTransaction(txn)
	scope.CaptureError(errors.New("database unavailable"), "middleware")

	ctrl.Finish(context.Background(), txn)

	spans := sr.Ended()
	require.Len(t, spans, 1)

	root := spans[0]
	assert.Equal(t, codes.Error, root.Status().Code)

	require.Len(t, root.Events(), 1)
	event := root.Events()[0]
	assert.Equal(t, "exception", event.Name)

	v, ok := attrValue(event.Attributes, "exception.mechanism")
	require.True(t, ok)
	assert.Equal(t, "middleware", v.AsString())
}

func TestTraceRecorderContinuesUpstreamTrace(t *testing.T) {
	t.Parallel()

	rec, sr := newTestRecorder(t)

	h := http.Header{}
	h.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	cont := trace.ContinuationFromHeaders(h)
	require.NotNil(t, cont)

	finishedTransaction(t, rec, trace.StartOptions{
		Name:         "GET /downstream",
		Source:       trace.SourceRoute,
		Continuation: cont,
	}, nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)

	root := spans[0]
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", root.SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", root.Parent().SpanID().String())
	assert.True(t, root.Parent().IsRemote())
}

func TestTraceRecorderSkipsUnfinished(t *testing.T) {
	t.Parallel()

	rec, sr := newTestRecorder(t)

	ctrl := trace.NewController(trace.ControllerConfig{})
	txn := ctrl.StartOrResume(trace.StartOptions{Name: "GET /open", Source: trace.SourceRoute})

	rec.RecordTransaction(context.Background(), txn)
	rec.RecordTransaction(context.Background(), nil)

	assert.Empty(t, sr.Ended())
}
