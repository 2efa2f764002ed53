package trace

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContinuationFromHeaders(t *testing.T) {
	t.Parallel()

	t.Run("traceparent with sampled flag", func(t *testing.T) {
		t.Parallel()

		h := http.Header{}
		h.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

		cont := ContinuationFromHeaders(h)
		require.NotNil(t, cont)
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", cont.TraceID)
		assert.Equal(t, "00f067aa0ba902b7", cont.ParentSpanID)
		assert.True(t, cont.Sampled)
	})

	t.Run("traceparent not sampled", func(t *testing.T) {
		t.Parallel()

		h := http.Header{}
		h.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-00")

		cont := ContinuationFromHeaders(h)
		require.NotNil(t, cont)
		assert.False(t, cont.Sampled)
	})

	t.Run("baggage carried alongside", func(t *testing.T) {
		t.Parallel()

		h := http.Header{}
		h.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
		h.Set("baggage", "tenant=acme,release=1.2.3")

		cont := ContinuationFromHeaders(h)
		require.NotNil(t, cont)
		assert.Contains(t, cont.Baggage, "tenant=acme")
		assert.Contains(t, cont.Baggage, "release=1.2.3")
	})

	t.Run("no headers yields nil", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, ContinuationFromHeaders(http.Header{}))
	})

	t.Run("malformed traceparent is ignored", func(t *testing.T) {
		t.Parallel()

		h := http.Header{}
		h.Set("traceparent", "not-a-traceparent")

		assert.Nil(t, ContinuationFromHeaders(h))
	})
}
