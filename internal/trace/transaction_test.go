package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransaction_FinishIsIdempotent(t *testing.T) {
	t.Parallel()

	txn := newTransaction("GET /users/[id]", "http.server", SourceRoute, nil)

	require.True(t, txn.finish())
	first := txn.EndTime()
	require.False(t, first.IsZero())

	assert.False(t, txn.finish(), "second finish must be a no-op")
	assert.Equal(t, first, txn.EndTime(), "end time must not move on second finish")
	assert.True(t, txn.Finished())
}

func TestTransaction_MutationsAfterFinishAreIgnored(t *testing.T) {
	t.Parallel()

	txn := newTransaction("GET /users/[id]", "http.server", SourceRoute, nil)
	txn.SetStatusCode(200)
	require.True(t, txn.finish())

	txn.SetStatusCode(500)
	txn.Rename("GET /other", SourceRoute)
	txn.SetTag("late", "tag")

	assert.Equal(t, 200, txn.StatusCode())
	assert.Equal(t, "GET /users/[id]", txn.Name())
	assert.Empty(t, txn.Tags())
}

func TestTransaction_Rename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		startName    string
		startSource  Source
		renameTo     string
		renameSource Source
		wantName     string
	}{
		{
			name:         "route replaces placeholder",
			startName:    Placeholder,
			startSource:  SourceCustom,
			renameTo:     "GET /users/[id]",
			renameSource: SourceRoute,
			wantName:     "GET /users/[id]",
		},
		{
			name:         "route replaces url",
			startName:    "GET /users/42",
			startSource:  SourceURL,
			renameTo:     "GET /users/[id]",
			renameSource: SourceRoute,
			wantName:     "GET /users/[id]",
		},
		{
			name:         "url does not downgrade route",
			startName:    "GET /users/[id]",
			startSource:  SourceRoute,
			renameTo:     "GET /users/42",
			renameSource: SourceURL,
			wantName:     "GET /users/[id]",
		},
		{
			name:         "latest route name wins",
			startName:    "GET /pages",
			startSource:  SourceRoute,
			renameTo:     "GET /pages/[slug]",
			renameSource: SourceRoute,
			wantName:     "GET /pages/[slug]",
		},
		{
			name:         "empty name is ignored",
			startName:    "GET /users/[id]",
			startSource:  SourceRoute,
			renameTo:     "",
			renameSource: SourceRoute,
			wantName:     "GET /users/[id]",
		},
		{
			name:         "placeholder never overwrites a real name",
			startName:    "GET /users/[id]",
			startSource:  SourceRoute,
			renameTo:     Placeholder,
			renameSource: SourceCustom,
			wantName:     "GET /users/[id]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			txn := newTransaction(tt.startName, "http.server", tt.startSource, nil)
			txn.Rename(tt.renameTo, tt.renameSource)
			assert.Equal(t, tt.wantName, txn.Name())
		})
	}
}

func TestTransaction_ChildSpanNesting(t *testing.T) {
	t.Parallel()

	txn := newTransaction("GET /pages", "http.server", SourceRoute, nil)

	finished := txn.StartChild("data.load")
	finished.Finish()

	open := txn.StartChild("render")

	require.True(t, txn.finish())

	spans := txn.Spans()
	require.Len(t, spans, 2)

	for _, sd := range spans {
		assert.False(t, sd.EndTime.IsZero(), "span %q must be closed", sd.Op)
		assert.False(t, sd.EndTime.After(txn.EndTime()),
			"span %q must finish before or at its parent's end", sd.Op)
	}

	// The open span was clamped exactly to the parent's end.
	assert.Equal(t, txn.EndTime(), open.EndTime())
}

func TestTransaction_SpanFinishIsIdempotent(t *testing.T) {
	t.Parallel()

	txn := newTransaction("GET /pages", "http.server", SourceRoute, nil)
	span := txn.StartChild("data.load")

	span.Finish()
	first := span.EndTime()
	time.Sleep(time.Millisecond)
	span.Finish()

	assert.Equal(t, first, span.EndTime())
}

func TestTransaction_LateChildIsZeroLength(t *testing.T) {
	t.Parallel()

	txn := newTransaction("GET /pages", "http.server", SourceRoute, nil)
	require.True(t, txn.finish())

	late := txn.StartChild("too.late")
	assert.Equal(t, txn.EndTime(), late.StartTime())
	assert.Equal(t, txn.EndTime(), late.EndTime())
	assert.Empty(t, txn.Spans(), "late children are not recorded on the transaction")
}

func TestTransaction_UniqueIDs(t *testing.T) {
	t.Parallel()

	a := newTransaction("GET /a", "http.server", SourceRoute, nil)
	b := newTransaction("GET /b", "http.server", SourceRoute, nil)

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}
