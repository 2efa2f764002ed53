//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/tracewrap/internal/adapters/datasource"
	adapterhttp "github.com/jsamuelsen/tracewrap/internal/adapters/http"
	"github.com/jsamuelsen/tracewrap/internal/adapters/http/handlers"
	"github.com/jsamuelsen/tracewrap/internal/adapters/http/middleware"
	"github.com/jsamuelsen/tracewrap/internal/app"
	"github.com/jsamuelsen/tracewrap/internal/loader"
	"github.com/jsamuelsen/tracewrap/internal/platform/config"
	"github.com/jsamuelsen/tracewrap/internal/ports"
	"github.com/jsamuelsen/tracewrap/internal/trace"
)

// capturingRecorder collects finished transactions across requests.
type capturingRecorder struct {
	mu       sync.Mutex
	recorded []*trace.Transaction
}

func (r *capturingRecorder) RecordTransaction(_ context.Context, t *trace.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, t)
}

func (r *capturingRecorder) transactions() []*trace.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*trace.Transaction(nil), r.recorded...)
}

// countingFlusher counts flush attempts.
type countingFlusher struct {
	calls atomic.Int64
}

func (f *countingFlusher) Flush(_ context.Context) error {
	f.calls.Add(1)
	return nil
}

type lifecycleEnv struct {
	server     *httptest.Server
	recorder   *capturingRecorder
	flusher    *countingFlusher
	controller *trace.Controller
}

// newLifecycleEnv assembles the production request path in-process: the full
// middleware chain, page handlers, and the transaction lifecycle engine with
// capturing telemetry fakes.
func newLifecycleEnv(t *testing.T) *lifecycleEnv {
	t.Helper()

	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := &capturingRecorder{}
	flusher := &countingFlusher{}

	controller := trace.NewController(trace.ControllerConfig{
		Recorder:     recorder,
		Flusher:      flusher,
		Logger:       logger,
		FlushTimeout: 2 * time.Second,
	})

	store := datasource.NewSeededStore()
	registry := ports.NewHealthRegistry()
	require.NoError(t, registry.Register(store))

	service := app.NewPageService(app.PageServiceConfig{
		Users:    store,
		Articles: store,
		Logger:   logger,
	})
	wrapper := loader.New(loader.Config{
		Controller:       controller,
		Logger:           logger,
		Enabled:          true,
		ExcludedSuffixes: []string{".js.map"},
	})

	engine := gin.New()
	adapterhttp.SetupRouter(engine, adapterhttp.RouterConfig{
		Logger: logger,
		AppConfig: &config.AppConfig{
			Name:        "tracewrap-integration",
			Environment: "test",
			Version:     "0.0.0",
		},
		TracingConfig: &config.TracingConfig{
			Enabled:       true,
			ExcludedPaths: []string{"/-/"},
		},
		Controller:    controller,
		HealthHandler: handlers.NewHealthHandler(registry, handlers.BuildInfo{Version: "0.0.0"}),
		PageHandler:   handlers.NewPageHandler(service, wrapper, store.UserIDs()),
		Timeout:       10 * time.Second,
	})

	// Extra route for the panic path.
	engine.GET("/boom", func(_ *gin.Context) {
		panic("kaboom")
	})

	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	return &lifecycleEnv{
		server:     server,
		recorder:   recorder,
		flusher:    flusher,
		controller: controller,
	}
}

func (e *lifecycleEnv) get(t *testing.T, path string, headers map[string]string) *http.Response {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.server.URL+path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

// TestLifecycle_UserPageEndToEnd verifies the full finish sequence for one
// instrumented request: route-template naming, response correlation header,
// one recorded transaction, and one flush before the response is done.
func TestLifecycle_UserPageEndToEnd(t *testing.T) {
	env := newLifecycleEnv(t)

	resp := env.get(t, "/pages/users/u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	headerID := resp.Header.Get(middleware.HeaderTransactionID)
	assert.NotEmpty(t, headerID)

	txns := env.recorder.transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, "GET /pages/users/[id]", txns[0].Name())
	assert.Equal(t, headerID, txns[0].ID())
	assert.Equal(t, http.StatusOK, txns[0].StatusCode())

	assert.Equal(t, int64(1), env.flusher.calls.Load())
	assert.Equal(t, 0, env.controller.Registry().Len())
}

// TestLifecycle_StaleTransactionHeader verifies that a transaction ID that no
// longer resolves in the registry starts a fresh transaction instead of
// failing the request.
func TestLifecycle_StaleTransactionHeader(t *testing.T) {
	env := newLifecycleEnv(t)

	resp := env.get(t, "/pages/users/u2", map[string]string{
		middleware.HeaderTransactionID: "00000000-0000-0000-0000-000000000000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	headerID := resp.Header.Get(middleware.HeaderTransactionID)
	assert.NotEmpty(t, headerID)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", headerID)
}

// TestLifecycle_PanicStillFinishesTransaction verifies that a handler panic
// seals and exports the transaction with a 500 before the error envelope is
// produced.
func TestLifecycle_PanicStillFinishesTransaction(t *testing.T) {
	env := newLifecycleEnv(t)

	resp := env.get(t, "/boom", nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	txns := env.recorder.transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, "GET /boom", txns[0].Name())
	assert.Equal(t, http.StatusInternalServerError, txns[0].StatusCode())
	require.NotEmpty(t, txns[0].Events())

	assert.Equal(t, 0, env.controller.Registry().Len())
}

// TestLifecycle_HealthEndpointsNotInstrumented verifies the internal route
// group is excluded from transaction tracking.
func TestLifecycle_HealthEndpointsNotInstrumented(t *testing.T) {
	env := newLifecycleEnv(t)

	resp := env.get(t, "/-/live", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Empty(t, resp.Header.Get(middleware.HeaderTransactionID))
	assert.Empty(t, env.recorder.transactions())
	assert.Equal(t, int64(0), env.flusher.calls.Load())
}

// TestLifecycle_ConcurrentRequestsAreIsolated verifies concurrent requests
// get distinct transactions and leave no registry residue.
func TestLifecycle_ConcurrentRequestsAreIsolated(t *testing.T) {
	env := newLifecycleEnv(t)

	const requests = 12

	paths := []string{"/pages/users/u1", "/pages/users/u2", "/pages/users/u3"}

	var wg sync.WaitGroup
	for i := range requests {
		wg.Go(func() {
			resp, err := http.Get(env.server.URL + paths[i%len(paths)])
			if assert.NoError(t, err) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				resp.Body.Close()
			}
		})
	}
	wg.Wait()

	txns := env.recorder.transactions()
	require.Len(t, txns, requests)

	seen := make(map[string]bool, requests)
	for _, txn := range txns {
		assert.False(t, seen[txn.ID()], "transaction IDs must be unique")
		seen[txn.ID()] = true
	}

	assert.Equal(t, int64(requests), env.flusher.calls.Load())
	assert.Equal(t, 0, env.controller.Registry().Len())
}
