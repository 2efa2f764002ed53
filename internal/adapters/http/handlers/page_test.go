package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/tracewrap/internal/adapters/datasource"
	"github.com/jsamuelsen/tracewrap/internal/adapters/http/middleware"
	"github.com/jsamuelsen/tracewrap/internal/app"
	"github.com/jsamuelsen/tracewrap/internal/loader"
	"github.com/jsamuelsen/tracewrap/internal/trace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingExporter collects finished transactions.
type recordingExporter struct {
	mu       sync.Mutex
	recorded []*trace.Transaction
}

func (r *recordingExporter) RecordTransaction(_ context.Context, t *trace.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, t)
}

func (r *recordingExporter) transactions() []*trace.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*trace.Transaction(nil), r.recorded...)
}

type noopFlusher struct{}

func (noopFlusher) Flush(_ context.Context) error { return nil }

type pageTestEnv struct {
	engine     *gin.Engine
	exporter   *recordingExporter
	controller *trace.Controller
}

// newPageTestEnv builds the full request path: transaction middleware in
// front of the page handler, sharing one lifecycle controller.
func newPageTestEnv(t *testing.T) *pageTestEnv {
	t.Helper()

	exporter := &recordingExporter{}
	controller := trace.NewController(trace.ControllerConfig{
		Recorder: exporter,
		Flusher:  noopFlusher{},
	})

	store := datasource.NewSeededStore()
	service := app.NewPageService(app.PageServiceConfig{
		Users:    store,
		Articles: store,
	})
	wrapper := loader.New(loader.Config{
		Controller: controller,
		Enabled:    true,
	})
	handler := NewPageHandler(service, wrapper, store.UserIDs())

	engine := gin.New()
	engine.Use(middleware.Transaction(middleware.TransactionConfig{
		Controller: controller,
		Enabled:    true,
	}))
	handler.RegisterPageRoutes(engine.Group("/"))

	return &pageTestEnv{
		engine:     engine,
		exporter:   exporter,
		controller: controller,
	}
}

func (e *pageTestEnv) get(path string) (*httptest.ResponseRecorder, *PageResponse) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	e.engine.ServeHTTP(w, req)

	var page PageResponse
	if json.Unmarshal(w.Body.Bytes(), &page) != nil {
		return w, nil
	}

	return w, &page
}

func TestPageHandler_GetUserPage(t *testing.T) {
	t.Run("assembles page with transaction handoff", func(t *testing.T) {
		env := newPageTestEnv(t)

		w, page := env.get("/pages/users/u1")

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, page)
		assert.Equal(t, "/users/:id", page.Route)
		assert.Equal(t, "Ada Lovelace", page.Title)
		assert.Contains(t, page.Props, "user")
		assert.Contains(t, page.Props, "articles")

		id, ok := page.Props[loader.TransactionIDKey].(string)
		require.True(t, ok, "props should carry the reserved transaction ID key")
		assert.NotEmpty(t, id)
	})

	t.Run("loader joins the request transaction", func(t *testing.T) {
		env := newPageTestEnv(t)

		w, page := env.get("/pages/users/u1")
		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, page)

		txns := env.exporter.transactions()
		require.Len(t, txns, 1, "one transaction for the whole request")

		txn := txns[0]
		assert.Equal(t, "GET /pages/users/[id]", txn.Name())
		assert.Equal(t, page.Props[loader.TransactionIDKey], txn.ID())
		assert.Equal(t, http.StatusOK, txn.StatusCode())

		ops := make([]string, 0, len(txn.Spans()))
		for _, s := range txn.Spans() {
			ops = append(ops, s.Op)
		}
		assert.Contains(t, ops, "loader.server")

		assert.Equal(t, 0, env.controller.Registry().Len())
	})

	t.Run("unknown user is 404 and transaction still finishes", func(t *testing.T) {
		env := newPageTestEnv(t)

		w, _ := env.get("/pages/users/missing")
		require.Equal(t, http.StatusNotFound, w.Code)

		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "NOT_FOUND", body.Error.Code)

		txns := env.exporter.transactions()
		require.Len(t, txns, 1)
		assert.Len(t, txns[0].Events(), 1, "loader error captured once")
		assert.Equal(t, 0, env.controller.Registry().Len())
	})
}

func TestPageHandler_GetDashboard(t *testing.T) {
	t.Run("default sections", func(t *testing.T) {
		env := newPageTestEnv(t)

		w, page := env.get("/pages/dashboard")

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, page)
		assert.Equal(t, "/dashboard", page.Route)

		users, ok := page.Props["users"].([]any)
		require.True(t, ok)
		assert.Len(t, users, 3)
		assert.Equal(t, false, page.Props["degraded"])
	})

	t.Run("degrades when a section fails", func(t *testing.T) {
		env := newPageTestEnv(t)

		w, page := env.get("/pages/dashboard?users=u1&users=missing")

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, page)

		users, ok := page.Props["users"].([]any)
		require.True(t, ok)
		assert.Len(t, users, 1)
		assert.Equal(t, true, page.Props["degraded"])
	})

	t.Run("rejects blank section id", func(t *testing.T) {
		env := newPageTestEnv(t)

		w, _ := env.get("/pages/dashboard?users=")
		require.Equal(t, http.StatusBadRequest, w.Code)

		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	})
}
