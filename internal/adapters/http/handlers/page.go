package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/tracewrap/internal/adapters/http/dto"
	"github.com/jsamuelsen/tracewrap/internal/app"
	"github.com/jsamuelsen/tracewrap/internal/domain"
	"github.com/jsamuelsen/tracewrap/internal/loader"
	"github.com/jsamuelsen/tracewrap/internal/trace"
)

// PageHandler serves the demo page routes. Each handler runs its data
// loading through the loader wrapper, so the fetch appears as a child span
// on the request's transaction and the response props carry the reserved
// transaction ID key.
type PageHandler struct {
	service *app.PageService
	wrapper *loader.Wrapper

	// dashboardUsers is the default section list when the request names none.
	dashboardUsers []string
}

// NewPageHandler creates a page handler.
func NewPageHandler(service *app.PageService, wrapper *loader.Wrapper, dashboardUsers []string) *PageHandler {
	return &PageHandler{
		service:        service,
		wrapper:        wrapper,
		dashboardUsers: dashboardUsers,
	}
}

// PageResponse is the HTTP response structure for an assembled page.
type PageResponse struct {
	Route string         `json:"route"`
	Title string         `json:"title"`
	Props map[string]any `json:"props"`
}

// dashboardQuery selects the dashboard sections to load.
type dashboardQuery struct {
	Users []string `form:"users" validate:"omitempty,max=10,dive,notempty"`
}

// GetUserPage handles GET /pages/users/:id
// Assembles the user profile page through the instrumented loader.
//
// @Summary Get a user page
// @Description Loads the user profile page data
// @Tags pages
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} PageResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /pages/users/{id} [get]
func (h *PageHandler) GetUserPage(c *gin.Context) {
	id := c.Param("id")

	var page *domain.Page

	load := h.wrapper.WrapRoute("server", func(ctx context.Context, _ *loader.Request) (*loader.Result, error) {
		p, err := h.service.UserPage(ctx, id)
		if err != nil {
			return nil, err
		}

		page = p

		return &loader.Result{Props: loader.Props(p.Props)}, nil
	})

	res, err := load(requestContext(c), loaderRequest(c))
	if err != nil {
		_ = c.Error(err)
		dto.HandleError(c, err)

		return
	}

	c.JSON(http.StatusOK, &PageResponse{
		Route: page.Route,
		Title: page.Title,
		Props: res.Props,
	})
}

// GetDashboard handles GET /pages/dashboard
// Assembles the dashboard from the requested sections, or the default set.
//
// @Summary Get the dashboard page
// @Description Loads the dashboard page data, tolerating failed sections
// @Tags pages
// @Produce json
// @Param users query []string false "Section user IDs"
// @Success 200 {object} PageResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /pages/dashboard [get]
func (h *PageHandler) GetDashboard(c *gin.Context) {
	var query dashboardQuery
	if err := dto.BindQueryAndValidate(c, &query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponseWithDetails(
			dto.ErrorCodeValidation,
			"invalid dashboard query",
			dto.ValidationErrors(err),
		).WithTraceID(dto.GetTraceID(c)))

		return
	}

	users := query.Users
	if len(users) == 0 {
		users = h.dashboardUsers
	}

	var page *domain.Page

	load := h.wrapper.WrapRoute("server", func(ctx context.Context, _ *loader.Request) (*loader.Result, error) {
		p, err := h.service.DashboardPage(ctx, users)
		if err != nil {
			return nil, err
		}

		page = p

		return &loader.Result{Props: loader.Props(p.Props)}, nil
	})

	res, err := load(requestContext(c), loaderRequest(c))
	if err != nil {
		_ = c.Error(err)
		dto.HandleError(c, err)

		return
	}

	c.JSON(http.StatusOK, &PageResponse{
		Route: page.Route,
		Title: page.Title,
		Props: res.Props,
	})
}

// RegisterPageRoutes registers page routes on the given router group.
func (h *PageHandler) RegisterPageRoutes(rg *gin.RouterGroup) {
	pages := rg.Group("/pages")
	pages.GET("/users/:id", h.GetUserPage)
	pages.GET("/dashboard", h.GetDashboard)
}

// requestContext returns the request context with a fresh per-request data
// cache attached, so sibling fetches within one page load are memoized.
func requestContext(c *gin.Context) context.Context {
	return app.ContextWithCache(c.Request.Context(), app.NewRequestCache())
}

// loaderRequest describes the current request to the loader wrapper,
// resuming the transaction the middleware started.
func loaderRequest(c *gin.Context) *loader.Request {
	return &loader.Request{
		Path:          c.Request.URL.Path,
		Method:        c.Request.Method,
		Route:         c.FullPath(),
		TransactionID: currentTransactionID(c.Request.Context()),
	}
}

// currentTransactionID returns the ID of the transaction on the request
// scope, empty when the request is not instrumented.
func currentTransactionID(ctx context.Context) string {
	scope := trace.ScopeFromContext(ctx)
	if scope == nil {
		return ""
	}

	txn := scope.Transaction()
	if txn == nil {
		return ""
	}

	return txn.ID()
}
