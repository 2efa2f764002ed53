// Package app contains application services that orchestrate use cases.
// This is the application layer in Clean Architecture - it coordinates
// domain logic and infrastructure through ports.
//
// Application Layer Responsibilities:
//   - Orchestrate use cases (page data assembly)
//   - Coordinate between domain and infrastructure
//   - Handle cross-cutting concerns (logging)
//
// What does NOT belong here:
//   - HTTP specifics (that's adapters)
//   - Transaction lifecycle mechanics (that's internal/trace)
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jsamuelsen/tracewrap/internal/domain"
	"github.com/jsamuelsen/tracewrap/internal/platform/logging"
	"github.com/jsamuelsen/tracewrap/internal/ports"
)

// PageService assembles page data for the render pipeline. Its methods are
// the business logic the data-loading wrappers instrument: they run inside
// a loader child span and their output becomes the page props.
type PageService struct {
	users    ports.UserSource
	articles ports.ArticleSource
	flags    ports.FeatureFlags
	logger   *slog.Logger
}

// PageServiceConfig contains dependencies for the page service.
type PageServiceConfig struct {
	Users    ports.UserSource
	Articles ports.ArticleSource
	Flags    ports.FeatureFlags
	Logger   *slog.Logger
}

// NewPageService creates a page service with the provided dependencies.
func NewPageService(cfg PageServiceConfig) *PageService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PageService{
		users:    cfg.Users,
		articles: cfg.Articles,
		flags:    cfg.Flags,
		logger:   logger.With(slog.String("component", "app.PageService")),
	}
}

// UserPage assembles the profile page for one user: the user record plus
// their articles, fetched in parallel unless the parallel-page-load flag is
// off for this request.
func (s *PageService) UserPage(ctx context.Context, userID string) (*domain.Page, error) {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = s.logger
	}

	if userID == "" {
		return nil, fmt.Errorf("validating input: %w", domain.NewValidationError("userID", "cannot be empty"))
	}

	var (
		user     *domain.User
		articles []domain.Article
		err      error
	)

	if s.parallelEnabled(ctx) {
		user, articles, err = Parallel2(ctx,
			func(ctx context.Context) (*domain.User, error) {
				return s.getUser(ctx, userID)
			},
			func(ctx context.Context) ([]domain.Article, error) {
				return s.articles.ListArticlesByAuthor(ctx, userID)
			},
		)
	} else {
		user, err = s.getUser(ctx, userID)
		if err == nil {
			articles, err = s.articles.ListArticlesByAuthor(ctx, userID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("loading user page: %w", err)
	}

	logger.DebugContext(ctx, "user page assembled",
		slog.String("user_id", user.ID),
		slog.Int("articles", len(articles)),
	)

	return &domain.Page{
		Route: "/users/:id",
		Title: user.Name,
		Props: map[string]any{
			"user":     user,
			"articles": articles,
		},
	}, nil
}

// DashboardPage assembles the dashboard from several user sections. A failed
// section degrades the page instead of failing it: successes render, failures
// are logged and counted.
func (s *PageService) DashboardPage(ctx context.Context, userIDs []string) (*domain.Page, error) {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = s.logger
	}

	fetches := make([]func(context.Context) (*domain.User, error), 0, len(userIDs))
	for _, id := range userIDs {
		fetches = append(fetches, func(ctx context.Context) (*domain.User, error) {
			return s.getUser(ctx, id)
		})
	}

	results := ParallelPartial(ctx, fetches...)

	users := make([]*domain.User, 0, len(results))
	failed := 0
	for i, r := range results {
		if r.Err != nil {
			failed++
			logger.WarnContext(ctx, "dashboard section failed",
				slog.String("user_id", userIDs[i]),
				slog.Any("error", r.Err),
			)
			continue
		}
		users = append(users, r.Value)
	}

	return &domain.Page{
		Route: "/dashboard",
		Title: "Dashboard",
		Props: map[string]any{
			"users":    users,
			"degraded": failed > 0,
		},
	}, nil
}

// getUser fetches a user, memoized per request when a cache is present so
// overlapping loaders hit the source once.
func (s *PageService) getUser(ctx context.Context, id string) (*domain.User, error) {
	rc := CacheFromContext(ctx)
	if rc == nil {
		return s.users.GetUser(ctx, id)
	}

	v, err := rc.GetOrFetch(ctx, "user:"+id, func(ctx context.Context) (any, error) {
		return s.users.GetUser(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	user, ok := v.(*domain.User)
	if !ok {
		return nil, fmt.Errorf("unexpected cached type for user %q", id)
	}
	return user, nil
}

func (s *PageService) parallelEnabled(ctx context.Context) bool {
	if s.flags == nil {
		return true
	}
	return s.flags.IsEnabled(ctx, "parallel-page-load", true)
}
