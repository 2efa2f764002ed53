// Package ports defines interfaces for external dependencies.
// Ports are contracts that adapters implement, allowing the application layer
// to depend on abstractions rather than concrete implementations.
//
// Port Design Principles:
//   - Context as first parameter (always) for cancellation and deadlines
//   - Return domain types, never external DTOs or infrastructure types
//   - Error returns use domain error types (ErrNotFound, ErrUnavailable, etc.)
//   - Methods represent business operations, not CRUD operations
//   - Keep interfaces small and focused (Interface Segregation Principle)
package ports

import (
	"context"

	"github.com/jsamuelsen/tracewrap/internal/domain"
)

// UserSource provides the user data the page loaders fetch.
//
// Key considerations for implementations:
//   - Handle timeouts via context deadline
//   - Map backend errors to domain errors
type UserSource interface {
	// GetUser retrieves a user by identifier.
	// Returns domain.ErrNotFound if the user does not exist.
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// ArticleSource provides the article data the page loaders fetch.
type ArticleSource interface {
	// ListArticlesByAuthor retrieves the articles authored by a user.
	// Returns an empty slice, not an error, when the user has none.
	ListArticlesByAuthor(ctx context.Context, authorID string) ([]domain.Article, error)
}
