// Package datasource provides in-process implementations of the data ports.
// The demo surface serves canned data; a real deployment would swap these
// for adapters backed by a database or downstream service.
package datasource

import (
	"context"
	"maps"
	"slices"

	"github.com/jsamuelsen/tracewrap/internal/domain"
	"github.com/jsamuelsen/tracewrap/internal/ports"
)

// MemoryStore implements ports.UserSource and ports.ArticleSource over
// fixed in-memory data. It is read-only after construction and safe for
// concurrent use.
type MemoryStore struct {
	users    map[string]domain.User
	articles map[string][]domain.Article
}

// Compile-time interface checks.
var (
	_ ports.UserSource    = (*MemoryStore)(nil)
	_ ports.ArticleSource = (*MemoryStore)(nil)
	_ ports.HealthChecker = (*MemoryStore)(nil)
)

// NewMemoryStore creates a store over the provided records. Articles are
// indexed by author.
func NewMemoryStore(users []domain.User, articles []domain.Article) *MemoryStore {
	s := &MemoryStore{
		users:    make(map[string]domain.User, len(users)),
		articles: make(map[string][]domain.Article),
	}

	for _, u := range users {
		s.users[u.ID] = u
	}

	for _, a := range articles {
		s.articles[a.AuthorID] = append(s.articles[a.AuthorID], a)
	}

	return s
}

// NewSeededStore creates a store with a small fixed dataset for the demo
// routes.
func NewSeededStore() *MemoryStore {
	return NewMemoryStore(
		[]domain.User{
			{ID: "u1", Name: "Ada Lovelace", Email: "ada@example.com"},
			{ID: "u2", Name: "Grace Hopper", Email: "grace@example.com"},
			{ID: "u3", Name: "Alan Turing", Email: "alan@example.com"},
		},
		[]domain.Article{
			{ID: "a1", Title: "Notes on the Analytical Engine", Body: "...", AuthorID: "u1"},
			{ID: "a2", Title: "The Education of a Computer", Body: "...", AuthorID: "u2"},
			{ID: "a3", Title: "Compilers and Automatic Coding", Body: "...", AuthorID: "u2"},
		},
	)
}

// GetUser implements ports.UserSource.
func (s *MemoryStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u, ok := s.users[id]
	if !ok {
		return nil, domain.NewNotFoundError("user", id)
	}

	return &u, nil
}

// ListArticlesByAuthor implements ports.ArticleSource.
func (s *MemoryStore) ListArticlesByAuthor(ctx context.Context, authorID string) ([]domain.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return slices.Clone(s.articles[authorID]), nil
}

// Name implements ports.HealthChecker.
func (s *MemoryStore) Name() string {
	return "datasource"
}

// Check implements ports.HealthChecker. The in-memory store has no external
// dependency, so it is healthy as long as the process is.
func (s *MemoryStore) Check(_ context.Context) error {
	return nil
}

// UserIDs returns the identifiers of every stored user, sorted. The
// dashboard page uses this as its section list.
func (s *MemoryStore) UserIDs() []string {
	return slices.Sorted(maps.Keys(s.users))
}
