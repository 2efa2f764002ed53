// Package domain contains core business entities and rules.
package domain

// User is an account whose pages the demo surface renders.
// This is a domain entity - it has no knowledge of external systems.
type User struct {
	// ID is the unique identifier for this user.
	ID string

	// Name is the user's display name.
	Name string

	// Email is the user's contact address.
	Email string
}

// Article is a piece of content authored by a user.
type Article struct {
	// ID is the unique identifier for this article.
	ID string

	// Title is the article headline.
	Title string

	// Body is the article text.
	Body string

	// AuthorID references the authoring User.
	AuthorID string
}

// Page is the assembled render payload for one route: the props a render
// phase consumes, plus the route that produced them.
type Page struct {
	// Route is the route template this page was assembled for.
	Route string

	// Title is the page heading.
	Title string

	// Props is the data payload handed to the render phase.
	Props map[string]any
}
