package trace

import "strings"

// Placeholder names a transaction started by a phase that has no route
// context yet. A later phase that knows the route renames it.
const Placeholder = "<unresolved route>"

// RouteName derives an aggregatable transaction name from an HTTP method
// and a gin-style route template. Dynamic segments are replaced by their
// parameter names in brackets so distinct concrete URLs sharing a template
// produce identically-named transactions:
//
//	RouteName("GET", "/users/:id")  == "GET /users/[id]"
//	RouteName("GET", "/files/*path") == "GET /files/[path]"
func RouteName(method, template string) string {
	segments := strings.Split(template, "/")
	for i, seg := range segments {
		switch {
		case strings.HasPrefix(seg, ":"):
			segments[i] = "[" + seg[1:] + "]"
		case strings.HasPrefix(seg, "*"):
			segments[i] = "[" + seg[1:] + "]"
		}
	}
	return method + " " + strings.Join(segments, "/")
}

// URLName derives a transaction name from the raw request URL when no route
// template is available. The query string and fragment are stripped; the
// concrete path is kept, so names from this source may have high
// cardinality (Source is SourceURL).
func URLName(method, rawURL string) string {
	path := rawURL
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if i := strings.IndexByte(path, '#'); i >= 0 {
		path = path[:i]
	}
	return method + " " + path
}
