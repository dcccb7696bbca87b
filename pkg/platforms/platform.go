package platforms

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// ErrFetch wraps transport-level failures (DNS, connection, timeout).
var ErrFetch = errors.New("fetch failed")

// Response is the status and still-unread body of a profile page.
// Callers must close Body.
type Response struct {
	StatusCode int
	Body       io.ReadCloser
}

// NotFound reports whether the profile does not exist.
func (r *Response) NotFound() bool { return r.StatusCode == http.StatusNotFound }

// ProfileFetcher abstracts the site a watchlist is tracked on.
type ProfileFetcher interface {
	Name() string
	ProfileURL(name string) string
	// Fetch issues a GET for the profile page of name.
	Fetch(ctx context.Context, name string) (*Response, error)
}
