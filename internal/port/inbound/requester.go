// Package inbound defines the port that services use to make calls on
// behalf of the logged-in user.
package inbound

import (
	"context"
	"net/http"
)

// RequestOptions carries what the caller controls about an authenticated
// request. Body is buffered so it can be resent after a token refresh.
type RequestOptions struct {
	Method string
	Header http.Header
	Body   []byte
}

// Requester is the authenticated request gateway.
type Requester interface {
	// MakeAuthenticatedRequest sends the request with the current access
	// token, refreshing and retrying once on 401/403. The caller owns the
	// response body.
	MakeAuthenticatedRequest(ctx context.Context, url string, opts RequestOptions) (*http.Response, error)

	// Do is the JSON convenience form: path is resolved against the API
	// root and body, when non-nil, is sent as JSON.
	Do(ctx context.Context, method, path string, body any) (*http.Response, error)

	// RefreshToken runs the refresh procedure and returns the new access token.
	RefreshToken(ctx context.Context) (string, error)
}
