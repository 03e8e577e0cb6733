// Package outbound defines the outbound port interfaces for talking to the
// hub API.
package outbound

import (
	"context"
	"net/http"

	"github.com/tinyvillage/villagehub/internal/domain/account"
	"github.com/tinyvillage/villagehub/internal/domain/item"
	"github.com/tinyvillage/villagehub/internal/domain/session"
)

// AuthAPI is the set of credential calls that need no access token.
// Implemented by hubapi.Client.
type AuthAPI interface {
	// Login exchanges credentials for tokens and identity.
	Login(ctx context.Context, username, password string) (*session.LoginResult, error)

	// Register creates an account and returns the server's confirmation text.
	Register(ctx context.Context, reg account.Registration) (string, error)

	// RefreshToken exchanges a refresh token for a new pair.
	RefreshToken(ctx context.Context, refreshToken string) (*session.TokenPair, error)
}

// CatalogAPI is the public, unauthenticated item catalog.
type CatalogAPI interface {
	ListAvailableItems(ctx context.Context) ([]item.Item, error)
	GetItem(ctx context.Context, id int64) (*item.Item, error)
}

// Transport builds and sends raw requests against the API root.
type Transport interface {
	// URL resolves an API path against the base URL.
	URL(path string) string

	// NewRequest builds a request carrying the common headers.
	NewRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error)

	// Send performs the request. The caller owns the response body.
	Send(req *http.Request) (*http.Response, error)
}

// HubAPI is everything the gateway and services need from the adapter.
type HubAPI interface {
	AuthAPI
	CatalogAPI
	Transport
}
