package hubapi

import (
	"log/slog"
	"net/http"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client for making requests.
// This is useful for testing, proxying, or custom transport configurations.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP request timeout.
// If not set, defaults to 30 seconds. Ignored when WithHTTPClient is used.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}
