// Package hubapi is the HTTP binding to the Tiny Village Hub REST API.
//
// It covers the calls that need no identity (login, registration, token
// refresh and public catalog reads) and the request/response helpers that
// the authenticated gateway builds on.
package hubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinyvillage/villagehub/internal/domain/account"
	"github.com/tinyvillage/villagehub/internal/domain/item"
	"github.com/tinyvillage/villagehub/internal/domain/session"
)

const (
	// DefaultTimeout bounds each HTTP round trip.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is sent when WithUserAgent is not used.
	DefaultUserAgent = "villagehub"

	// HeaderRequestID carries a per-attempt correlation id.
	HeaderRequestID = "X-Request-ID"

	maxErrorBody = 64 << 10
)

// Client is the unauthenticated hub API client.
type Client struct {
	baseURL    string
	timeout    time.Duration
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the API rooted at baseURL
// (e.g. "http://localhost:8080/api").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying http.Client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// URL resolves path against the API root. Absolute URLs are returned unchanged.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// NewRequest builds a request with the client's common headers and a fresh
// request id.
func (c *Client) NewRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(HeaderRequestID, uuid.NewString())
	return req, nil
}

// Send performs req and logs the outcome. The caller owns the response body.
func (c *Client) Send(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("hub api request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"request_id", req.Header.Get(HeaderRequestID),
			"error", err,
		)
		return nil, err
	}
	c.logger.Debug("hub api request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get(HeaderRequestID),
		"duration", time.Since(start),
	)
	return resp, nil
}

// loginResponse accepts both the current and the legacy token field.
type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	JWT          string `json:"jwt"`
	RefreshToken string `json:"refreshToken"`
	ID           int64  `json:"id"`
	Username     string `json:"username"`
}

// Login exchanges credentials for a token pair and the user's identity.
// A 400, 401 or 403 is reported as ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, username, password string) (*session.LoginResult, error) {
	body := account.Credentials{Username: username, Password: password}
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/login", body)
	if err != nil {
		return nil, err
	}
	defer Drain(resp)

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidCredentials
	}
	if err := CheckResponse(resp); err != nil {
		return nil, err
	}

	var lr loginResponse
	if err := DecodeJSON(resp, &lr); err != nil {
		return nil, err
	}
	access := lr.AccessToken
	if access == "" {
		access = lr.JWT
	}
	if access == "" {
		return nil, ErrMissingToken
	}

	return &session.LoginResult{
		TokenPair: session.TokenPair{AccessToken: access, RefreshToken: lr.RefreshToken},
		User:      session.User{ID: lr.ID, Username: lr.Username},
	}, nil
}

// Register creates an account and returns the server's confirmation text.
// Any non-2xx is a *RegistrationError carrying the server's response text.
func (c *Client) Register(ctx context.Context, reg account.Registration) (string, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/register", reg)
	if err != nil {
		return "", err
	}
	defer Drain(resp)

	text, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(text))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &RegistrationError{StatusCode: resp.StatusCode, Message: msg}
	}
	return strings.TrimSpace(string(text)), nil
}

// RefreshToken exchanges a refresh token for a new pair. The returned
// RefreshToken is empty when the server did not rotate it.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*session.TokenPair, error) {
	body := map[string]string{"refreshToken": refreshToken}
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/refresh-token", body)
	if err != nil {
		return nil, err
	}
	defer Drain(resp)

	if err := CheckResponse(resp); err != nil {
		return nil, err
	}
	var pair session.TokenPair
	if err := DecodeJSON(resp, &pair); err != nil {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, ErrMissingToken
	}
	return &pair, nil
}

// ListAvailableItems returns the public catalog.
func (c *Client) ListAvailableItems(ctx context.Context) ([]item.Item, error) {
	var items []item.Item
	if err := c.get(ctx, "/items/available", &items); err != nil {
		return nil, fmt.Errorf("list available items: %w", err)
	}
	return items, nil
}

// GetItem returns one item. A missing item matches ErrNotFound.
func (c *Client) GetItem(ctx context.Context, id int64) (*item.Item, error) {
	var it item.Item
	if err := c.get(ctx, "/items/"+strconv.FormatInt(id, 10), &it); err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return &it, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	resp, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer Drain(resp)
	if err := CheckResponse(resp); err != nil {
		return err
	}
	return DecodeJSON(resp, result)
}

// doJSON sends body (if any) as JSON to path and returns the raw response.
func (c *Client) doJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req, err := c.NewRequest(ctx, method, c.URL(path), payload)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Send(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// errorBody is the server's JSON error envelope.
type errorBody struct {
	Message     string      `json:"message"`
	Error       string      `json:"error"`
	FieldErrors FieldErrors `json:"fieldErrors"`
}

// CheckResponse returns nil for a 2xx response. Otherwise it consumes the
// body and returns an *APIError.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}

	var eb errorBody
	if len(raw) > 0 && json.Unmarshal(raw, &eb) == nil {
		apiErr.Message = eb.Message
		if apiErr.Message == "" {
			apiErr.Message = eb.Error
		}
		apiErr.FieldErrors = eb.FieldErrors
	}
	return apiErr
}

// DecodeJSON decodes the response body into v.
func DecodeJSON(resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to unmarshal response: empty body")
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// Drain discards what is left of the body and closes it so the connection
// can be reused.
func Drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
