package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	"github.com/tinyvillage/villagehub/internal/domain/session"
	"github.com/tinyvillage/villagehub/internal/port/inbound"
	"github.com/tinyvillage/villagehub/internal/port/outbound"
)

// DefaultRefreshTimeout bounds a shared refresh call.
const DefaultRefreshTimeout = 15 * time.Second

const refreshKey = "refresh"

// GatewayAPI is what the gateway needs from the hub API adapter.
type GatewayAPI interface {
	outbound.Transport
	RefreshToken(ctx context.Context, refreshToken string) (*session.TokenPair, error)
}

// Gateway is the authenticated request gateway. It attaches the current
// access token, and on a 401 or 403 refreshes the token once and retries
// once. A failed refresh clears the session and surfaces as
// *session.SessionExpiredError.
//
// Concurrent refreshes are coalesced: every caller that needs one while a
// refresh is in flight waits for that refresh's result.
type Gateway struct {
	api            GatewayAPI
	tokens         *session.TokenStore
	logger         *slog.Logger
	metrics        *Metrics
	tracer         trace.Tracer
	refreshTimeout time.Duration

	sf singleflight.Group
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the logger.
func WithGatewayLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// WithGatewayMetrics sets the metrics sink.
func WithGatewayMetrics(m *Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// WithGatewayTracer sets the tracer for request and refresh spans.
func WithGatewayTracer(t trace.Tracer) GatewayOption {
	return func(g *Gateway) { g.tracer = t }
}

// WithRefreshTimeout bounds each shared refresh call.
func WithRefreshTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.refreshTimeout = d }
}

// NewGateway creates a Gateway over api that reads and writes tokens.
func NewGateway(api GatewayAPI, tokens *session.TokenStore, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		api:            api,
		tokens:         tokens,
		logger:         slog.Default(),
		tracer:         noop.NewTracerProvider().Tracer(""),
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return g
}

// MakeAuthenticatedRequest sends a request to url with the current access
// token. Statuses other than 401/403 are returned as-is. On 401/403 the
// token is refreshed and the request retried exactly once; the retry's
// response is returned whatever its status. Transport errors propagate
// unchanged. The caller owns the response body.
func (g *Gateway) MakeAuthenticatedRequest(ctx context.Context, url string, opts inbound.RequestOptions) (*http.Response, error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}

	ctx, span := g.tracer.Start(ctx, "gateway.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", opts.Method),
			attribute.String("url.full", url),
		),
	)
	defer span.End()

	token, _ := g.tokens.AccessToken()
	resp, err := g.send(ctx, url, opts, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, err
	}
	if !needsRefresh(resp.StatusCode) {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		return resp, nil
	}

	discard(resp)
	g.logger.Debug("access token rejected, refreshing",
		"method", opts.Method,
		"url", url,
		"status", resp.StatusCode,
	)

	fresh, err := g.refreshAfterReject(ctx, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		return nil, err
	}

	g.metrics.RetriesTotal.Inc()
	span.SetAttributes(attribute.Bool("villagehub.retried", true))

	resp, err = g.send(ctx, url, opts, fresh)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error on retry")
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

// Do resolves path against the API root, sends body as JSON when it is
// non-nil, and goes through MakeAuthenticatedRequest.
func (g *Gateway) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	opts := inbound.RequestOptions{Method: method, Header: make(http.Header)}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		opts.Body = data
		opts.Header.Set("Content-Type", "application/json")
	}
	return g.MakeAuthenticatedRequest(ctx, g.api.URL(path), opts)
}

// RefreshToken runs the refresh procedure and returns the new access token.
// Callers arriving while a refresh is in flight share its result. If ctx
// is cancelled the caller returns ctx.Err() and the refresh keeps running
// for everyone else, bounded by the refresh timeout.
func (g *Gateway) RefreshToken(ctx context.Context) (string, error) {
	return g.sharedRefresh(ctx, "", false)
}

// refreshAfterReject returns a token to retry with after the server
// rejected stale. The comparison with the stored token runs inside the
// shared call, so a caller that arrives after another caller's refresh
// finished reuses that token instead of starting a second refresh.
func (g *Gateway) refreshAfterReject(ctx context.Context, stale string) (string, error) {
	return g.sharedRefresh(ctx, stale, true)
}

// sharedRefresh runs at most one refresh at a time. With checkStale, a
// stored access token that differs from stale is returned without a
// network call.
func (g *Gateway) sharedRefresh(ctx context.Context, stale string, checkStale bool) (string, error) {
	leader, reused := false, false
	ch := g.sf.DoChan(refreshKey, func() (any, error) {
		leader = true
		if cur, ok := g.tokens.AccessToken(); checkStale && ok && cur != stale {
			reused = true
			return cur, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.refreshTimeout)
		defer cancel()
		return g.refresh(rctx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if !leader || reused {
			g.metrics.RefreshCoalesced.Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refresh performs one refresh call. Runs inside the singleflight group.
func (g *Gateway) refresh(ctx context.Context) (string, error) {
	ctx, span := g.tracer.Start(ctx, "session.refresh")
	defer span.End()

	rt, ok := g.tokens.RefreshToken()
	if !ok {
		g.metrics.RefreshTotal.WithLabelValues(RefreshNoSession).Inc()
		span.SetStatus(codes.Error, "no refresh token")
		return "", g.expire(ctx, session.ErrNoSession)
	}

	pair, err := g.api.RefreshToken(ctx, rt)
	if err != nil {
		g.metrics.RefreshTotal.WithLabelValues(RefreshFailure).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh rejected")
		return "", g.expire(ctx, err)
	}

	next := pair.RefreshToken
	if next == "" {
		next = rt
	}
	rotated, err := g.tokens.RotateTokens(ctx, rt, pair.AccessToken, next)
	if err != nil {
		g.metrics.RefreshTotal.WithLabelValues(RefreshFailure).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return "", g.expire(ctx, err)
	}
	if !rotated {
		// Logged out or logged in again while the call was in flight.
		g.metrics.RefreshTotal.WithLabelValues(RefreshSuperseded).Inc()
		span.SetStatus(codes.Error, "session changed")
		if cur, ok := g.tokens.AccessToken(); ok {
			return cur, nil
		}
		return "", &session.SessionExpiredError{Cause: session.ErrSessionChanged}
	}

	g.metrics.RefreshTotal.WithLabelValues(RefreshSuccess).Inc()
	g.logger.Debug("access token refreshed", "rotated", pair.RefreshToken != "")
	return pair.AccessToken, nil
}

// expire clears the session and wraps cause as a session-expired error.
func (g *Gateway) expire(ctx context.Context, cause error) error {
	// RemoveTokens logs its own storage failure and clears memory regardless.
	_ = g.tokens.RemoveTokens(ctx)
	g.logger.Info("session expired, tokens cleared", "error", cause)
	return &session.SessionExpiredError{Cause: cause}
}

// send issues a single attempt and records its metrics.
func (g *Gateway) send(ctx context.Context, url string, opts inbound.RequestOptions, token string) (*http.Response, error) {
	req, err := g.api.NewRequest(ctx, opts.Method, url, opts.Body)
	if err != nil {
		return nil, err
	}
	for k, vs := range opts.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}

	start := time.Now()
	resp, err := g.api.Send(req)
	g.metrics.RequestDuration.WithLabelValues(opts.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		g.metrics.RequestsTotal.WithLabelValues(opts.Method, "error").Inc()
		return nil, err
	}
	g.metrics.RequestsTotal.WithLabelValues(opts.Method, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

func needsRefresh(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// discard drains and closes a response that will not be handed to the caller.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// Compile-time interface verification.
var _ inbound.Requester = (*Gateway)(nil)
