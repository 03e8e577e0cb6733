package service

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinyvillage/villagehub/internal/adapter/outbound/hubapi"
	"github.com/tinyvillage/villagehub/internal/adapter/outbound/memory"
	"github.com/tinyvillage/villagehub/internal/domain/session"
	"github.com/tinyvillage/villagehub/internal/fakehub"
)

// testEnv wires a gateway and services against an in-process fake hub.
type testEnv struct {
	hub     *fakehub.Server
	server  *httptest.Server
	api     *hubapi.Client
	store   *memory.MemorySessionStore
	tokens  *session.TokenStore
	metrics *Metrics
	gw      *Gateway
	logger  *slog.Logger
}

func newTestEnv(t *testing.T, opts ...fakehub.Option) *testEnv {
	t.Helper()
	hub := fakehub.New(opts...)
	ts := httptest.NewServer(hub.Handler())
	t.Cleanup(ts.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := hubapi.NewClient(ts.URL+"/api", hubapi.WithHTTPClient(ts.Client()), hubapi.WithLogger(logger))

	store := memory.NewSessionStore()
	tokens, err := session.OpenTokenStore(context.Background(), store, logger)
	if err != nil {
		t.Fatalf("OpenTokenStore() error: %v", err)
	}
	metrics := NewMetrics(prometheus.NewRegistry())
	gw := NewGateway(api, tokens, WithGatewayLogger(logger), WithGatewayMetrics(metrics))

	return &testEnv{
		hub:     hub,
		server:  ts,
		api:     api,
		store:   store,
		tokens:  tokens,
		metrics: metrics,
		gw:      gw,
		logger:  logger,
	}
}

// loginAs creates username on the hub and stores a fresh token pair for it.
func (e *testEnv) loginAs(t *testing.T, username string) {
	t.Helper()
	id := e.hub.AddUser(username, "password123")
	access, refresh := e.hub.IssueTokens(username)
	err := e.tokens.SetSession(context.Background(), session.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         &session.User{ID: id, Username: username},
	})
	if err != nil {
		t.Fatalf("SetSession() error: %v", err)
	}
}
