// Package fakehub is an in-process stand-in for the Tiny Village Hub API,
// used by service and command tests. It issues HS256 JWT access tokens and
// single-use rotating refresh tokens, keeps users and items in memory, and
// lets tests inject failures and read call counters.
package fakehub

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tinyvillage/villagehub/internal/domain/item"
)

type user struct {
	ID       int64
	Username string
	Password string
	Email    string
	Address  map[string]string
	gen      int64
}

// Server is the fake hub. Mount Handler under any base URL ending in /api.
type Server struct {
	mu        sync.Mutex
	secret    []byte
	accessTTL time.Duration
	clock     func() time.Time
	epoch     int64
	seq       int64

	users   map[string]*user
	refresh map[string]string // refresh token -> username
	items   map[int64]*item.Item
	nextUID int64
	nextIID int64

	refreshStatus int
	refreshDelay  time.Duration
	rotate        bool
	loginLegacy   bool

	loginCalls   atomic.Int64
	refreshCalls atomic.Int64
	authRejects  atomic.Int64

	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens. Default 15m.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.accessTTL = d }
}

// WithClock overrides the time source used for token issue and checks.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.clock = now }
}

// WithoutRotation makes refresh responses omit the refresh token.
func WithoutRotation() Option {
	return func(s *Server) { s.rotate = false }
}

// WithLegacyLogin makes login answer with the legacy "jwt" field instead
// of "accessToken".
func WithLegacyLogin() Option {
	return func(s *Server) { s.loginLegacy = true }
}

// New creates an empty fake hub.
func New(opts ...Option) *Server {
	s := &Server{
		secret:    []byte("fakehub-test-secret"),
		accessTTL: 15 * time.Minute,
		users:     make(map[string]*user),
		refresh:   make(map[string]string),
		items:     make(map[int64]*item.Item),
		rotate:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler serving the API under /api.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves the fake hub on a loopback listener and returns the API
// base URL. The server is closed when the test ends.
func (s *Server) Start(t interface{ Cleanup(func()) }) string {
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts.URL + "/api"
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/refresh-token", s.handleRefresh)
		r.Get("/items/available", s.handleListAvailable)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/auth/logout-all-devices", s.handleLogoutAll)
			r.Get("/items/my-items", s.handleListMine)
			r.Post("/items", s.handleCreateItem)
			r.Put("/items/{id}", s.handleUpdateItem)
			r.Delete("/items/{id}", s.handleDeleteItem)
			r.Post("/items/{id}/images", s.handleAddImage)
			r.Delete("/items/{id}/images", s.handleDeleteImage)
			r.Put("/users/address", s.handleUpdateAddress)
			r.Put("/users/password", s.handleChangePassword)
		})

		r.Get("/items/{id}", s.handleGetItem)
	})
	return r
}

// AddUser registers a user directly and returns its id.
func (s *Server) AddUser(username, password string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, password, "")
}

func (s *Server) addUserLocked(username, password, email string) int64 {
	s.nextUID++
	s.users[username] = &user{ID: s.nextUID, Username: username, Password: password, Email: email}
	return s.nextUID
}

// SetUserID overrides a user's id, for scenarios that pin specific ids.
func (s *Server) SetUserID(username string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		u.ID = id
	}
}

// IssueTokens mints a fresh access/refresh pair for an existing user.
func (s *Server) IssueTokens(username string) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return "", ""
	}
	access, _ = s.issueAccess(u)
	return access, s.issueRefresh(u)
}

// ExpireAccessTokens invalidates every access token issued so far.
// Refresh tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
}

// RevokeRefreshTokens forgets every refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]string)
}

// FailRefresh makes the refresh endpoint answer with status. Pass 0 to restore.
func (s *Server) FailRefresh(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = status
}

// SetRefreshDelay delays every refresh response by d.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// AddItem stores it as owned by owner and returns its id.
func (s *Server) AddItem(owner string, it item.Item) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextIID++
	it.ID = s.nextIID
	it.OwnerUsername = owner
	stored := it
	stored.Images = append([]string(nil), it.Images...)
	s.items[it.ID] = &stored
	return it.ID
}

// Item returns a copy of a stored item.
func (s *Server) Item(id int64) (item.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return item.Item{}, false
	}
	out := *it
	out.Images = append([]string(nil), it.Images...)
	return out, true
}

// Address returns the stored address of a user.
func (s *Server) Address(username string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(u.Address))
	for k, v := range u.Address {
		out[k] = v
	}
	return out
}

// LoginCalls returns the number of login requests received.
func (s *Server) LoginCalls() int64 { return s.loginCalls.Load() }

// RefreshCalls returns the number of refresh requests received.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// AuthRejects returns the number of authenticated requests answered 401.
func (s *Server) AuthRejects() int64 { return s.authRejects.Load() }
