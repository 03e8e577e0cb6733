package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tinyvillage/villagehub/internal/adapter/outbound/cel"
	"github.com/tinyvillage/villagehub/internal/adapter/outbound/hubapi"
	"github.com/tinyvillage/villagehub/internal/adapter/outbound/memory"
	"github.com/tinyvillage/villagehub/internal/adapter/outbound/redis"
	"github.com/tinyvillage/villagehub/internal/adapter/outbound/sqlite"
	"github.com/tinyvillage/villagehub/internal/adapter/outbound/state"
	"github.com/tinyvillage/villagehub/internal/config"
	"github.com/tinyvillage/villagehub/internal/domain/session"
	"github.com/tinyvillage/villagehub/internal/service"
	"github.com/tinyvillage/villagehub/internal/telemetry"
)

// app is the wiring shared by every command that talks to the hub.
// It is built once per command run and closed when the command returns.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tokens   *session.TokenStore
	api      *hubapi.Client
	gateway  *service.Gateway
	auth     *service.AuthService
	items    *service.ItemService
	users    *service.UserService
	registry *prometheus.Registry
	tracing  *telemetry.Providers

	closers []func() error
}

// loadConfig loads and validates configuration, applying the flags that
// viper does not bind.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	if ephemeral {
		cfg.Session.Backend = config.BackendMemory
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr; stdout carries
// command output only.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelWarn for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// openStore opens the configured session backend.
func openStore(ctx context.Context, cfg config.SessionConfig, logger *slog.Logger) (session.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewSessionStore(), noop, nil
	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.Path, cfg.Namespace, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendRedis:
		s, err := redis.New(ctx, cfg.RedisURL, cfg.Namespace, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendFile:
		return state.NewFileSessionStore(cfg.Path, logger), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// newApp wires config, logging, the session backend, telemetry, the API
// client, the gateway and the services.
func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	if f := config.ConfigFileUsed(); f != "" {
		logger.Debug("loaded config", "file", f)
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}

	store, closeStore, err := openStore(ctx, cfg.Session, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s session store: %w", cfg.Session.Backend, err)
	}
	a.closers = append(a.closers, closeStore)

	a.tokens, err = session.OpenTokenStore(ctx, store, logger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.tracing, err = telemetry.NewProviders(cfg.Telemetry.Trace, cmd.ErrOrStderr(), "villagehub", Version)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.api = hubapi.NewClient(cfg.API.BaseURL,
		hubapi.WithTimeout(cfg.API.TimeoutDuration()),
		hubapi.WithLogger(logger),
		hubapi.WithUserAgent("villagehub/"+Version),
	)
	a.gateway = service.NewGateway(a.api, a.tokens,
		service.WithGatewayLogger(logger),
		service.WithGatewayMetrics(service.NewMetrics(a.registry)),
		service.WithGatewayTracer(a.tracing.Tracer()),
		service.WithRefreshTimeout(cfg.API.RefreshTimeoutDuration()),
	)
	a.auth = service.NewAuthService(a.api, a.gateway, a.tokens, logger)
	a.items = service.NewItemService(a.api, a.gateway, logger)
	a.users = service.NewUserService(a.gateway, a.tokens, logger)
	return a, nil
}

// Close flushes telemetry, writes the metrics file and closes the backend.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.tracing != nil {
		if err := a.tracing.Shutdown(context.WithoutCancel(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	if path := a.cfg.Telemetry.MetricsFile; path != "" && a.gateway != nil {
		if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics file: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// requireSession is the route guard: it fails before any network call
// when neither token is stored.
func (a *app) requireSession() error {
	if !a.tokens.HasSession() {
		return session.ErrNotLoggedIn
	}
	return nil
}

// compileFilter compiles a CEL item filter. An empty expression yields nil.
func compileFilter(expr string) (*cel.Filter, error) {
	if expr == "" {
		return nil, nil
	}
	eval, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}
	return eval.Compile(expr)
}

// withApp adapts a command body that needs the wired app into a RunE.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(cmd.Context()); cerr != nil {
				a.logger.Warn("cleanup failed", "error", cerr)
			}
		}()
		return fn(cmd, a, args)
	}
}

// withSession is withApp plus the route guard.
func withSession(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if err := a.requireSession(); err != nil {
			return err
		}
		return fn(cmd, a, args)
	})
}
