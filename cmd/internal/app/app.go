// Package app wires the tipcast server runtime: config, logging, storage,
// session lifecycle, HTTP routes, and the notification gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tipcast/cmd/identity"
	authapi "tipcast/cmd/internal/auth/api"
	"tipcast/cmd/internal/auth/session"
	"tipcast/cmd/internal/notify"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the tipcast server runtime: it owns the HTTP server wiring, the
// session subsystem, and the websocket notification gateway.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry *prometheus.Registry

	auth    *authapi.Handler
	gateway *notify.Gateway
	sweeper *session.Sweeper
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tokens, err := session.NewJWTManager(sessCfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := session.NewMetrics(registry)

	hub := notify.NewHub(log)

	st, dbPool, dbEnabled, sessStore, provider, gens, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	svc := session.NewService(sessCfg, sessStore, tokens, gens, hub, log, metrics)

	authCfg := authapi.LoadConfigFromEnv()
	auth, err := authapi.NewHandler(log, authCfg, dbPool, provider, svc)
	if err != nil {
		if dbPool != nil {
			dbPool.Close()
		}
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		registry:  registry,
		auth:      auth,
		gateway:   notify.NewGateway(log, hub, svc),
		sweeper:   session.NewSweeper(sessCfg, sessStore, log, metrics),
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	go a.sweeper.Run(ctx)

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.registry, a.gateway, a.auth)

	handler := WithSecurityHeaders(WithCORS(mux, a.cfg, a.log))

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(handler, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore decides between Postgres-backed persistence and the in-memory dev
// store, and returns the matching identity provider and generation source.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, session.Store, identity.Provider, session.GenerationSource, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")

		mem := session.NewMemoryStore()
		ids := identity.NewMemoryStore()
		seedDevUser(ctx, log, ids)

		// In memory mode the session store owns the generation counters (the
		// rotation tx bumps them there), so logins must read generations from
		// the same place.
		provider := memoryIdentity{users: ids, gens: mem}
		return nopStore{}, nil, false, mem, provider, mem, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, nil, nil, err
	}

	log.Info("db.enabled.postgres_store")

	ids, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, nil, err
	}

	// Ownership model: app owns the pool lifecycle; stores borrow it.
	sessStore := session.NewPostgresStore(pool)

	return dbStore{pool: pool}, pool, true, sessStore, ids, ids, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// memoryIdentity verifies credentials against the in-memory user store but
// reports the generation counter tracked by the session store, keeping both
// sides of the generation check on one source of truth in dev mode.
type memoryIdentity struct {
	users *identity.MemoryStore
	gens  session.GenerationSource
}

func (m memoryIdentity) VerifyCredentials(ctx context.Context, email, password string) (identity.User, error) {
	u, err := m.users.VerifyCredentials(ctx, email, password)
	if err != nil {
		return identity.User{}, err
	}
	if gen, gerr := m.gens.TokenGeneration(ctx, u.ID); gerr == nil {
		u.TokenGeneration = gen
	}
	return u, nil
}

// seedDevUser creates a login-capable account in memory mode when
// TIPCAST_DEV_USER_EMAIL and TIPCAST_DEV_USER_PASSWORD are both set.
func seedDevUser(ctx context.Context, log Logger, ids *identity.MemoryStore) {
	email := EnvString("TIPCAST_DEV_USER_EMAIL", "")
	password := EnvString("TIPCAST_DEV_USER_PASSWORD", "")
	if email == "" || password == "" {
		return
	}

	u, err := ids.CreateUser(ctx, identity.CreateUserInput{Email: email, Password: password})
	if err != nil {
		log.Warn("dev_user.seed.fail", "err", err)
		return
	}
	log.Info("dev_user.seeded", "user_id", u.ID, "email", u.Email)
}
