package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"gatehouse.dev/internal/audit"
	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/config"
	"gatehouse.dev/internal/httpapi"
	"gatehouse.dev/internal/migrate"
	"gatehouse.dev/internal/obs"
	"gatehouse.dev/internal/posts"
	"gatehouse.dev/internal/rbac"
	"gatehouse.dev/internal/seed"
	"gatehouse.dev/internal/store/memory"
	"gatehouse.dev/internal/store/pg"
	"gatehouse.dev/internal/users"
)

var version = "0.1.0"

// backend is what the services need from a store.
type backend interface {
	auth.UserStore
	users.Store
	posts.Store
	audit.Store
	httpapi.ReadyProbe
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}
	obs.Init(obs.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
	obs.InitMetrics()
	obs.InitBuildInfo(version, cfg.Server.Environment)
	log := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer closeStore()

	if cfg.IsDevelopment() {
		if cfg.Auth.AccessSecret == "" {
			cfg.Auth.AccessSecret = uuid.NewString()
			log.Warn().Msg("auth.access_secret not set; using an ephemeral development secret")
		}
		if cfg.Auth.RefreshSecret == "" {
			cfg.Auth.RefreshSecret = uuid.NewString()
			log.Warn().Msg("auth.refresh_secret not set; using an ephemeral development secret")
		}
	}
	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Issuer:        cfg.Auth.Issuer,
		AccessSecret:  []byte(cfg.Auth.AccessSecret),
		RefreshSecret: []byte(cfg.Auth.RefreshSecret),
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("token manager")
	}
	authSvc, err := auth.NewService(store, tokens, auth.WithHasher(auth.BcryptHasher{Cost: cfg.Auth.BcryptCost}))
	if err != nil {
		log.Fatal().Err(err).Msg("auth service")
	}

	engine := rbac.NewEngine(nil)
	recorder := audit.NewRecorder(store, audit.WithWriteTimeout(cfg.Audit.WriteTimeout))
	api := httpapi.New(httpapi.Services{
		Auth:   authSvc,
		Engine: engine,
		Posts:  posts.NewService(store, engine, posts.WithAuthors(store)),
		Users:  users.NewService(store, engine),
		Audit:  recorder,
		Ready:  store,
	}, httpapi.Options{
		Version:       version,
		Environment:   cfg.Server.Environment,
		CORSOrigins:   cfg.Server.CORSOrigins,
		RateBurst:     cfg.Server.RateBurst,
		RatePerSecond: cfg.Server.RatePerSecond,
		LoginLimit:    cfg.Server.LoginLimit,
		LoginWindow:   cfg.Server.LoginWindow,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Str("environment", cfg.Server.Environment).Msg("starting gatehouse api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := recorder.Wait(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("audit drain")
	}
	log.Info().Msg("stopped")
}

// openBackend connects to Postgres and applies migrations, or falls back to
// a seeded in-memory store in development when no DSN is configured.
func openBackend(ctx context.Context, cfg config.Config) (backend, func(), error) {
	if cfg.Database.DSN == "" {
		if !cfg.IsDevelopment() {
			return nil, nil, errors.New("database.dsn is required outside development")
		}
		store := memory.New()
		if _, err := seed.Run(ctx, store, auth.BcryptHasher{Cost: cfg.Auth.BcryptCost}); err != nil {
			return nil, nil, err
		}
		obs.Logger().Warn().Msg("no database configured; using seeded in-memory store")
		return store, func() {}, nil
	}

	store, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnLifetime: cfg.Database.ConnLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	if _, err := migrate.NewManager(store.DB(), pg.Migrations()).Up(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}
