package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"inkpost.org/internal/audit"
	"inkpost.org/internal/auth"
	"inkpost.org/internal/config"
	"inkpost.org/internal/httpapi"
	"inkpost.org/internal/obs"
	"inkpost.org/internal/posts"
	"inkpost.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		obs.Logger().Error("api_exit", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	obs.InitBuildInfo(version, commit)
	obs.SetLogger(obs.NewLogger(os.Stdout, obs.ParseLevel(cfg.Logging.Level)))
	obs.Init()
	log := obs.Logger()

	var (
		users      auth.UserStore
		postStore  posts.Store
		auditStore audit.Store
		ready      httpapi.ReadyProbe
	)
	if cfg.Database.DSN != "" {
		store, err := pg.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer store.Close()
		users, postStore, auditStore = store, store.Posts(), store.Audit()
		ready.DB = store
	} else {
		log.Warn("no database configured, using in-memory stores")
		users, postStore, auditStore = auth.NewMemoryStore(), posts.NewMemoryStore(), audit.NewMemoryStore()
	}

	tokens, err := auth.NewTokenService(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret,
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithIssuer(cfg.Auth.Issuer),
	)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(users, tokens)
	if err != nil {
		return err
	}
	denials, err := obs.NewDenials(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register denial metrics: %w", err)
	}
	authz := auth.NewAuthorizer(auth.NewEvaluator(auth.DefaultMatrix()), denials)
	recorder := audit.NewRecorder(auditStore)
	postSvc, err := posts.NewService(postStore, authz, recorder)
	if err != nil {
		return err
	}

	api, err := httpapi.New(httpapi.Deps{
		Auth:        authSvc,
		Authz:       authz,
		Denials:     denials,
		Audit:       recorder,
		Posts:       postSvc,
		Ready:       ready,
		Version:     version,
		CookieName:  cfg.Auth.CookieName,
		Production:  cfg.Production(),
		CORSOrigins: cfg.HTTP.CORSOrigins,
		RateLimit:   cfg.HTTP.RateLimit,
		RateBurst:   cfg.HTTP.RateBurst,
		TrustProxy:  cfg.HTTP.TrustProxy,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api_start", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("api_shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("api_stopped")
	return nil
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
