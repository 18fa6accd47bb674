package main

import (
	"context"
	"errors"
	"os"
	"time"

	"inkpost.org/internal/auth"
	"inkpost.org/internal/config"
	"inkpost.org/internal/obs"
	"inkpost.org/internal/seed"
	"inkpost.org/internal/store/pg"
)

func main() {
	if err := run(); err != nil {
		obs.Logger().Error("seed_failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	obs.SetLogger(obs.NewLogger(os.Stdout, obs.ParseLevel(cfg.Logging.Level)))
	if cfg.Database.DSN == "" {
		return errors.New("INKPOST_PG_DSN is required for seeding")
	}

	store, err := pg.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(store, tokens)
	if err != nil {
		return err
	}
	res, err := seed.Run(ctx, svc, store, store.Posts())
	if err != nil {
		return err
	}
	obs.Logger().Info("seed_complete", "users_created", res.UsersCreated, "posts_created", res.PostsCreated)
	return nil
}
