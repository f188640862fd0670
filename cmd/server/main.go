package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"gitea.jw6.us/james/almanac/internal/auth"
	"gitea.jw6.us/james/almanac/internal/config"
	httpserver "gitea.jw6.us/james/almanac/internal/http"
	"gitea.jw6.us/james/almanac/internal/recur"
	"gitea.jw6.us/james/almanac/internal/store"
)

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Info(err.Error())
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.RFC1123Z,
		}),
	))
}

func main() {
	logger := slog.Default()
	logger.Info("starting almanac server")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Error("create db pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := store.ApplyMigrations(ctx, pool); err != nil {
		logger.Error("apply migrations", "error", err)
		os.Exit(1)
	}

	st := store.New(pool)

	sessions, err := auth.NewSessionManager(cfg, st.Sessions)
	if err != nil {
		logger.Error("initialize session manager", "error", err)
		os.Exit(1)
	}
	authService, err := auth.NewService(ctx, cfg, st, sessions, logger)
	if err != nil {
		logger.Error("initialize auth service", "error", err)
		os.Exit(1)
	}

	cache := recur.NewCache(recur.CacheConfig{
		TTL:             cfg.Engine.CacheTTL,
		MaxEntries:      cfg.Engine.CacheEntries,
		CleanupInterval: recur.DefaultCacheConfig.CleanupInterval,
	})
	defer cache.Close()

	api := httpserver.NewAPI(st, cache, recur.Options{MaxOccurrences: cfg.Engine.MaxOccurrences}, logger)
	r := httpserver.NewRouter(cfg, st, authService, api)

	// Expired sessions pile up until swept.
	go sweepSessions(ctx, st, logger)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func sweepSessions(ctx context.Context, st *store.Store, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.Sessions.DeleteExpired(ctx)
			if err != nil {
				logger.Error("sweep sessions", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("swept expired sessions", "count", n)
			}
		}
	}
}
