package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/byron-sandoval/Ferreter-a-sub000/internal/cache"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/config"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/httpapi"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/logger"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/scheduler"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/service"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/store"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/store/memory"
	pgstore "github.com/byron-sandoval/Ferreter-a-sub000/internal/store/postgres"
)

func main() {
	// Optional .env for local development; the real environment wins.
	_ = godotenv.Load()

	log := logger.Must(logger.New())
	defer log.Sync() //nolint:errcheck

	cfg := config.Load()
	if len(cfg.AuthSecret) < 32 {
		log.Fatal("AUTH_SECRET must be set and at least 32 characters")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository ready", zap.String("kind", "postgres"))
	} else {
		repo = memory.NewSeeded()
		log.Info("repository ready", zap.String("kind", "in-memory"))
	}

	summaryCache := cache.SummaryCache(cache.NoopSummaryCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using noop cache", zap.Error(err))
		} else {
			summaryCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache ready", zap.String("kind", "redis"))
		}
	} else {
		log.Info("cache ready", zap.String("kind", "noop"))
	}

	svc := service.New(repo, summaryCache, time.Duration(cfg.SummaryTTLSeconds)*time.Second, log)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	jobs := scheduler.New(cfg, svc, log)
	jobs.Start()

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	jobs.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}
