package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/logwell/logwell/internal/app/migrate"
	httpx "github.com/logwell/logwell/internal/http"
	"github.com/logwell/logwell/internal/repository/postgres"
	"github.com/logwell/logwell/internal/service/apikey"
	"github.com/logwell/logwell/internal/service/auth"
	"github.com/logwell/logwell/internal/service/logs"
	"github.com/logwell/logwell/internal/service/project"
	"github.com/logwell/logwell/internal/service/retention"
	"github.com/logwell/logwell/internal/stream"
	"github.com/logwell/logwell/pkg/config"
	"github.com/logwell/logwell/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	if err := httpx.RegisterCollectors(stream.Collectors(), logs.Collectors(), retention.Collectors()); err != nil {
		log.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := stream.NewHub()
	streamer := stream.NewStreamer(hub, stream.Options{
		FlushInterval: cfg.StreamFlushInterval,
		BatchSize:     cfg.StreamBatchSize,
		Heartbeat:     cfg.StreamHeartbeat,
		MaxPending:    cfg.StreamMaxPending,
	}, log)

	keys := apikey.NewAuthenticator(repo, apikey.NewCache(cfg.APIKeyCacheTTL, nil), log)
	authSvc := auth.New(cfg.JWTSecret, log)
	projectSvc := project.New(repo, keys, log)
	logSvc := logs.New(repo, hub, log)

	scheduler := retention.NewScheduler(retention.NewJob(repo, repo, cfg.RetentionDefaultDays, log), cfg.RetentionInterval, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, keys, projectSvc, logSvc, streamer, limiter, httpx.Options{
		IngestMaxBodyBytes:  cfg.IngestMaxBodyBytes,
		IngestRatePerMinute: cfg.IngestRatePerMinute,
		QueryRatePerMinute:  cfg.QueryRatePerMinute,
	}, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// Streams end with the process context so Shutdown does not wait on them.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.RetentionEnabled {
		g.Go(func() error {
			return scheduler.Start(gctx)
		})
	} else {
		log.Warn("retention scheduler disabled")
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("api server stopped")
}
