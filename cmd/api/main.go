package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/app/migrate"
	httpx "github.com/hoxsec/Godot-GameBackendAPI/internal/http"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/ratelimit"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository/postgres"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/auth"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/console"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/kv"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/leaderboard"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/remoteconfig"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/telemetry"
	"github.com/hoxsec/Godot-GameBackendAPI/pkg/config"
	"github.com/hoxsec/Godot-GameBackendAPI/pkg/logger"
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
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	authSvc := auth.New(repo, log, cfg)
	adminSvc := auth.NewAdmin(repo, log, cfg)
	if err := adminSvc.EnsureDefault(ctx); err != nil {
		log.Error("failed to seed default admin", "error", err)
		os.Exit(1)
	}

	remoteCfg, err := remoteconfig.Load(cfg.RemoteConfigPath, log)
	if err != nil {
		log.Error("failed to load remote config", "path", cfg.RemoteConfigPath, "error", err)
		os.Exit(1)
	}

	telemetrySvc := telemetry.NewService(nil, log, telemetry.Options{
		LogCapacity:       cfg.TelemetryLogCapacity,
		RecentLimit:       cfg.TelemetryRecentLimit,
		Retention:         cfg.TelemetryRetention,
		BroadcastInterval: cfg.TelemetryBroadcastEvery,
		HeartbeatInterval: cfg.TelemetryHeartbeatEvery,
		Registerer:        prometheus.DefaultRegisterer,
	})

	var limiter ratelimit.Limiter
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		shared, err := ratelimit.DialRedis(ratelimit.RedisOptions{
			Addr:     addr,
			Password: cfg.RateLimitRedisPass,
			DB:       cfg.RateLimitRedisDB,
		}, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable, counting in process", "error", err)
		} else {
			limiter = shared
		}
	}

	router := httpx.NewRouter(httpx.Deps{
		Logger:           log,
		Auth:             authSvc,
		Admin:            adminSvc,
		KV:               kv.New(repo, log),
		Leaderboard:      leaderboard.New(repo, log),
		Console:          console.New(repo, log),
		RemoteConfig:     remoteCfg,
		Telemetry:        telemetrySvc,
		Stats:            repo,
		Limiter:          limiter,
		DBHealth:         pool.Ping,
		Registerer:       prometheus.DefaultRegisterer,
		Gatherer:         prometheus.DefaultGatherer,
		StreamSendBuffer: cfg.StreamSendBuffer,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		telemetrySvc.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment, "stream", "/ws/admin")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("api server stopped")
}
