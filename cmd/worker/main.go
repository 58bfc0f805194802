package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/noah-isme/datanexus/internal/app"
	"github.com/noah-isme/datanexus/internal/config"
	"github.com/noah-isme/datanexus/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, pool, err := app.OpenStore(startCtx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	if pool != nil {
		defer pool.Close()
	}

	redisClient, err := app.OpenRedis(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open redis")
	}
	if redisClient == nil {
		logger.Fatal().Msg("REDIS_URL is required for the worker")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	conn, err := app.TaskConnOpt(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse task queue redis url")
	}
	srv, mux := app.NewWorker(app.Dependencies{Config: cfg, Logger: logger, Store: store, Redis: redisClient}, conn)

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Str("queue", cfg.WorkerQueue).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
