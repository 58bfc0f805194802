package app

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/datanexus/internal/lock"
	"github.com/noah-isme/datanexus/internal/notify"
	"github.com/noah-isme/datanexus/internal/resilience"
)

// NewWorker builds the asynq server and mux that deliver sale notifications.
func NewWorker(d Dependencies, conn asynq.RedisConnOpt) (*asynq.Server, *asynq.ServeMux) {
	cfg := d.Config
	logger := d.Logger.With().Str("component", "worker").Logger()

	queues := map[string]int{"default": 1}
	if cfg.WorkerQueue != "" && cfg.WorkerQueue != "default" {
		queues[cfg.WorkerQueue] = 5
	}
	retryBase := cfg.TaskRetryBase
	srv := asynq.NewServer(conn, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      queues,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return resilience.Backoff(retryBase, n+1, 0.2)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task_type", task.Type()).Msg("task_failed")
		}),
		Logger:   asynqLogger{logger: logger},
		LogLevel: asynq.WarnLevel,
	})

	mailer := &notify.SaleMailer{
		Directory: d.Store,
		Mail:      NewMailer(d),
		Enabled:   cfg.NotifyEmailEnabled,
		LockTTL:   cfg.CheckoutLockTTL,
		ReplayTTL: cfg.NotifyReplayTTL,
		Logger:    &logger,
	}
	if d.Redis != nil {
		mailer.Locker = lock.Locker{R: d.Redis, RetryBackoff: cfg.LockRetryBackoff}
		mailer.Replay = notify.RedisReplayGuard{Client: d.Redis}
	}

	mux := asynq.NewServeMux()
	mailer.Register(mux)
	return srv, mux
}
