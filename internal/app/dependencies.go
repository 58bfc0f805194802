// Package app assembles the marketplace from configuration: stores, Redis,
// task queue, limiter, event bus and the HTTP router.
package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/datanexus/internal/common"
	"github.com/noah-isme/datanexus/internal/config"
	"github.com/noah-isme/datanexus/internal/events"
	"github.com/noah-isme/datanexus/internal/market"
	"github.com/noah-isme/datanexus/internal/obs"
	"github.com/noah-isme/datanexus/internal/ratelimit"
	"github.com/noah-isme/datanexus/internal/repo"
	"github.com/noah-isme/datanexus/internal/settlement"
	"github.com/noah-isme/datanexus/internal/submission"
)

// Store is everything the HTTP surface needs from persistence. Both
// repo.Memory and repo.Postgres satisfy it.
type Store interface {
	settlement.Store
	settlement.Reader
	submission.Store
	events.EventStore
	ReadCart(ctx context.Context, agency market.AgencyID) (market.Cart, error)
	WriteCart(ctx context.Context, cart market.Cart) (market.Cart, error)
	GetAgency(ctx context.Context, id market.AgencyID) (market.Agency, error)
	UpsertAgency(ctx context.Context, agency market.Agency) (market.Agency, error)
	SetContributorEmail(ctx context.Context, id market.ContributorID, email string) error
	ContributorEmail(ctx context.Context, id market.ContributorID) (string, error)
	Ping(ctx context.Context) error
}

var (
	_ Store = (*repo.Memory)(nil)
	_ Store = (*repo.Postgres)(nil)
)

// Dependencies enumerates the shared infrastructure handed to the router.
// Redis, TaskClient and Registry are optional.
type Dependencies struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Store      Store
	Redis      *redis.Client
	TaskClient *asynq.Client
	Registry   *prometheus.Registry
	Mailer     common.EmailSender
}

// OpenStore connects the configured store. The pool is nil for the memory
// driver; callers close it otherwise.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, *pgxpool.Pool, error) {
	if cfg.StoreDriver == config.StoreMemory {
		return repo.NewMemory(), nil, nil
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = obs.ServiceName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	return repo.NewPostgres(pool), pool, nil
}

// OpenRedis connects Redis when configured and returns nil otherwise.
func OpenRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	if !cfg.RedisEnabled() {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if cfg.TracingEnabled {
		if err := redisotel.InstrumentTracing(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// TaskConnOpt returns the asynq connection for the configured Redis.
func TaskConnOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	if !cfg.RedisEnabled() {
		return nil, fmt.Errorf("REDIS_URL is required for the task queue")
	}
	return asynq.ParseRedisURI(cfg.RedisURL)
}

// NewLimiter builds the purchase rate limiter on Redis when available and on
// process memory otherwise.
func NewLimiter(rdb *redis.Client, rate string) (*limiter.Limiter, error) {
	var client redis.UniversalClient
	if rdb != nil {
		client = rdb
	}
	store, err := ratelimit.NewStore(client, ratelimit.DefaultPrefix)
	if err != nil {
		return nil, err
	}
	return ratelimit.New(store, rate)
}

func cmdable(rdb *redis.Client) redis.Cmdable {
	if rdb == nil {
		return nil
	}
	return rdb
}
