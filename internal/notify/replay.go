package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultDeliveryTTL bounds how long a sent sale notification is remembered.
const DefaultDeliveryTTL = 7 * 24 * time.Hour

// ReplayGuard remembers which sale notifications were already mailed so an
// asynq retry of the same task is a no-op.
type ReplayGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// DeliveryKey is the guard key for one owner's notification of a settlement.
func DeliveryKey(p SalePayload) string {
	return "notified:" + p.TaskID()
}

// RedisReplayGuard stores delivery markers in Redis. A nil client lets every
// delivery through, matching the worker running without Redis.
type RedisReplayGuard struct {
	Client redis.Cmdable
}

// Acquire claims key; false means the notification already went out.
func (r RedisReplayGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	if ttl <= 0 {
		ttl = DefaultDeliveryTTL
	}
	return r.Client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Release forgets key after a failed send so the retry can deliver.
func (r RedisReplayGuard) Release(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}
