package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotConfigured is returned when the locker has no backing client.
	ErrNotConfigured = errors.New("lock: redis client not configured")
	// ErrLockLost cancels the callback context when the key expired or was
	// taken over while the callback was still running.
	ErrLockLost = errors.New("lock: lost ownership")
)

// Guard runs fn while holding an exclusive lock on key.
type Guard interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// CheckoutKey is the lock key serialising checkouts of one agency cart.
func CheckoutKey(agency string) string {
	return "lock:checkout:" + agency
}

// Locker provides a Redis-backed distributed lock. While the callback runs the
// key's TTL is extended every RefreshEvery (a third of the TTL by default).
type Locker struct {
	R            redis.Cmdable
	RetryBackoff time.Duration
	RefreshEvery time.Duration
}

// WithLock executes fn while holding a lock for the provided key. The lock is
// released automatically even if fn returns an error. When the lock cannot be
// acquired before the context is cancelled the context error is returned.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer l.release(context.Background(), key, token)
			return l.run(ctx, key, token, ttl, fn)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

const extendScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
else
  return 0
end`

// run calls fn while a background loop keeps the key alive.
func (l Locker) run(ctx context.Context, key, token string, ttl time.Duration, fn func(context.Context) error) error {
	every := l.RefreshEvery
	if every <= 0 {
		every = ttl / 3
	}
	if every <= 0 {
		every = time.Millisecond
	}
	lockCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-lockCtx.Done():
				return
			case <-ticker.C:
				n, err := l.R.Eval(lockCtx, extendScript, []string{key}, token, ttl.Milliseconds()).Int()
				if err == nil && n == 0 {
					cancel(ErrLockLost)
					return
				}
			}
		}
	}()

	err := fn(lockCtx)
	close(done)
	<-stopped
	if err != nil && errors.Is(context.Cause(lockCtx), ErrLockLost) {
		return fmt.Errorf("%w: %w", ErrLockLost, err)
	}
	return err
}

func (l Locker) release(ctx context.Context, key, token string) {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := l.R.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
