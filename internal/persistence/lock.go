package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when the key stayed locked until the context or wait budget ran out.
var ErrLockNotAcquired = errors.New("lock not acquired")

const (
	lockKeyPrefix  = "civic:lock:request:"
	lockMaxWait    = 5 * time.Second
	defaultLockTTL = 15 * time.Second
)

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RequestLocker serializes mutations per request id across service instances.
type RequestLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRequestLocker builds a locker; a zero ttl uses the default.
func NewRequestLocker(client *redis.Client, ttl time.Duration) *RequestLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RequestLocker{client: client, ttl: ttl}
}

func newLockBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = lockMaxWait
	return bo
}

// Lock blocks until the request lock is held and returns its release func.
func (l *RequestLocker) Lock(ctx context.Context, requestID string) (func(context.Context) error, error) {
	key := lockKeyPrefix + requestID
	token := uuid.NewString()

	err := backoff.Retry(func() error {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquire lock %s: %w", key, err))
		}
		if !ok {
			return ErrLockNotAcquired
		}
		return nil
	}, backoff.WithContext(newLockBackoff(), ctx))
	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: request %s", ErrLockNotAcquired, requestID)
		}
		return nil, err
	}

	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
