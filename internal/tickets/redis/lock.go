package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-checkin/internal/logger"
)

var ErrLockTimeout = errors.New("timed out waiting for ticket scan lock")

const lockKeyPrefix = "scan_lock:"

// Deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis serializes scans of the same ticket across service instances.
type Redis struct {
	Client *redis.Client
	Logger *logger.Logger
	// TTL bounds how long a crashed holder can block a ticket.
	TTL time.Duration
	// Wait is the longest Acquire will poll before giving up.
	Wait time.Duration
	// RetryInterval is the pause between SetNX attempts.
	RetryInterval time.Duration
}

func NewRedis(client *redis.Client, log *logger.Logger, ttl, wait time.Duration) *Redis {
	return &Redis{
		Client:        client,
		Logger:        log,
		TTL:           ttl,
		Wait:          wait,
		RetryInterval: 25 * time.Millisecond,
	}
}

func lockKey(uniqueID string) string {
	return lockKeyPrefix + uniqueID
}

// LockTicket makes one attempt to take the lock for uniqueID under owner.
func (r *Redis) LockTicket(ctx context.Context, uniqueID, owner string) (bool, error) {
	return r.Client.SetNX(ctx, lockKey(uniqueID), owner, r.TTL).Result()
}

// UnlockTicket releases the lock if owner still holds it.
func (r *Redis) UnlockTicket(ctx context.Context, uniqueID, owner string) error {
	err := unlockScript.Run(ctx, r.Client, []string{lockKey(uniqueID)}, owner).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

// Acquire polls until the lock for key is held, ctx ends, or Wait elapses.
// The returned release func is safe to call once.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	owner := uuid.NewString()
	deadline := time.Now().Add(r.Wait)

	interval := r.RetryInterval
	if interval <= 0 {
		interval = 25 * time.Millisecond
	}

	for {
		ok, err := r.LockTicket(ctx, key, owner)
		if err != nil {
			return nil, fmt.Errorf("acquire scan lock for %s: %w", key, err)
		}
		if ok {
			return func() {
				// Release even if the request context was cancelled meanwhile.
				if err := r.UnlockTicket(context.Background(), key, owner); err != nil {
					r.Logger.Warn("REDIS", fmt.Sprintf("Failed to release scan lock for %s: %v", key, err))
				}
			}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
