package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	id "securekyc/pkg/domain"
	"securekyc/pkg/platform/sentinel"
	txcontext "securekyc/pkg/platform/tx"
)

const (
	lockKeyPrefix    = "kyc:resubmit-lock:"
	defaultLockTTL   = 10 * time.Second
	lockRetryBackoff = 25 * time.Millisecond
)

// releaseScript deletes the lock only while it still holds our token, so an
// expired holder cannot release a lock that was since taken by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock serializes per-user work across service instances with a
// SET NX PX lock.
type RedisLock struct {
	client  redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisLock builds a lock runner. ttl bounds how long a crashed holder can
// block a user; timeout bounds the whole unit of work.
func NewRedisLock(client redis.UniversalClient, ttl, timeout time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, ttl: ttl, timeout: timeout}
}

func (l *RedisLock) RunInTx(ctx context.Context, userID id.UserID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return txcontext.Aborted(err)
	}

	ctx, cancel := txcontext.WithDeadline(ctx, l.timeout)
	defer cancel()

	key := lockKeyPrefix + userID.String()
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer func() {
		// Release even when ctx has expired.
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}()

	return txcontext.Aborted(fn(ctx))
}

func (l *RedisLock) acquire(ctx context.Context, key, token string) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return txcontext.Aborted(ctx.Err())
			}
			return fmt.Errorf("acquire user lock: %w: %v", sentinel.ErrUnavailable, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return txcontext.Aborted(ctx.Err())
		case <-time.After(lockRetryBackoff):
		}
	}
}
