package service

import (
	"context"
	"sync"
	"time"

	id "securekyc/pkg/domain"
	txcontext "securekyc/pkg/platform/tx"
)

// TxRunner serializes a unit of work per user. fn must use the context it is
// given; SQL implementations carry their transaction in it.
type TxRunner interface {
	RunInTx(ctx context.Context, userID id.UserID, fn func(ctx context.Context) error) error
}

// numShards spreads users over independent mutexes so unrelated users do not
// contend.
const numShards = 128

// ShardedTx is the in-process TxRunner: one mutex per shard, chosen by
// FNV-1a of the user ID.
type ShardedTx struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

// NewShardedTx builds a ShardedTx; a zero timeout uses the default.
func NewShardedTx(timeout time.Duration) *ShardedTx {
	return &ShardedTx{timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, userID id.UserID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return txcontext.Aborted(err)
	}

	ctx, cancel := txcontext.WithDeadline(ctx, t.timeout)
	defer cancel()

	shard := &t.shards[shardFor(userID.String())]
	if !lockWithContext(ctx, shard) {
		return txcontext.Aborted(ctx.Err())
	}
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return txcontext.Aborted(err)
	}
	return txcontext.Aborted(fn(ctx))
}

// lockWithContext acquires mu unless ctx ends first.
func lockWithContext(ctx context.Context, mu *sync.Mutex) bool {
	if mu.TryLock() {
		return true
	}
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if mu.TryLock() {
				return true
			}
		}
	}
}

func shardFor(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h % numShards
}
