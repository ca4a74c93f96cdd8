package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "securekyc/pkg/domain"
	dErrors "securekyc/pkg/domain-errors"
)

func TestShardedTx_SerializesSameUser(t *testing.T) {
	tx := NewShardedTx(time.Second)
	userID := id.NewUserID()

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tx.RunInTx(context.Background(), userID, func(context.Context) error {
				n := inside.Add(1)
				for {
					cur := peak.Load()
					if n <= cur || peak.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
}

func TestShardedTx_PropagatesError(t *testing.T) {
	tx := NewShardedTx(time.Second)
	boom := errors.New("boom")

	err := tx.RunInTx(context.Background(), id.NewUserID(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestShardedTx_TimesOutWhileLocked(t *testing.T) {
	tx := NewShardedTx(50 * time.Millisecond)
	userID := id.NewUserID()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = tx.RunInTx(context.Background(), userID, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	// The holder's own deadline is longer than our wait; use an explicit one.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tx.RunInTx(ctx, userID, func(context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestShardedTx_CanceledContext(t *testing.T) {
	tx := NewShardedTx(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := tx.RunInTx(ctx, id.NewUserID(), func(context.Context) error {
		called = true
		return nil
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.False(t, called)
}

func TestShardedTx_AppliesDefaultDeadline(t *testing.T) {
	tx := NewShardedTx(0)

	err := tx.RunInTx(context.Background(), id.NewUserID(), func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	})
	assert.NoError(t, err)
}

func TestShardFor_Range(t *testing.T) {
	for range 100 {
		assert.Less(t, shardFor(id.NewUserID().String()), uint32(numShards))
	}
	u := id.NewUserID().String()
	assert.Equal(t, shardFor(u), shardFor(u))
}
