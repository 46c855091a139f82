package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-proposals/internal/lock"
)

func newLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
}

func TestGenerateKey(t *testing.T) {
	require.Equal(t, "lock:generate:acme:est-1", lock.GenerateKey("acme", "est-1"))
}

func TestWithLockMutualExclusion(t *testing.T) {
	locker := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := lock.GenerateKey("acme", "est-1")

	const workers = 4
	var inside, overlaps int32
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- locker.WithLock(ctx, key, time.Second, func(context.Context) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Zero(t, atomic.LoadInt32(&overlaps), "critical sections overlapped")
}

func TestWithLockGivesUpWhenContextExpires(t *testing.T) {
	locker := newLocker(t)
	key := lock.GenerateKey("acme", "est-2")

	held := make(chan struct{})
	release := make(chan struct{})
	holderErr := make(chan error, 1)
	go func() {
		holderErr <- locker.WithLock(context.Background(), key, time.Second, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, key, time.Second, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-holderErr)
}

func TestWithLockRequiresClientAndCallback(t *testing.T) {
	require.Error(t, lock.Locker{}.WithLock(context.Background(), "k", time.Second, func(context.Context) error { return nil }))

	locker := newLocker(t)
	require.Error(t, locker.WithLock(context.Background(), "k", time.Second, nil))
}
