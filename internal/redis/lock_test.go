package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisScheduleLocker(client, 2*time.Second)
}

func TestWithScheduleLockRunsSection(t *testing.T) {
	locker := newTestLocker(t)

	ran := false
	err := locker.WithScheduleLock(context.Background(), uuid.New(), "2025-01-01", func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestWithScheduleLockContention(t *testing.T) {
	locker := newTestLocker(t)
	providerID := uuid.New()

	err := locker.WithScheduleLock(context.Background(), providerID, "2025-01-01", func(ctx context.Context) error {
		// Same provider day while held: the second caller must back off.
		inner := locker.WithScheduleLock(ctx, providerID, "2025-01-01", func(ctx context.Context) error {
			t.Fatal("critical section must not run while the lock is held")
			return nil
		})
		require.ErrorIs(t, inner, ErrLockNotAcquired)

		// A different day is an independent lock.
		return locker.WithScheduleLock(ctx, providerID, "2025-01-02", func(ctx context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
}

func TestWithScheduleLockReleasesAfterSection(t *testing.T) {
	locker := newTestLocker(t)
	providerID := uuid.New()

	for i := 0; i < 3; i++ {
		err := locker.WithScheduleLock(context.Background(), providerID, "2025-01-01", func(ctx context.Context) error {
			return nil
		})
		require.NoError(t, err)
	}
}

func TestWithScheduleLockPropagatesSectionError(t *testing.T) {
	locker := newTestLocker(t)
	providerID := uuid.New()

	sectionErr := context.DeadlineExceeded
	err := locker.WithScheduleLock(context.Background(), providerID, "2025-01-01", func(ctx context.Context) error {
		return sectionErr
	})
	require.ErrorIs(t, err, sectionErr)

	// The lock is released even when the section fails.
	err = locker.WithScheduleLock(context.Background(), providerID, "2025-01-01", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
}
