package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	locker := NewRedis(client, "calendar:")

	ok, err := locker.TryLock(ctx, "publish:p1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("calendar:publish:p1"))

	ok, err = locker.TryLock(ctx, "publish:p1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = locker.TryLock(ctx, "publish:p1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, locker.Unlock(ctx, "publish:p1"))
	assert.False(t, mr.Exists("calendar:publish:p1"))
}

func TestRedisUnlockKeepsAnotherOwnersClaim(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	slow := NewRedis(client, "calendar:")
	other := NewRedis(client, "calendar:")

	ok, err := slow.TryLock(ctx, "publish:p1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = other.TryLock(ctx, "publish:p1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, slow.Unlock(ctx, "publish:p1"))
	assert.True(t, mr.Exists("calendar:publish:p1"))

	ok, err = slow.TryLock(ctx, "publish:p1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, other.Unlock(ctx, "publish:p1"))
	assert.False(t, mr.Exists("calendar:publish:p1"))
}

func TestRedisLockerUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	_, err := NewRedis(client, "").TryLock(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	locker := NewLocal()
	locker.now = func() time.Time { return now }

	ok, _ := locker.TryLock(ctx, "notify:p1:published", time.Minute)
	assert.True(t, ok)

	ok, _ = locker.TryLock(ctx, "notify:p1:published", time.Minute)
	assert.False(t, ok)

	ok, _ = locker.TryLock(ctx, "notify:p1:failed", time.Minute)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = locker.TryLock(ctx, "notify:p1:published", time.Minute)
	assert.True(t, ok)

	require.NoError(t, locker.Unlock(ctx, "notify:p1:published"))
	ok, _ = locker.TryLock(ctx, "notify:p1:published", time.Minute)
	assert.True(t, ok)
}
