package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	_ "github.com/meridian-procure/meridian-procure/testing"
)

func TestMutexAcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mutex := NewMutex(client, time.Minute)
	ctx := context.Background()

	key := AwardLockKey(42)

	release, err := mutex.Acquire(ctx, key)
	require.NoError(t, err)

	_, err = mutex.Acquire(ctx, key)
	require.ErrorIs(t, err, ErrLockHeld)

	release()

	release2, err := mutex.Acquire(ctx, key)
	require.NoError(t, err)
	release2()
}

func TestMutexWithoutRedis(t *testing.T) {
	var mutex *Mutex
	release, err := mutex.Acquire(context.Background(), AwardLockKey(1))
	require.NoError(t, err)
	release()
}
