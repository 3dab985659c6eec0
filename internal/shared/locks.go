package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AwardLockKey builds redis keys for the award critical section. Two
// concurrent awards on the same RFQ contend on this key; at most one wins.
func AwardLockKey(rfqID int64) string {
	return fmt.Sprintf("procure:rfq:%d:award", rfqID)
}

// ErrLockHeld indicates another holder owns the lock.
var ErrLockHeld = errors.New("lock held by another operation")

// Mutex is a best-effort redis mutex (SET NX with TTL). Database-level
// optimistic versioning remains the correctness backstop; the mutex only
// shortcuts doomed racers.
type Mutex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMutex constructs a Mutex with the given hold TTL.
func NewMutex(client *redis.Client, ttl time.Duration) *Mutex {
	return &Mutex{client: client, ttl: ttl}
}

// Acquire takes the lock and returns a release func, or ErrLockHeld.
func (m *Mutex) Acquire(ctx context.Context, key string) (func(), error) {
	if m == nil || m.client == nil {
		// No redis configured: rely on the optimistic version check alone.
		return func() {}, nil
	}
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, key, token, m.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func() {
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		_ = m.client.Eval(context.Background(), script, []string{key}, token).Err()
	}
	return release, nil
}
