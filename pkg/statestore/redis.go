package statestore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store over a Redis connection. Concurrency counters
// are plain INCR/DECR keys; locks are SET NX PX keys whose value is a
// per-process token, so ReleaseLock only deletes a lock this process set
// (via a Lua compare-and-delete, avoiding a stale-owner release race).
type RedisStore struct {
	client *redis.Client
	token  string
}

// NewRedisStore connects to addr (host:port) and returns a ready Store.
func NewRedisStore(addr, password string, db int, token string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		token: token,
	}
}

func concurrencyKey(accessKey string) string {
	return fmt.Sprintf("concurrency_used:%s", accessKey)
}

func lockKey(lockID, resourceGroup string) string {
	if resourceGroup == "" {
		return fmt.Sprintf("lock:%s", lockID)
	}
	return fmt.Sprintf("lock:%s:%s", lockID, resourceGroup)
}

func roundRobinKey(resourceGroup string) string {
	return fmt.Sprintf("roundrobin:%s", resourceGroup)
}

func (s *RedisStore) IncrConcurrency(ctx context.Context, accessKey string) (int64, error) {
	return s.client.Incr(ctx, concurrencyKey(accessKey)).Result()
}

func (s *RedisStore) DecrConcurrency(ctx context.Context, accessKey string) (int64, error) {
	key := concurrencyKey(accessKey)
	v, err := s.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		// Floor at zero: a decrement racing ahead of its matching
		// increment (e.g. on restart-time reconciliation) must not leave
		// a negative counter that inflates predicate headroom forever.
		if err := s.client.Set(ctx, key, 0, 0).Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return v, nil
}

func (s *RedisStore) GetConcurrency(ctx context.Context, accessKey string) (int64, error) {
	v, err := s.client.Get(ctx, concurrencyKey(accessKey)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// SetConcurrency overwrites the counter outright, used by a full-scan
// recalculation that has just re-derived the true value from the kernel
// table rather than trusting the incremental INCR/DECR history.
func (s *RedisStore) SetConcurrency(ctx context.Context, accessKey string, value int64) error {
	if value <= 0 {
		return s.client.Del(ctx, concurrencyKey(accessKey)).Err()
	}
	return s.client.Set(ctx, concurrencyKey(accessKey), value, 0).Err()
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

func (s *RedisStore) AcquireLock(ctx context.Context, lockID, resourceGroup string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, lockKey(lockID, resourceGroup), s.token, ttl).Result()
}

func (s *RedisStore) ReleaseLock(ctx context.Context, lockID, resourceGroup string) error {
	return releaseLockScript.Run(ctx, s.client, []string{lockKey(lockID, resourceGroup)}, s.token).Err()
}

func (s *RedisStore) NextRoundRobinIndex(ctx context.Context, resourceGroup string, agentCount int) (int, error) {
	if agentCount <= 0 {
		return 0, fmt.Errorf("statestore: agentCount must be positive, got %d", agentCount)
	}
	v, err := s.client.Incr(ctx, roundRobinKey(resourceGroup)).Result()
	if err != nil {
		return 0, err
	}
	// INCR starts at 1 on a fresh key; the first picked index should be 0.
	idx := int((v - 1) % int64(agentCount))
	return idx, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
