package drafts

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAcquireScript claims or refreshes a draft lock atomically.
// KEYS[1] = lock key
// ARGV[1] = holder
// ARGV[2] = ttl in milliseconds
// Returns {1, ""} on success, {0, current_holder} when someone else holds it.
var redisAcquireScript = redis.NewScript(`
local key = KEYS[1]
local holder = ARGV[1]
local ttl = tonumber(ARGV[2])

local current = redis.call("GET", key)
if not current or current == holder then
    redis.call("SET", key, holder, "PX", ttl)
    return {1, ""}
end
return {0, current}
`)

// redisReleaseScript deletes the lock only if the caller still holds it.
var redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisRefreshScript extends the TTL only if the caller still holds it.
var redisRefreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLockService shares draft locks across processes.
type RedisLockService struct {
	client *redis.Client
	ttl    time.Duration
	clock  func() time.Time
}

func NewRedisLockService(addr, password string, db int, ttl time.Duration) *RedisLockService {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLockService{client: rdb, ttl: ttl, clock: time.Now}
}

func lockKey(docID string) string {
	return fmt.Sprintf("draftlock:%s", docID)
}

func (s *RedisLockService) Acquire(ctx context.Context, docID, holder string) (*Lock, error) {
	res, err := redisAcquireScript.Run(ctx, s.client, []string{lockKey(docID)}, holder, s.ttl.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock error: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return nil, fmt.Errorf("invalid response from lua script")
	}

	acquired, _ := results[0].(int64)
	if acquired == 1 {
		return &Lock{DocID: docID, Holder: holder, ExpiresAt: s.clock().Add(s.ttl)}, nil
	}

	currentHolder, _ := results[1].(string)
	return &Lock{DocID: docID, Holder: currentHolder}, fmt.Errorf("%w by %s", ErrLockHeld, currentHolder)
}

func (s *RedisLockService) Release(ctx context.Context, docID, holder string) error {
	if err := redisReleaseScript.Run(ctx, s.client, []string{lockKey(docID)}, holder).Err(); err != nil {
		return fmt.Errorf("redis unlock error: %w", err)
	}
	return nil
}

func (s *RedisLockService) Refresh(ctx context.Context, docID, holder string) (*Lock, error) {
	res, err := redisRefreshScript.Run(ctx, s.client, []string{lockKey(docID)}, holder, s.ttl.Milliseconds()).Int64()
	if err != nil {
		return nil, fmt.Errorf("redis refresh error: %w", err)
	}
	if res == 0 {
		return nil, fmt.Errorf("%w: refresh by non-holder", ErrLockHeld)
	}
	return &Lock{DocID: docID, Holder: holder, ExpiresAt: s.clock().Add(s.ttl)}, nil
}

var _ LockService = (*RedisLockService)(nil)
