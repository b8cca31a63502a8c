package attempts

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for atomic increment-if-below-cap. The check and the increment
// happen in one script execution, so concurrent reservations for the same
// customer cannot both pass a GET → check → INCR race.
const reserveLuaScript = `
local key = KEYS[1]
local cap = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")

if current + 1 > cap then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}
`

const releaseLuaScript = `
local key = KEYS[1]

local current = tonumber(redis.call("GET", key) or "0")
if current <= 0 then
    return 0
end

return redis.call("DECR", key)
`

// RedisCounter is the shared Counter for multi-worker deployments. Counters
// live under day-scoped keys and expire on their own after two days, so
// midnight rollover needs no sweeper.
type RedisCounter struct {
	redis         *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
}

// NewRedisCounter creates a counter with pre-compiled Lua scripts.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{
		redis:         client,
		reserveScript: redis.NewScript(reserveLuaScript),
		releaseScript: redis.NewScript(releaseLuaScript),
	}
}

// NewRedisCounterFromURL creates a counter by connecting to Redis.
func NewRedisCounterFromURL(redisURL string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisCounter(client), nil
}

func redisKey(customerID, day string) string {
	return fmt.Sprintf("attempts:%s:%s", customerID, day)
}

// Reserve implements Counter.
func (c *RedisCounter) Reserve(ctx context.Context, customerID, day string, capPerDay int) (bool, error) {
	ttl := int((48 * time.Hour).Seconds())
	result, err := c.reserveScript.Run(ctx, c.redis,
		[]string{redisKey(customerID, day)},
		capPerDay, ttl,
	).Result()
	if err != nil {
		return false, fmt.Errorf("attempt reservation failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, fmt.Errorf("unexpected script result: %v", result)
	}
	allowed, _ := values[0].(int64)
	return allowed == 1, nil
}

// Release implements Counter.
func (c *RedisCounter) Release(ctx context.Context, customerID, day string) error {
	if err := c.releaseScript.Run(ctx, c.redis, []string{redisKey(customerID, day)}).Err(); err != nil {
		return fmt.Errorf("attempt release failed: %w", err)
	}
	return nil
}

// Current implements Counter.
func (c *RedisCounter) Current(ctx context.Context, customerID, day string) (int, error) {
	val, err := c.redis.Get(ctx, redisKey(customerID, day)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("attempt count read failed: %w", err)
	}
	return val, nil
}

// Close releases the underlying Redis connection.
func (c *RedisCounter) Close() error {
	return c.redis.Close()
}
