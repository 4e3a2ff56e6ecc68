// Package redis holds the Redis-backed throttling and replay stores.
package redis

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Connect parses url, builds a client and pings it.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func hashKey(prefix, key string) string {
	return fmt.Sprintf("%s%x", prefix, sha256.Sum256([]byte(key)))
}

// Increment and set the TTL on first hit so the window is fixed.
var rateLimitScript = goredis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

type RateLimitRepo struct {
	rdb *goredis.Client
}

func NewRateLimitRepo(rdb *goredis.Client) *RateLimitRepo {
	return &RateLimitRepo{rdb: rdb}
}

func (r *RateLimitRepo) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := rateLimitScript.Run(ctx, r.rdb, []string{hashKey("hotel:rl:", key)}, window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return count <= limit, nil
}

// Keys arrive already hashed by the idempotency middleware.
const idemPrefix = "hotel:"

type IdempotencyRepo struct {
	rdb *goredis.Client
}

func NewIdempotencyRepo(rdb *goredis.Client) *IdempotencyRepo {
	return &IdempotencyRepo{rdb: rdb}
}

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, idemPrefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *IdempotencyRepo) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, idemPrefix+key, value, ttl).Err()
}

func (r *IdempotencyRepo) Reserve(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, idemPrefix+key, value, ttl).Result()
}

// Delete only if the key still holds the caller's marker.
var releaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

func (r *IdempotencyRepo) Release(ctx context.Context, key, value string) error {
	return releaseScript.Run(ctx, r.rdb, []string{idemPrefix + key}, value).Err()
}
