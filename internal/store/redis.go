// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// idempotentSetScript adapts the rate limiter's commit-marker pattern: it
// GETs the current value and only SETs when it differs, so a retried flush
// after a dropped response is a no-op rather than a duplicate write.
// Returns 1 if applied, 0 if the key already held this exact value.
const idempotentSetScript = `
local key = KEYS[1]
local value = ARGV[1]
local ttlSeconds = tonumber(ARGV[2])
local existing = redis.call('GET', key)
if existing == value then
  return 0
end
if ttlSeconds and ttlSeconds > 0 then
  redis.call('SET', key, value, 'EX', ttlSeconds)
else
  redis.call('SET', key, value)
end
return 1
`

// RedisStore implements Store against a github.com/redis/go-redis/v9 client.
// Plain heartbeat and observation writes use a direct SET with TTL; state
// writes (sync:state:*) go through idempotentSetScript so a flush retried
// after a timeout doesn't re-trigger downstream consumers on an unchanged
// value.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials a single Redis endpoint at addr (host:port).
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisStoreFromClient wraps an already-configured client, e.g. one built
// with TLS or auth options the simple addr constructor doesn't expose.
func NewRedisStoreFromClient(c *redis.Client) *RedisStore {
	return &RedisStore{client: c}
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if isStateKey(key) {
		args := []interface{}{string(value), int(ttl.Seconds())}
		if _, err := r.client.Eval(ctx, idempotentSetScript, []string{key}, args...).Result(); err != nil {
			return fmt.Errorf("redis idempotent set %s: %w", key, err)
		}
		return nil
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (r *RedisStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s*: %w", prefix, err)
	}
	return keys, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func isStateKey(key string) bool {
	return len(key) >= len(statePrefix) && key[:len(statePrefix)] == statePrefix
}
