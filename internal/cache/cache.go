/*
Copyright 2025 Halcyon Pay Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/halcyonpay/tako/config"
	redis_db "github.com/halcyonpay/tako/internal/redis-db"
)

// Cache is the read-through cache used for wallet lookups. A cache miss is
// not an error; Get leaves data untouched and returns nil.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, data interface{}) error
	Delete(ctx context.Context, key string) error
}

// RedisCache backs the Cache interface with Redis plus a local TinyLFU tier.
type RedisCache struct {
	cache *cache.Cache
}

// NewCache builds a RedisCache from the loaded configuration.
func NewCache() (Cache, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	ca, err := NewCacheWithAddresses([]string{cfg.Redis.Dns})
	if err != nil {
		return nil, err
	}
	return ca, nil
}

// local cache entries held alongside redis
const cacheSize = 128000

// NewCacheWithAddresses connects to the given redis addresses directly.
// Used by tests running against miniredis.
func NewCacheWithAddresses(addresses []string) (*RedisCache, error) {
	client, err := redis_db.NewRedisClient(addresses, false)
	if err != nil {
		return nil, err
	}

	c := cache.New(&cache.Options{
		Redis:      client.Client(),
		LocalCache: cache.NewTinyLFU(cacheSize, 1*time.Minute),
	})

	return &RedisCache{cache: c}, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return r.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

func (r *RedisCache) Get(ctx context.Context, key string, data interface{}) error {
	err := r.cache.Get(ctx, key, &data)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}

	return err
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.cache.Delete(ctx, key)
}
