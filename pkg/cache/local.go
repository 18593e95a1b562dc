package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// localCache 基于 LRU 的进程内缓存，所有条目共享同一个 TTL
type localCache struct {
	lru *expirable.LRU[string, string]
}

// NewLocalCache 创建本地缓存
func NewLocalCache(config LocalConfig) Cache {
	size := config.MaxSize
	if size <= 0 {
		size = 1000
	}
	return &localCache{
		lru: expirable.NewLRU[string, string](size, nil, config.DefaultExpiration),
	}
}

func (lc *localCache) Get(_ context.Context, key string) (string, bool) {
	return lc.lru.Get(key)
}

// Set ignores expiration; the LRU applies its configured TTL to every entry.
func (lc *localCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	lc.lru.Add(key, value)
	return nil
}

func (lc *localCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		lc.lru.Remove(key)
	}
	return nil
}

func (lc *localCache) Clear(_ context.Context) error {
	lc.lru.Purge()
	return nil
}

func (lc *localCache) Close() error {
	return nil
}
