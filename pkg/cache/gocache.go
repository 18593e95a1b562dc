package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// goCacheWrapper go-cache包装器
type goCacheWrapper struct {
	cache *gocache.Cache
}

// NewGoCache 创建基于go-cache的本地缓存
func NewGoCache(config LocalConfig) Cache {
	return &goCacheWrapper{
		cache: gocache.New(config.DefaultExpiration, config.CleanupInterval),
	}
}

func (gc *goCacheWrapper) Get(_ context.Context, key string) (string, bool) {
	if value, found := gc.cache.Get(key); found {
		s, ok := value.(string)
		return s, ok
	}
	return "", false
}

func (gc *goCacheWrapper) Set(_ context.Context, key string, value string, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = gocache.DefaultExpiration
	}
	gc.cache.Set(key, value, expiration)
	return nil
}

func (gc *goCacheWrapper) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		gc.cache.Delete(key)
	}
	return nil
}

func (gc *goCacheWrapper) Clear(_ context.Context) error {
	gc.cache.Flush()
	return nil
}

// Close go-cache不需要关闭连接
func (gc *goCacheWrapper) Close() error {
	return nil
}
