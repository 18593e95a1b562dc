package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache Redis缓存实现
type redisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache 创建Redis缓存
func NewRedisCache(config RedisConfig) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisCache{client: client, prefix: config.Prefix}, nil
}

func (rc *redisCache) key(k string) string {
	return rc.prefix + k
}

func (rc *redisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := rc.client.Get(ctx, rc.key(key)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (rc *redisCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return rc.client.Set(ctx, rc.key(key), value, expiration).Err()
}

func (rc *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = rc.key(k)
	}
	err := rc.client.Del(ctx, full...).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Clear 通过 SCAN 删除带前缀的键，不会影响同库的其它数据
func (rc *redisCache) Clear(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, rc.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := rc.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return rc.client.Del(ctx, batch...).Err()
	}
	return nil
}

func (rc *redisCache) Close() error {
	return rc.client.Close()
}
