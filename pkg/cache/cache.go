package cache

import (
	"context"
	"time"
)

// Cache 字符串键值缓存接口
type Cache interface {
	// Get 获取缓存值
	Get(ctx context.Context, key string) (string, bool)

	// Set 设置缓存值，expiration <= 0 时使用实现的默认过期时间
	Set(ctx context.Context, key string, value string, expiration time.Duration) error

	// Delete 删除缓存
	Delete(ctx context.Context, keys ...string) error

	// Clear 清空所有缓存
	Clear(ctx context.Context) error

	// Close 关闭缓存连接
	Close() error
}

// Config 缓存配置
type Config struct {
	// 缓存类型: "local"、"gocache" 或 "redis"
	Type string `json:"type" yaml:"type" env:"CACHE_TYPE" default:"local"`

	Redis RedisConfig `json:"redis" yaml:"redis"`

	Local LocalConfig `json:"local" yaml:"local"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" env:"REDIS_ADDR" default:"localhost:6379"`
	Password string `json:"password" yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `json:"db" yaml:"db" env:"REDIS_DB" default:"0"`
	PoolSize int    `json:"pool_size" yaml:"pool_size" env:"REDIS_POOL_SIZE" default:"10"`

	// 键前缀，Clear 只删除带此前缀的键
	Prefix string `json:"prefix" yaml:"prefix" env:"REDIS_PREFIX" default:"ttscurator:"`
}

// LocalConfig 本地缓存配置
type LocalConfig struct {
	// 最大缓存项数
	MaxSize int `json:"max_size" yaml:"max_size" env:"LOCAL_CACHE_MAX_SIZE" default:"1000"`

	// 默认过期时间
	DefaultExpiration time.Duration `json:"default_expiration" yaml:"default_expiration" env:"LOCAL_CACHE_DEFAULT_EXPIRATION" default:"5m"`

	// 清理间隔（仅 gocache 使用）
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" env:"LOCAL_CACHE_CLEANUP_INTERVAL" default:"10m"`
}
