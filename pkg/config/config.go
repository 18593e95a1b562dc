package config

import (
	"log"
	"os"
	"time"

	"TTSCurator/pkg/cache"
	"TTSCurator/pkg/logger"
	"TTSCurator/pkg/util"
)

// MinioConfig 对象存储（音频存储 / S3 导出共用结构）
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	BaseURL   string
}

// COSConfig 腾讯云 COS 导出配置
type COSConfig struct {
	Region    string
	SecretID  string
	SecretKey string
	UseSSL    bool
}

// HubConfig 数据集仓库（Hugging Face）配置
type HubConfig struct {
	Endpoint string
	Token    string
	Repo     string
	Timeout  time.Duration
}

// config/config.go
type Config struct {
	DBDriver string `env:"DB_DRIVER"`
	DSN      string `env:"DSN"`
	Log      logger.LogConfig
	Addr     string `env:"ADDR"`
	Mode     string `env:"MODE"`

	APIPrefix   string   `env:"API_PREFIX"`
	CORSOrigins []string `env:"CORS_ORIGINS"`
	RateLimit   string   `env:"RATE_LIMIT"`
	MetricsPath string   `env:"METRICS_PATH"`

	StorageDriver string `env:"STORAGE_DRIVER"` // local | minio
	StoragePath   string `env:"STORAGE_PATH"`
	Minio         MinioConfig

	ExportProvider string `env:"EXPORT_PROVIDER"` // s3 | cos
	S3             MinioConfig
	S3Timeout      time.Duration `env:"S3_EXPORT_TIMEOUT"`
	COS            COSConfig
	Hub            HubConfig

	Cache cache.Config

	BackupEnabled  bool   `env:"BACKUP_ENABLED"`
	BackupPath     string `env:"BACKUP_PATH"`
	BackupSchedule string `env:"BACKUP_SCHEDULE"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	err := util.LoadEnv(env)
	if err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = FromEnv()
	return nil
}

// FromEnv reads the configuration from the current environment only.
func FromEnv() *Config {
	return &Config{
		DBDriver: util.GetEnvDefault("DB_DRIVER", util.DriverSQLite),
		DSN:      util.GetEnvDefault("DSN", "data/tts_dataset.db"),
		Addr:     util.GetEnvDefault("ADDR", ":8000"),
		Mode:     util.GetEnvDefault("MODE", "release"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		APIPrefix:     util.GetEnv("API_PREFIX"),
		CORSOrigins:   corsOrigins(),
		RateLimit:     util.GetEnvDefault("RATE_LIMIT", "600-M"),
		MetricsPath:   util.GetEnvDefault("METRICS_PATH", "/metrics"),
		StorageDriver: util.GetEnvDefault("STORAGE_DRIVER", "local"),
		StoragePath:   util.GetEnvDefault("STORAGE_PATH", "recordings"),
		Minio: MinioConfig{
			Endpoint:  util.GetEnv("MINIO_ENDPOINT"),
			AccessKey: util.GetEnv("MINIO_ACCESS_KEY"),
			SecretKey: util.GetEnv("MINIO_SECRET_KEY"),
			Bucket:    util.GetEnv("MINIO_BUCKET"),
			UseSSL:    util.GetBoolEnv("MINIO_USE_SSL"),
			BaseURL:   util.GetEnv("MINIO_PUBLIC_BASE"),
		},
		ExportProvider: util.GetEnvDefault("EXPORT_PROVIDER", "s3"),
		S3: MinioConfig{
			Endpoint:  util.GetEnvDefault("S3_ENDPOINT", "s3.amazonaws.com"),
			AccessKey: util.GetEnvDefault("S3_ACCESS_KEY", util.GetEnv("AWS_ACCESS_KEY_ID")),
			SecretKey: util.GetEnvDefault("S3_SECRET_KEY", util.GetEnv("AWS_SECRET_ACCESS_KEY")),
			Region:    util.GetEnvDefault("S3_REGION", util.GetEnvDefault("AWS_DEFAULT_REGION", "us-east-1")),
			UseSSL:    util.GetEnv("S3_USE_SSL") == "" || util.GetBoolEnv("S3_USE_SSL"),
		},
		S3Timeout: util.GetDurationEnv("S3_EXPORT_TIMEOUT", 300*time.Second),
		COS: COSConfig{
			Region:    util.GetEnvDefault("COS_REGION", "ap-guangzhou"),
			SecretID:  util.GetEnv("COS_SECRET_ID"),
			SecretKey: util.GetEnv("COS_SECRET_KEY"),
			UseSSL:    true,
		},
		Hub: HubConfig{
			Endpoint: util.GetEnvDefault("HUGGINGFACE_ENDPOINT", "https://huggingface.co"),
			Token:    util.GetEnv("HUGGINGFACE_TOKEN"),
			Repo:     util.GetEnv("HUGGINGFACE_REPO"),
			Timeout:  util.GetDurationEnv("HF_EXPORT_TIMEOUT", 300*time.Second),
		},
		Cache: cache.Config{
			Type: util.GetEnvDefault("CACHE_TYPE", "local"),
			Redis: cache.RedisConfig{
				Addr:     util.GetEnvDefault("REDIS_ADDR", "localhost:6379"),
				Password: util.GetEnv("REDIS_PASSWORD"),
				DB:       int(util.GetIntEnv("REDIS_DB")),
				PoolSize: int(util.GetIntEnvDefault("REDIS_POOL_SIZE", 10)),
				Prefix:   util.GetEnvDefault("REDIS_PREFIX", "ttscurator:"),
			},
			Local: cache.LocalConfig{
				MaxSize:           int(util.GetIntEnvDefault("LOCAL_CACHE_MAX_SIZE", 1000)),
				DefaultExpiration: util.GetDurationEnv("LOCAL_CACHE_DEFAULT_EXPIRATION", 5*time.Minute),
				CleanupInterval:   util.GetDurationEnv("LOCAL_CACHE_CLEANUP_INTERVAL", 10*time.Minute),
			},
		},
		BackupEnabled:  util.GetBoolEnv("BACKUP_ENABLED"),
		BackupPath:     util.GetEnvDefault("BACKUP_PATH", "data/backups"),
		BackupSchedule: util.GetEnvDefault("BACKUP_SCHEDULE", "0 3 * * *"),
	}
}

func corsOrigins() []string {
	if origins := util.GetListEnv("CORS_ORIGINS"); len(origins) > 0 {
		return origins
	}
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://localhost:5174",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
		"http://127.0.0.1:5174",
	}
}
