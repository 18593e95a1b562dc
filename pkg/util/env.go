package util

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv 加载 .env.<env> 与 .env 文件，已存在的环境变量不会被覆盖
func LoadEnv(env string) error {
	return loadEnvFiles(".env."+env, ".env")
}

// loadEnvFiles 依次加载，缺失的文件跳过
func loadEnvFiles(names ...string) error {
	var firstErr error
	for _, name := range names {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetEnvDefault returns def when the variable is unset or blank.
func GetEnvDefault(key, def string) string {
	if v := GetEnv(key); v != "" {
		return v
	}
	return def
}

func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

func GetIntEnvDefault(key string, def int64) int64 {
	v := GetEnv(key)
	if v == "" {
		return def
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return def
	}
	return n
}

func GetBoolEnv(key string) bool {
	return cast.ToBool(GetEnv(key))
}

// GetDurationEnv accepts "30s" style values or bare seconds.
func GetDurationEnv(key string, def time.Duration) time.Duration {
	v := GetEnv(key)
	if v == "" {
		return def
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}

// GetListEnv splits a comma separated variable, dropping blanks.
func GetListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(GetEnv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
