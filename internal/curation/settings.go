package curation

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"TTSCurator/internal/models"
	"TTSCurator/pkg/cache"
	apperrors "TTSCurator/pkg/errors"
	"TTSCurator/pkg/logger"
	"TTSCurator/pkg/metrics"
	stores "TTSCurator/pkg/storage"
	"TTSCurator/pkg/util"
)

// 持久化的配置项
const (
	KeyStoragePath      = "storage_path"
	KeyS3Bucket         = "s3_bucket"
	KeyHuggingfaceToken = "huggingface_token"
	KeyHuggingfaceRepo  = "huggingface_repo"
)

const settingCachePrefix = "setting:"

// Settings 对外返回的全部配置
type Settings struct {
	StoragePath      string `json:"storage_path"`
	S3Bucket         string `json:"s3_bucket"`
	HuggingfaceToken string `json:"huggingface_token"`
	HuggingfaceRepo  string `json:"huggingface_repo"`
}

// SettingsUpdate carries only the keys the caller provided.
type SettingsUpdate struct {
	StoragePath      *string `json:"storage_path"`
	S3Bucket         *string `json:"s3_bucket"`
	HuggingfaceToken *string `json:"huggingface_token"`
	HuggingfaceRepo  *string `json:"huggingface_repo"`
}

func (u SettingsUpdate) pairs() map[string]string {
	out := make(map[string]string)
	if u.StoragePath != nil {
		out[KeyStoragePath] = *u.StoragePath
	}
	if u.S3Bucket != nil {
		out[KeyS3Bucket] = *u.S3Bucket
	}
	if u.HuggingfaceToken != nil {
		out[KeyHuggingfaceToken] = *u.HuggingfaceToken
	}
	if u.HuggingfaceRepo != nil {
		out[KeyHuggingfaceRepo] = *u.HuggingfaceRepo
	}
	return out
}

// StoreProvider resolves the audio store currently in effect.
type StoreProvider interface {
	AudioStore(ctx context.Context) (stores.Store, error)
}

// SettingsService reads and writes key/value settings through a cache and
// resolves the audio store they describe.
type SettingsService struct {
	db       *gorm.DB
	cache    cache.Cache
	metrics  *metrics.Metrics
	defaults map[string]string
	// 非空时音频存放在对象存储中，storage_path 仅用于展示
	objectStore stores.Store

	// gen 在每次写入前后递增；读到的值只有在期间没有写入时才回填缓存
	mu  sync.Mutex
	gen uint64
}

// NewSettingsService storagePath 是 storage_path 未设置时的默认值
func NewSettingsService(db *gorm.DB, c cache.Cache, storagePath string) *SettingsService {
	if storagePath == "" {
		storagePath = "recordings"
	}
	return &SettingsService{
		db:       db,
		cache:    c,
		defaults: map[string]string{KeyStoragePath: storagePath},
	}
}

// WithObjectStore keeps audio in store instead of the storage_path directory.
func (s *SettingsService) WithObjectStore(store stores.Store) *SettingsService {
	s.objectStore = store
	return s
}

func (s *SettingsService) WithMetrics(m *metrics.Metrics) *SettingsService {
	s.metrics = m
	return s
}

// Get 读取配置项，未设置时返回默认值
func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(ctx, settingCachePrefix+key); ok {
			if s.metrics != nil {
				s.metrics.RecordCacheHit("settings")
			}
			return v, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCacheMiss("settings")
		}
	}

	gen := s.generation()
	value, found, err := models.GetSetting(s.db.WithContext(ctx), key)
	if err != nil {
		return "", apperrors.Internal(err, "Failed to read settings")
	}
	if !found {
		value = s.defaults[key]
	}
	if s.cache != nil {
		s.fill(ctx, gen, key, value)
	}
	return value, nil
}

func (s *SettingsService) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// fill 写缓存；读取期间发生过写入则放弃，避免旧值覆盖失效结果
func (s *SettingsService) fill(ctx context.Context, gen uint64, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	if err := s.cache.Set(ctx, settingCachePrefix+key, value, 0); err != nil {
		logger.Warn("settings cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// All 返回全部配置项
func (s *SettingsService) All(ctx context.Context) (*Settings, error) {
	var out Settings
	for key, dst := range map[string]*string{
		KeyStoragePath:      &out.StoragePath,
		KeyS3Bucket:         &out.S3Bucket,
		KeyHuggingfaceToken: &out.HuggingfaceToken,
		KeyHuggingfaceRepo:  &out.HuggingfaceRepo,
	} {
		v, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return &out, nil
}

// Update upserts the provided keys, makes sure the storage directory exists
// and returns the resulting settings.
func (s *SettingsService) Update(ctx context.Context, upd SettingsUpdate) (*Settings, error) {
	pairs := upd.pairs()
	s.invalidate(ctx, pairs)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for k, v := range pairs {
			if err := models.SetSetting(tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	s.invalidate(ctx, pairs)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to save settings")
	}
	if _, err := s.EnsureStoragePath(ctx); err != nil {
		return nil, err
	}

	changed := make(map[string]string, len(pairs))
	for k, v := range pairs {
		if k == KeyHuggingfaceToken && v != "" {
			v = "***"
		}
		changed[k] = v
	}
	util.Sig().Emit(models.SigSettingsUpdated, s, changed)
	return s.All(ctx)
}

func (s *SettingsService) invalidate(ctx context.Context, pairs map[string]string) {
	if s.cache == nil || len(pairs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, settingCachePrefix+k)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		logger.Warn("settings cache invalidate failed", zap.Error(err))
	}
}

// Reset 清空缓存，数据库被清空后调用
func (s *SettingsService) Reset(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if err := s.cache.Clear(ctx); err != nil {
		logger.Warn("settings cache clear failed", zap.Error(err))
	}
}

// EnsureStoragePath creates the storage directory when audio lives on disk.
func (s *SettingsService) EnsureStoragePath(ctx context.Context) (string, error) {
	path, err := s.Get(ctx, KeyStoragePath)
	if err != nil {
		return "", err
	}
	if s.objectStore != nil {
		return path, nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", apperrors.Storage(err, "Failed to create storage directory")
	}
	return path, nil
}

// AudioStore 返回当前生效的音频存储
func (s *SettingsService) AudioStore(ctx context.Context) (stores.Store, error) {
	if s.objectStore != nil {
		return s.objectStore, nil
	}
	path, err := s.Get(ctx, KeyStoragePath)
	if err != nil {
		return nil, err
	}
	return stores.NewLocalStore(path), nil
}
