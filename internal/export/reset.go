package export

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"TTSCurator/internal/curation"
	"TTSCurator/internal/models"
	apperrors "TTSCurator/pkg/errors"
	"TTSCurator/pkg/logger"
	"TTSCurator/pkg/util"
)

// Resetter wipes every stored audio file and every table.
type Resetter struct {
	db       *gorm.DB
	settings *curation.SettingsService
}

func NewResetter(db *gorm.DB, settings *curation.SettingsService) *Resetter {
	return &Resetter{db: db, settings: settings}
}

// Reset 先删除文件（失败只记录日志），再在一个事务中清空所有表
func (r *Resetter) Reset(ctx context.Context) (string, error) {
	store, err := r.settings.AudioStore(ctx)
	if err != nil {
		return "", err
	}
	names, err := store.List(ctx)
	if err != nil {
		logger.Warn("list audio files failed", zap.Error(err))
	}
	for _, name := range names {
		if err := store.Delete(ctx, name); err != nil {
			logger.Warn("failed to delete audio file", zap.String("filename", name), zap.Error(err))
		}
	}

	if err := models.ClearAll(r.db.WithContext(ctx)); err != nil {
		return "", apperrors.Internal(err, "Failed to clear database: "+err.Error())
	}
	r.settings.Reset(ctx)

	util.Sig().Emit(models.SigDatabaseCleared, r, map[string]any{"message": "All data cleared", "files": len(names)})
	return "All data cleared successfully", nil
}
