package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"TTSCurator/pkg/logger"
	"TTSCurator/pkg/util"
)

const filePrefix = "tts_dataset_"

// Backup 定期为 SQLite 数据库生成快照
type Backup struct {
	DB     *gorm.DB
	Driver string
	Dir    string
	// 保留最近的份数，<=0 表示不清理
	Keep int
}

// Run 实现 scheduler.Job
func (b *Backup) Run(ctx context.Context) {
	dst, err := b.Execute(ctx)
	if err != nil {
		logger.Warn("backup failed", zap.Error(err))
		return
	}
	logger.Info("backup completed", zap.String("file", dst))
}

// Execute 执行一次备份并返回生成的文件路径
func (b *Backup) Execute(ctx context.Context) (string, error) {
	if b.Driver != util.DriverSQLite {
		// mysql/pg 交给数据库自身的备份工具
		return "", fmt.Errorf("backup not supported for driver %q", b.Driver)
	}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	dst := filepath.Join(b.Dir, fmt.Sprintf("%s%s.db", filePrefix, time.Now().Format("20060102_150405")))
	if err := BackupSQLiteDatabase(ctx, b.DB, dst); err != nil {
		return "", err
	}
	if b.Keep > 0 {
		if err := b.prune(); err != nil {
			logger.Warn("backup prune failed", zap.Error(err))
		}
	}
	return dst, nil
}

// BackupSQLiteDatabase 通过 VACUUM INTO 生成一致的数据库副本，源库可保持打开
func BackupSQLiteDatabase(ctx context.Context, db *gorm.DB, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("backup file already exists: %s", dst)
	}
	if err := db.WithContext(ctx).Exec("VACUUM INTO ?", dst).Error; err != nil {
		return fmt.Errorf("vacuum into %s: %w", dst, err)
	}
	return nil
}

func (b *Backup) prune() error {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) && strings.HasSuffix(e.Name(), ".db") {
			files = append(files, e.Name())
		}
	}
	// 文件名含时间戳，字典序即时间序
	sort.Strings(files)
	for len(files) > b.Keep {
		if err := os.Remove(filepath.Join(b.Dir, files[0])); err != nil {
			return err
		}
		files = files[1:]
	}
	return nil
}
