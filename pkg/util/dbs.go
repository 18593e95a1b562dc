package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "pg"
)

func createDatabaseInstance(cfg *gorm.Config, driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case DriverMySQL:
		return gorm.Open(mysql.Open(dsn), cfg)
	case DriverPostgres:
		return gorm.Open(postgres.Open(dsn), cfg)
	case DriverSQLite, "":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", driver)
	}
	if dsn == "" {
		dsn = "file::memory:"
	}
	if !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, ":memory:") {
		// 数据库文件所在目录不存在时先创建
		path, _, _ := strings.Cut(dsn, "?")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

// InitDatabase opens the store for the given driver.
//
// SQLite is pinned to a single connection: every read or write is serialized
// through it, and an in-memory database stays the same database for the whole
// process lifetime.
func InitDatabase(driver, dsn string, debug bool) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
	if debug {
		cfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}
	db, err := createDatabaseInstance(cfg, driver, dsn)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite || driver == "" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}
