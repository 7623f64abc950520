package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"cn-chinese-link/internal/data/models"
	log "cn-chinese-link/logger"
)

// Config SQLite配置
type Config struct {
	Path     string `mapstructure:"path" json:"path"`
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	// 超过该耗时的SQL记为慢查询
	SlowThreshold time.Duration `mapstructure:"slow_threshold" json:"slow_threshold"`
}

func DefaultConfig() Config {
	return Config{
		Path:          "chinese_learning.db",
		LogLevel:      "warn",
		SlowThreshold: 200 * time.Millisecond,
	}
}

// Open 打开数据库，缺失的表自动创建
func Open(cfg Config) (*gorm.DB, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := open(cfg, "")
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = Close(db)
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	log.Log("path", cfg.Path).Info("SQLite初始化成功")
	return db, nil
}

// OpenExisting 只读打开已有数据库，不建表也不改表结构
func OpenExisting(path string) (*gorm.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("数据库文件不存在: %s", path)
	}
	return open(Config{Path: path, LogLevel: "silent"}, "&_pragma=query_only(1)")
}

func open(cfg Config, extraPragmas string) (*gorm.DB, error) {
	if cfg.SlowThreshold == 0 {
		cfg.SlowThreshold = DefaultConfig().SlowThreshold
	}
	if log.DbLog == nil {
		log.InitDbLog(log.StandardLogger())
	}
	gl := gormlogger.New(log.DbLog, gormlogger.Config{
		SlowThreshold:             cfg.SlowThreshold,
		LogLevel:                  parseLevel(cfg.LogLevel),
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})

	dsn := cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)" + extraPragmas
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite单写者
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// migrate 只创建不存在的表，已有的表(包括旧版应用建的)不做改动
func migrate(db *gorm.DB) error {
	m := db.Migrator()
	for _, model := range models.All() {
		if m.HasTable(model) {
			continue
		}
		if err := m.CreateTable(model); err != nil {
			return err
		}
	}
	return nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func parseLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
