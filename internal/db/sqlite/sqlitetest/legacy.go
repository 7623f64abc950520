// Package sqlitetest 按旧版应用的建表语句生成数据库文件，供兼容性测试使用
package sqlitetest

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	LegacyEmail    = "old@example.com"
	LegacyPassword = "secret1"
	LegacyNickname = "old"
)

// LegacySchema 旧版应用 chinese_learning.db 的建表语句，逐字保留
var LegacySchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        nickname TEXT,
        hsk_level INTEGER DEFAULT 3,
        total_conversations INTEGER DEFAULT 0,
        total_words_learned INTEGER DEFAULT 0,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        last_login TIMESTAMP
    )`,
	`CREATE TABLE IF NOT EXISTS history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER,
        role TEXT,
        scene TEXT,
        sender TEXT,
        content TEXT,
        pinyin TEXT,
        english TEXT,
        keywords TEXT,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users(id)
    )`,
	`CREATE TABLE IF NOT EXISTS vocab (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER,
        word TEXT,
        meaning TEXT,
        context TEXT,
        mastered INTEGER DEFAULT 0,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users(id),
        UNIQUE(user_id, word)
    )`,
	`CREATE TABLE IF NOT EXISTS events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER,
        event_name TEXT,
        event_data TEXT,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users(id)
    )`,
}

// LegacyHash 旧版的无盐sha256十六进制密码哈希
func LegacyHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// CreateLegacyDB 在临时目录建一个旧版数据库：一个sha256密码的用户、
// 一条对话记录、一个已掌握的生词(银行)和三条事件(其中一条匿名)
func CreateLegacyDB(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chinese_learning.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}

	stmts := append([]string{}, LegacySchema...)
	stmts = append(stmts,
		`INSERT INTO users (email, password_hash, nickname) VALUES ('`+LegacyEmail+`', '`+LegacyHash(LegacyPassword)+`', '`+LegacyNickname+`')`,
		`UPDATE users SET last_login = '2024-05-01 10:00:00.123456', created_at = '2024-04-30 08:00:00' WHERE id = 1`,
		`INSERT INTO history (user_id, role, scene, sender, content, pinyin, english, keywords) VALUES (1, '小李', '周末约饭', 'user', '你好', '', '', '')`,
		`INSERT INTO vocab (user_id, word, meaning, context, mastered) VALUES (1, '银行', 'bank', '我去银行', 1)`,
		`INSERT INTO events (user_id, event_name, event_data) VALUES (1, 'user_register', '{"email": "`+LegacyEmail+`"}')`,
		`INSERT INTO events (user_id, event_name, event_data) VALUES (1, 'conversation_started', '{"role": "小李", "scene": "周末约饭", "hsk_level": 2}')`,
		`INSERT INTO events (user_id, event_name, event_data) VALUES (NULL, 'start_learning', '{}')`,
	)
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("legacy statement failed: %v\n%s", err, stmt)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("legacy db handle: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("close legacy db: %v", err)
	}
	return path
}

// TableSQL 返回sqlite_master中记录的建表语句
func TableSQL(t testing.TB, db *gorm.DB, table string) string {
	t.Helper()
	var ddl string
	if err := db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&ddl).Error; err != nil {
		t.Fatalf("read ddl of %s: %v", table, err)
	}
	return ddl
}
