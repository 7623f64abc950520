package sqlite_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cn-chinese-link/internal/data/models"
	"cn-chinese-link/internal/db/sqlite"
	"cn-chinese-link/internal/db/sqlite/sqlitetest"
	"cn-chinese-link/internal/domain/account"
	"cn-chinese-link/internal/domain/stats"
	"cn-chinese-link/internal/domain/tracking"
	"cn-chinese-link/internal/domain/vocab"
)

func TestOpenLegacyDatabase(t *testing.T) {
	path := sqlitetest.CreateLegacyDB(t)
	db, err := sqlite.Open(sqlite.Config{Path: path, LogLevel: "silent"})
	require.NoError(t, err)
	defer sqlite.Close(db)

	// 旧表结构保持原样
	assert.Contains(t, sqlitetest.TableSQL(t, db, "vocab"), "UNIQUE(user_id, word)")
	assert.Contains(t, sqlitetest.TableSQL(t, db, "history"), "FOREIGN KEY (user_id)")
	assert.Contains(t, sqlitetest.TableSQL(t, db, "users"), "created_at TIMESTAMP")

	ctx := context.Background()
	tracker := tracking.NewTracker(db)
	accounts := account.NewService(db, tracker)

	user, err := accounts.Login(ctx, sqlitetest.LegacyEmail, sqlitetest.LegacyPassword)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(user.PasswordHash, "$2"))
	assert.Equal(t, 2024, user.CreatedAt.Year())

	// 升级后仍可登录，错误密码仍被拒绝
	_, err = accounts.Login(ctx, sqlitetest.LegacyEmail, sqlitetest.LegacyPassword)
	require.NoError(t, err)
	_, err = accounts.Login(ctx, sqlitetest.LegacyEmail, "wrong-pass")
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)

	words := vocab.NewService(db, tracker)
	saved, err := words.Save(ctx, user.ID, "银行", "bank", "我要去银行")
	require.NoError(t, err)
	assert.Equal(t, 0, saved.Mastered)
	_, err = words.Save(ctx, user.ID, "咖啡", "coffee", "")
	require.NoError(t, err)
	var n int64
	require.NoError(t, db.Model(&models.Vocab{}).Where("word = ?", "银行").Count(&n).Error)
	assert.Equal(t, int64(1), n)

	svc := stats.NewService(db)
	now := time.Now()

	us, err := svc.Users(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, us.Total)
	assert.Equal(t, 1, us.ActiveThisMonth)
	assert.Equal(t, sqlitetest.LegacyNickname, us.Users[0].Nickname)

	rs, err := svc.RoleScenes(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rs.Total)
	assert.Equal(t, "小李", rs.Roles[0].Name)
	assert.Equal(t, 2, rs.HSK[0].Level)
	assert.Equal(t, "小李 + 周末约饭", rs.Pairs[0].Name)

	vs, err := svc.Vocab(ctx, stats.DefaultVocabLimit)
	require.NoError(t, err)
	assert.Equal(t, 2, vs.Total)
	assert.Equal(t, 0, vs.Mastered)
	require.Len(t, vs.Words, 2)
	assert.Equal(t, sqlitetest.LegacyEmail, vs.Words[0].User)

	es, err := svc.Events(ctx, stats.DefaultEventLimit)
	require.NoError(t, err)
	// 3条旧事件 + 2次登录 + 2次保存生词
	assert.Equal(t, 7, es.Total)
	var anonymous *stats.EventRow
	for i := range es.Recent {
		if es.Recent[i].EventName == "start_learning" {
			anonymous = &es.Recent[i]
		}
	}
	require.NotNil(t, anonymous)
	assert.Equal(t, stats.Anonymous, anonymous.User)
	assert.Equal(t, stats.Placeholder, anonymous.Data)

	sum, err := svc.Summary(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Users)
	assert.Equal(t, 7, sum.Events)
	assert.Equal(t, 2, sum.VocabTotal)
}

func TestOpenExistingIsReadOnly(t *testing.T) {
	path := sqlitetest.CreateLegacyDB(t)
	db, err := sqlite.OpenExisting(path)
	require.NoError(t, err)
	defer sqlite.Close(db)

	// 不建索引也不改表
	assert.False(t, db.Migrator().HasIndex(&models.Vocab{}, "idx_vocab_user_word"))
	assert.Contains(t, sqlitetest.TableSQL(t, db, "vocab"), "UNIQUE(user_id, word)")

	sum, err := stats.NewService(db).Summary(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Users)
	assert.Equal(t, 3, sum.Events)

	err = db.Exec("INSERT INTO events (event_name, event_data) VALUES ('x', '{}')").Error
	assert.Error(t, err)
}
