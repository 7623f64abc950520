package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cn-chinese-link/internal/data/models"
	"cn-chinese-link/internal/db/sqlite"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "stats.db"), LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close(db) })
	return db
}

func ptr[T any](v T) *T { return &v }

func TestUsers(t *testing.T) {
	db := openDB(t)
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.Local)
	require.NoError(t, db.Create(&[]models.User{
		{Email: "a@x.com", PasswordHash: "h", TotalConversations: 3, LastLogin: ptr(now.AddDate(0, 0, -3))},
		{Email: "b@x.com", PasswordHash: "h", TotalConversations: 2, LastLogin: ptr(now.AddDate(0, -1, 0))},
		{Email: "c@x.com", PasswordHash: "h"},
	}).Error)

	st, err := NewService(db).Users(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.ActiveThisMonth)
	assert.Equal(t, 5, st.TotalConversations)
	assert.Equal(t, "c@x.com", st.Users[0].Email)
}

func TestRoleScenes(t *testing.T) {
	db := openDB(t)
	data := []string{
		`{"role":"小李","scene":"周末约饭","hsk_level":3}`,
		`{"role":"小李","scene":"周末约饭","hsk_level":3}`,
		`{"role":"张总","scene":"薪资谈判","hsk_level":5}`,
		`{"role":"服务员","scene":"点菜"}`,
		`not json`,
	}
	for _, d := range data {
		require.NoError(t, db.Create(&models.Event{EventName: "conversation_started", EventData: d}).Error)
	}
	require.NoError(t, db.Create(&models.Event{EventName: "message_sent", EventData: `{"role":"小李"}`}).Error)

	st, err := NewService(db).RoleScenes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, st.Total)

	require.Len(t, st.Roles, 3)
	assert.Equal(t, Count{Name: "小李", Count: 2, Percent: 40}, st.Roles[0])
	// 同为1次按名字排序
	assert.Equal(t, "张总", st.Roles[1].Name)
	assert.Equal(t, "服务员", st.Roles[2].Name)

	require.Len(t, st.HSK, 2)
	assert.Equal(t, HSKCount{Level: 3, Count: 3, Percent: 60}, st.HSK[0])
	assert.Equal(t, 5, st.HSK[1].Level)

	assert.Equal(t, "小李 + 周末约饭", st.Pairs[0].Name)
	assert.LessOrEqual(t, len(st.Pairs), TopPairs)
}

func TestRoleScenesTopPairs(t *testing.T) {
	db := openDB(t)
	for i := 0; i < 7; i++ {
		require.NoError(t, db.Create(&models.Event{
			EventName: "conversation_started",
			EventData: `{"role":"r` + string(rune('a'+i)) + `","scene":"s"}`,
		}).Error)
	}
	st, err := NewService(db).RoleScenes(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.Pairs, TopPairs)
	assert.Len(t, st.Roles, 7)
}

func TestVocabAndEvents(t *testing.T) {
	db := openDB(t)
	u := models.User{Email: "v@x.com", PasswordHash: "h"}
	require.NoError(t, db.Create(&u).Error)

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.Local)
	require.NoError(t, db.Create(&[]models.Vocab{
		{UserID: u.ID, Word: "银行", Meaning: "bank", Mastered: 1, CreatedAt: base},
		{UserID: u.ID, Word: "方便", Meaning: "convenient", CreatedAt: base.Add(time.Hour)},
		{UserID: 999, Word: "睡觉", Meaning: "sleep", CreatedAt: base.Add(2 * time.Hour)},
	}).Error)

	svc := NewService(db)
	vs, err := svc.Vocab(context.Background(), DefaultVocabLimit)
	require.NoError(t, err)
	assert.Equal(t, 3, vs.Total)
	assert.Equal(t, 1, vs.Mastered)
	assert.Equal(t, 2, vs.Pending)
	require.Len(t, vs.Words, 3)
	assert.Equal(t, "睡觉", vs.Words[0].Word)
	assert.Equal(t, Placeholder, vs.Words[0].User)
	assert.Equal(t, "v@x.com", vs.Words[1].User)
	assert.True(t, vs.Words[2].Mastered)

	vs, err = svc.Vocab(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, vs.Words, 1)
	assert.Equal(t, 3, vs.Total)

	require.NoError(t, db.Create(&[]models.Event{
		{UserID: &u.ID, EventName: "user_login", EventData: `{"email":"v@x.com"}`},
		{EventName: "start_learning", EventData: "{}"},
		{UserID: &u.ID, EventName: "user_login", EventData: "{}"},
	}).Error)

	es, err := svc.Events(context.Background(), DefaultEventLimit)
	require.NoError(t, err)
	assert.Equal(t, 3, es.Total)
	require.Len(t, es.Counts, 2)
	assert.Equal(t, "user_login", es.Counts[0].Name)
	assert.Equal(t, 2, es.Counts[0].Count)

	require.Len(t, es.Recent, 3)
	assert.Equal(t, "user_login", es.Recent[0].EventName)
	assert.Equal(t, Placeholder, es.Recent[0].Data)
	assert.Equal(t, Anonymous, es.Recent[1].User)
	assert.Equal(t, `{"email":"v@x.com"}`, es.Recent[2].Data)
}

func TestSummary(t *testing.T) {
	db := openDB(t)
	now := time.Now()
	require.NoError(t, db.Create(&models.User{Email: "s@x.com", PasswordHash: "h"}).Error)
	require.NoError(t, db.Create(&[]models.Vocab{
		{UserID: 1, Word: "a", Mastered: 1},
		{UserID: 1, Word: "b"},
	}).Error)
	require.NoError(t, db.Create(&[]models.Event{
		{EventName: "x", EventData: "{}", CreatedAt: now},
		{EventName: "x", EventData: "{}", CreatedAt: now.AddDate(0, 0, -2)},
	}).Error)

	sum, err := NewService(db).Summary(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Users)
	assert.Equal(t, 2, sum.Events)
	assert.Equal(t, 2, sum.VocabTotal)
	assert.Equal(t, 1, sum.VocabMastered)
	assert.Equal(t, 1, sum.EventsToday)
}
