package account

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cn-chinese-link/internal/data/models"
	"cn-chinese-link/internal/db/sqlite"
	"cn-chinese-link/internal/domain/tracking"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "account.db"), LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close(db) })
	return NewService(db, tracking.NewTracker(db)), db
}

func TestRegisterValidation(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name                     string
		email, password, confirm string
		wantMsg                  string
	}{
		{"empty email", "", "123456", "", "请填写邮箱和密码 Please fill in email and password"},
		{"short password", "a@b.c", "12345", "", "密码至少6位 Password must be at least 6 characters"},
		{"mismatch", "a@b.c", "123456", "654321", "两次密码不一致 Passwords do not match"},
		{"no at", "abc", "123456", "123456", "请输入有效邮箱 Please enter a valid email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(ctx, tt.email, tt.password, tt.confirm, "")
			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	s, db := newService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "Mike@Example.com", "secret1", "secret1", "")
	require.NoError(t, err)
	assert.Equal(t, "mike@example.com", u.Email)
	assert.Equal(t, "Mike", u.Nickname)
	assert.Equal(t, 3, u.HSKLevel)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	_, err = s.Register(ctx, "mike@example.com", "another", "", "m2")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = s.Login(ctx, "mike@example.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	logged, err := s.Login(ctx, "MIKE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)

	info, err := s.Info(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, info.LastLogin)
	assert.True(t, fixed.Equal(*info.LastLogin))

	var names []string
	require.NoError(t, db.Model(&models.Event{}).Order("id").Pluck("event_name", &names).Error)
	assert.Equal(t, []string{"user_register", "user_login"}, names)
}

func TestLegacyPasswordUpgrade(t *testing.T) {
	s, db := newService(t)
	ctx := context.Background()

	sum := sha256.Sum256([]byte("oldpass"))
	legacy := models.User{Email: "old@example.com", PasswordHash: hex.EncodeToString(sum[:]), Nickname: "old"}
	require.NoError(t, db.Create(&legacy).Error)

	_, err := s.Login(ctx, "old@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Login(ctx, "old@example.com", "oldpass")
	require.NoError(t, err)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, legacy.ID).Error)
	assert.Contains(t, reloaded.PasswordHash, "$2")

	_, err = s.Login(ctx, "old@example.com", "oldpass")
	assert.NoError(t, err)
}

func TestStatsAndProfile(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "a@b.c", "123456", "", "小王")
	require.NoError(t, err)

	require.NoError(t, s.UpdateStats(ctx, u.ID, 2, 1))
	require.NoError(t, s.UpdateStats(ctx, u.ID, 1, 0))
	info, err := s.Info(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, info.TotalConversations)
	assert.Equal(t, 1, info.TotalWordsLearned)

	updated, err := s.UpdateProfile(ctx, u.ID, "", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.HSKLevel)
	assert.Equal(t, "小王", updated.Nickname)

	_, err = s.UpdateProfile(ctx, u.ID, "x", 9)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.UpdateProfile(ctx, 999, "x", 2)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = s.Info(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
