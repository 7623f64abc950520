package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cn-chinese-link/internal/domain/session"
)

var (
	ErrInvalidToken  = errors.New("未登录或登录已过期 Please log in")
	ErrAdminPassword = errors.New("密码错误 Wrong password")
)

const (
	DefaultTTL = 7 * 24 * time.Hour
	keyPrefix  = "auth:"
)

// ClientSession 一个登录会话
type ClientSession struct {
	Token     string    `json:"-"`
	UserID    int64     `json:"user_id"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// AuthManager 令牌保存在会话存储里，每次访问顺延过期时间
type AuthManager struct {
	store         session.Store
	ttl           time.Duration
	adminPassword string
	now           func() time.Time
}

// NewAuthManager 创建新的认证管理器
func NewAuthManager(store session.Store, ttl time.Duration, adminPassword string) *AuthManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AuthManager{
		store:         store,
		ttl:           ttl,
		adminPassword: adminPassword,
		now:           time.Now,
	}
}

// CreateSession 用户登录或注册后签发令牌
func (am *AuthManager) CreateSession(ctx context.Context, userID int64) (*ClientSession, error) {
	return am.create(ctx, userID, false)
}

// CreateAdminSession 校验管理员密码后签发管理员令牌
func (am *AuthManager) CreateAdminSession(ctx context.Context, password string) (*ClientSession, error) {
	if am.adminPassword == "" || subtle.ConstantTimeCompare([]byte(password), []byte(am.adminPassword)) != 1 {
		return nil, ErrAdminPassword
	}
	return am.create(ctx, 0, true)
}

func (am *AuthManager) create(ctx context.Context, userID int64, admin bool) (*ClientSession, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	now := am.now()
	sess := &ClientSession{
		Token:     token,
		UserID:    userID,
		Admin:     admin,
		CreatedAt: now,
		LastSeen:  now,
	}
	if err := session.SetJSON(ctx, am.store, keyPrefix+token, sess, am.ttl); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// ValidateToken 验证令牌，接受带 "Bearer " 前缀的值
func (am *AuthManager) ValidateToken(ctx context.Context, token string) (*ClientSession, error) {
	token = StripBearer(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	var sess ClientSession
	if err := session.GetJSON(ctx, am.store, keyPrefix+token, &sess); err != nil {
		if session.IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	sess.Token = token

	// 更新最后访问时间
	sess.LastSeen = am.now()
	if err := session.SetJSON(ctx, am.store, keyPrefix+token, &sess, am.ttl); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	return &sess, nil
}

// RemoveToken 退出登录
func (am *AuthManager) RemoveToken(ctx context.Context, token string) error {
	token = StripBearer(token)
	if token == "" {
		return nil
	}
	return am.store.Delete(ctx, keyPrefix+token)
}

// StripBearer 移除 "Bearer " 前缀
func StripBearer(token string) string {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "Bearer ") {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}

// generateToken 生成随机令牌
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
