// Package account 用户注册、登录和学习统计
package account

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/data/models"
	"cn-chinese-link/internal/domain/tracking"
	log "cn-chinese-link/logger"
)

var (
	ErrEmailTaken         = errors.New("该邮箱已被注册 Email already registered")
	ErrInvalidCredentials = errors.New("邮箱或密码错误 Invalid email or password")
	ErrUserNotFound       = errors.New("用户不存在 User not found")
	ErrValidation         = errors.New("validation failed")
)

const MinPasswordLen = 6

// ValidationError 表单校验失败，Message直接展示给用户
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

type Service struct {
	db      *gorm.DB
	tracker *tracking.Tracker
	now     func() time.Time
}

func NewService(db *gorm.DB, tracker *tracking.Tracker) *Service {
	return &Service{db: db, tracker: tracker, now: time.Now}
}

// Register 注册，confirm为空时不校验两次密码
func (s *Service) Register(ctx context.Context, email, password, confirm, nickname string) (*models.User, error) {
	email = strings.TrimSpace(email)
	nickname = strings.TrimSpace(nickname)
	switch {
	case email == "" || password == "":
		return nil, invalid("请填写邮箱和密码 Please fill in email and password")
	case len([]rune(password)) < MinPasswordLen:
		return nil, invalid("密码至少6位 Password must be at least 6 characters")
	case confirm != "" && password != confirm:
		return nil, invalid("两次密码不一致 Passwords do not match")
	case !strings.Contains(email, "@"):
		return nil, invalid("请输入有效邮箱 Please enter a valid email")
	}
	if nickname == "" {
		nickname = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
		Nickname:     nickname,
		HSKLevel:     constants.DefaultHSKLevel,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrEmailTaken
		}
		return tx.Create(user).Error
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) || isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	log.Infof("新用户注册: id=%d", user.ID)
	_ = s.tracker.Track(ctx, tracking.UserID(user.ID), constants.EventUserRegister, map[string]interface{}{"email": email})
	return user, nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Login 校验密码并更新最后登录时间，旧版sha256哈希登录成功后升级为bcrypt
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, invalid("请填写邮箱和密码 Please fill in email and password")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	ok, legacy := verifyPassword(password, user.PasswordHash)
	if !ok {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	updates := map[string]interface{}{"last_login": now}
	if legacy {
		if hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost); err == nil {
			updates["password_hash"] = string(hash)
			user.PasswordHash = string(hash)
			log.Infof("用户 %d 的密码哈希已升级为bcrypt", user.ID)
		}
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update last_login: %w", err)
	}
	user.LastLogin = &now

	_ = s.tracker.Track(ctx, tracking.UserID(user.ID), constants.EventUserLogin, map[string]interface{}{"email": email})
	return &user, nil
}

// verifyPassword 返回是否匹配，以及是否是旧版无盐sha256
func verifyPassword(password, hash string) (ok bool, legacy bool) {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, false
	}
	sum := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(strings.ToLower(hash))) == 1, true
}

func (s *Service) Info(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// UpdateStats 累加对话数和生词数
func (s *Service) UpdateStats(ctx context.Context, userID int64, conversationsDelta, wordsDelta int) error {
	return UpdateStats(s.db.WithContext(ctx), userID, conversationsDelta, wordsDelta)
}

// UpdateStats 供其他模块在自己的事务里调用
func UpdateStats(db *gorm.DB, userID int64, conversationsDelta, wordsDelta int) error {
	err := db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"total_conversations": gorm.Expr("total_conversations + ?", conversationsDelta),
		"total_words_learned": gorm.Expr("total_words_learned + ?", wordsDelta),
	}).Error
	if err != nil {
		return fmt.Errorf("update user stats: %w", err)
	}
	return nil
}

// UpdateProfile 修改昵称和HSK等级，空昵称不修改
func (s *Service) UpdateProfile(ctx context.Context, userID int64, nickname string, hskLevel int) (*models.User, error) {
	if hskLevel < 1 || hskLevel > 6 {
		return nil, invalid("HSK等级必须在1到6之间 HSK level must be between 1 and 6")
	}
	updates := map[string]interface{}{"hsk_level": hskLevel}
	if nickname = strings.TrimSpace(nickname); nickname != "" {
		updates["nickname"] = nickname
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.Info(ctx, userID)
}
