// Package vocab 个人生词本
package vocab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/data/models"
	"cn-chinese-link/internal/domain/account"
	"cn-chinese-link/internal/domain/tracking"
)

var (
	ErrNotFound  = errors.New("生词不存在 Word not found")
	ErrEmptyWord = errors.New("生词不能为空 Word is required")
)

type Service struct {
	db      *gorm.DB
	tracker *tracking.Tracker
	now     func() time.Time
}

func NewService(db *gorm.DB, tracker *tracking.Tracker) *Service {
	return &Service{db: db, tracker: tracker, now: time.Now}
}

// Save 按(user_id, word)覆盖写入并重置为未掌握，每次保存生词数都加1
func (s *Service) Save(ctx context.Context, userID int64, word, meaning, context string) (*models.Vocab, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, ErrEmptyWord
	}
	v := &models.Vocab{
		UserID:    userID,
		Word:      word,
		Meaning:   meaning,
		Context:   context,
		Mastered:  0,
		CreatedAt: s.now(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "word"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"meaning":    meaning,
				"context":    context,
				"mastered":   0,
				"created_at": v.CreatedAt,
			}),
		}).Create(v).Error
		if err != nil {
			return err
		}
		// 冲突更新时Create回填的主键不可靠，重新读一次
		var saved models.Vocab
		if err := tx.Where("user_id = ? AND word = ?", userID, word).First(&saved).Error; err != nil {
			return err
		}
		*v = saved
		return account.UpdateStats(tx, userID, 0, 1)
	})
	if err != nil {
		return nil, fmt.Errorf("save vocab: %w", err)
	}

	_ = s.tracker.Track(ctx, tracking.UserID(userID), constants.EventWordSaved, map[string]interface{}{"word": word})
	return v, nil
}

// List 未掌握的生词，新的在前
func (s *Service) List(ctx context.Context, userID int64) ([]models.Vocab, error) {
	var words []models.Vocab
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND mastered = 0", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&words).Error
	if err != nil {
		return nil, fmt.Errorf("list vocab: %w", err)
	}
	return words, nil
}

func (s *Service) MarkMastered(ctx context.Context, userID, id int64) error {
	res := s.db.WithContext(ctx).Model(&models.Vocab{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("mastered", 1)
	if res.Error != nil {
		return fmt.Errorf("mark mastered: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	_ = s.tracker.Track(ctx, tracking.UserID(userID), constants.EventWordMastered, map[string]interface{}{"word_id": id})
	return nil
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Vocab{})
	if res.Error != nil {
		return fmt.Errorf("delete vocab: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
