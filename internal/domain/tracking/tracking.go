// Package tracking 行为埋点，写入events表
package tracking

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"cn-chinese-link/internal/data/models"
	log "cn-chinese-link/logger"
)

type Tracker struct {
	db *gorm.DB
}

func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// Track 记录一个事件，userID为nil表示匿名，data为nil时存 {}
func (t *Tracker) Track(ctx context.Context, userID *int64, name string, data map[string]interface{}) error {
	if t == nil {
		return nil
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	ev := models.Event{UserID: userID, EventName: name, EventData: string(raw)}
	if err := t.db.WithContext(ctx).Create(&ev).Error; err != nil {
		log.Warnf("埋点写入失败 %s: %v", name, err)
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UserID 便于传入非匿名用户
func UserID(id int64) *int64 {
	return &id
}
