package chat

import (
	"context"
	"fmt"
	"time"

	"cn-chinese-link/internal/domain/session"
)

// conversationStore 对话保存在会话存储里，按ID读写
type conversationStore struct {
	store session.Store
	ttl   time.Duration
}

func conversationKey(id string) string {
	return "conv:" + id
}

func speechKey(id string, epoch, index int) string {
	return fmt.Sprintf("speech:%s:%d:%d", id, epoch, index)
}

func (s *conversationStore) save(ctx context.Context, conv *Conversation) error {
	if err := session.SetJSON(ctx, s.store, conversationKey(conv.ID), conv, s.ttl); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// load 只有所有者能读到，其他人和不存在一样
func (s *conversationStore) load(ctx context.Context, userID int64, id string) (*Conversation, error) {
	var conv Conversation
	if err := session.GetJSON(ctx, s.store, conversationKey(id), &conv); err != nil {
		if session.IsNotFound(err) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv.UserID != userID {
		return nil, ErrConversationNotFound
	}
	return &conv, nil
}
