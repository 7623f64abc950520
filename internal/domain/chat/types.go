package chat

import (
	"errors"
	"time"

	"github.com/cloudwego/eino/schema"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/domain/llm/common"
	"cn-chinese-link/internal/domain/persona"
)

var (
	ErrConversationNotFound = errors.New("对话不存在 Conversation not found")
	ErrInvalidSelection     = errors.New("角色、场景或等级无效 Invalid role, scene or level")
	ErrEmptyMessage         = errors.New("消息不能为空 Message is empty")
	ErrLLMUnavailable       = errors.New("⚠️ 发送失败，请重试")
	ErrAudioTooShort        = errors.New("录音太短，请重试 Recording too short")
	ErrMessageNotFound      = errors.New("消息不存在 Message not found")
	ErrKeywordNotFound      = errors.New("关键词不存在 Keyword not found")
	ErrSpeechUnavailable    = errors.New("语音合成失败")
	ErrVoiceUnavailable     = errors.New("语音识别不可用 Voice input unavailable")
	ErrAudioFormat          = errors.New("❌ 音频处理失败，请重试 Unsupported audio format")
	ErrRecognitionFailed    = errors.New("❌ 语音识别出错，请重试 Speech recognition failed")
)

// Message 对话中的一条消息，用户消息只有Content，助手消息带结构化回复
type Message struct {
	Role       string                  `json:"role"`
	Content    string                  `json:"content,omitempty"`
	Reply      *common.Reply           `json:"reply,omitempty"`
	Polyphones []persona.PolyphoneHint `json:"polyphones,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

func (m *Message) IsAssistant() bool {
	return m.Role == constants.SenderAssistant && m.Reply != nil
}

// Conversation 一次角色扮演对话
type Conversation struct {
	ID       string    `json:"id"`
	UserID   int64     `json:"user_id"`
	Role     string    `json:"role"`
	Scene    string    `json:"scene"`
	SceneEN  string    `json:"scene_en"`
	HSK      int       `json:"hsk_level"`
	Messages []Message `json:"messages"`
	// 每次重新开始加一，语音缓存按它区分
	Epoch     int       `json:"epoch"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Suggestions 最后一条是助手消息时返回它的推荐回复
func (c *Conversation) Suggestions() []string {
	last := c.LastMessage()
	if last == nil || !last.IsAssistant() {
		return nil
	}
	return last.Reply.Suggestions
}

// LastMessage 最后一条消息，没有时返回nil
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// apiHistory 发给模型的历史：用户原文，助手只保留中文
func (c *Conversation) apiHistory() []*schema.Message {
	out := make([]*schema.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role == constants.SenderUser {
			out = append(out, schema.UserMessage(m.Content))
			continue
		}
		text := m.Content
		if m.Reply != nil {
			text = m.Reply.Chinese
		}
		out = append(out, schema.AssistantMessage(text, nil))
	}
	return out
}
