// Package chat 角色扮演对话：开场、文字和语音输入、语音播放和生词收藏
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/data/models"
	"cn-chinese-link/internal/domain/account"
	"cn-chinese-link/internal/domain/asr"
	"cn-chinese-link/internal/domain/audio"
	"cn-chinese-link/internal/domain/llm"
	"cn-chinese-link/internal/domain/llm/common"
	"cn-chinese-link/internal/domain/persona"
	"cn-chinese-link/internal/domain/session"
	"cn-chinese-link/internal/domain/tracking"
	"cn-chinese-link/internal/domain/vocab"
	"cn-chinese-link/internal/observe"
	log "cn-chinese-link/logger"
)

// Synthesizer 按性别选择音色合成MP3
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, male bool) ([]byte, error)
}

// Recognizer 识别一段录音
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte) (string, error)
}

const (
	DefaultTTL       = 7 * 24 * time.Hour
	DefaultSpeechTTL = time.Hour
)

type Service struct {
	convs     *conversationStore
	store     session.Store
	llm       llm.LLMProvider
	llmName   string
	tts       Synthesizer
	asr       Recognizer
	asrName   string
	catalog   *persona.Catalog
	db        *gorm.DB
	tracker   *tracking.Tracker
	vocab     *vocab.Service
	metrics   *observe.Metrics
	speechTTL time.Duration
	locks     *lockRegistry
	now       func() time.Time
}

type Option func(*Service)

func WithTTS(tts Synthesizer) Option {
	return func(s *Service) { s.tts = tts }
}

func WithASR(name string, r Recognizer) Option {
	return func(s *Service) {
		s.asrName = name
		s.asr = r
	}
}

func WithLLMName(name string) Option {
	return func(s *Service) { s.llmName = name }
}

func WithCatalog(c *persona.Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

func WithTracker(t *tracking.Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

func WithVocab(v *vocab.Service) Option {
	return func(s *Service) { s.vocab = v }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTTL 对话在存储中的保留时间
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.convs.ttl = ttl
		}
	}
}

func WithSpeechTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.speechTTL = ttl
		}
	}
}

func NewService(store session.Store, provider llm.LLMProvider, db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		convs:     &conversationStore{store: store, ttl: DefaultTTL},
		store:     store,
		llm:       provider,
		llmName:   constants.LlmTypeDeepSeek,
		catalog:   persona.Default(),
		db:        db,
		speechTTL: DefaultSpeechTTL,
		locks:     newLockRegistry(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) role(conv *Conversation) (*persona.Role, error) {
	role, ok := s.catalog.Get(conv.Role)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSelection, conv.Role)
	}
	return role, nil
}

// Start 创建对话并生成开场白。开场失败时对话照常返回（无消息），同时返回ErrLLMUnavailable
func (s *Service) Start(ctx context.Context, userID int64, roleName, scene string, hskLevel int) (*Conversation, error) {
	role, ok := s.catalog.Get(roleName)
	if !ok || !role.HasScene(scene) || !s.catalog.ValidHSK(hskLevel) {
		return nil, ErrInvalidSelection
	}

	now := s.now()
	conv := &Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Role:      role.Name,
		Scene:     scene,
		SceneEN:   role.SceneEN(scene),
		HSK:       hskLevel,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.convs.save(ctx, conv); err != nil {
		return nil, err
	}

	_ = s.tracker.Track(ctx, tracking.UserID(userID), constants.EventConversationStarted, map[string]interface{}{
		"role":      role.Name,
		"scene":     scene,
		"hsk_level": hskLevel,
	})
	s.metrics.ConversationStarted(ctx, role.Name, scene)
	log.Infof("用户 %d 开始对话 %s: %s / %s / HSK %d", userID, conv.ID, role.Name, scene, hskLevel)

	return s.Opening(ctx, userID, conv.ID)
}

// Get 读取对话
func (s *Service) Get(ctx context.Context, userID int64, convID string) (*Conversation, error) {
	return s.convs.load(ctx, userID, convID)
}

// Opening 对话为空时让角色先开口，已有消息时原样返回
func (s *Service) Opening(ctx context.Context, userID int64, convID string) (*Conversation, error) {
	unlock := s.locks.acquire(convID)
	defer unlock()

	conv, err := s.convs.load(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	if len(conv.Messages) > 0 {
		return conv, nil
	}
	role, err := s.role(conv)
	if err != nil {
		return nil, err
	}

	prompt := []*schema.Message{schema.UserMessage(llm.OpeningPrompt(role, conv.Scene))}
	reply, err := s.complete(ctx, role, conv, prompt)
	if err != nil {
		return conv, err
	}

	msg := s.assistantMessage(reply)
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = s.now()
	if err := s.convs.save(ctx, conv); err != nil {
		return nil, err
	}
	s.persist(ctx, conv, msg)
	return conv, nil
}

// Send 发送一条用户消息并取得角色回复；模型调用失败时撤回这条消息
func (s *Service) Send(ctx context.Context, userID int64, convID, text string) (*Conversation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	unlock := s.locks.acquire(convID)
	defer unlock()

	conv, err := s.convs.load(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	role, err := s.role(conv)
	if err != nil {
		return nil, err
	}

	userMsg := Message{Role: constants.SenderUser, Content: text, CreatedAt: s.now()}
	conv.Messages = append(conv.Messages, userMsg)
	_ = s.tracker.Track(ctx, tracking.UserID(userID), constants.EventMessageSent, map[string]interface{}{
		"role":        conv.Role,
		"scene":       conv.Scene,
		"text_length": utf8.RuneCountInString(text),
	})
	s.metrics.MessageSent(ctx, conv.Role, conv.Scene)

	reply, err := s.complete(ctx, role, conv, conv.apiHistory())
	if err != nil {
		conv.Messages = conv.Messages[:len(conv.Messages)-1]
		return nil, err
	}

	msg := s.assistantMessage(reply)
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = s.now()
	if err := s.convs.save(ctx, conv); err != nil {
		return nil, err
	}

	if s.db != nil {
		if err := account.UpdateStats(s.db.WithContext(ctx), userID, 1, 0); err != nil {
			log.Warnf("更新用户 %d 对话数失败: %v", userID, err)
		}
	}
	s.persist(ctx, conv, userMsg, msg)
	return conv, nil
}

// SendVoice 识别录音后按文字消息发送，返回识别出的文本
func (s *Service) SendVoice(ctx context.Context, userID int64, convID string, audio []byte) (*Conversation, string, error) {
	if len(audio) <= constants.MinVoiceBytes {
		return nil, "", ErrAudioTooShort
	}
	if s.asr == nil {
		return nil, "", ErrVoiceUnavailable
	}
	// 对话不存在或不属于该用户时不调用识别
	if _, err := s.convs.load(ctx, userID, convID); err != nil {
		return nil, "", err
	}

	startTs := time.Now()
	text, err := s.asr.Recognize(ctx, audio)
	s.metrics.RecordProvider(ctx, "asr", s.asrName, startTs, err)
	if err != nil {
		log.Warnf("语音识别失败: %v", err)
		return nil, "", recognitionError(err)
	}
	text = strings.TrimSpace(text)

	conv, err := s.Send(ctx, userID, convID, text)
	return conv, text, err
}

// recognitionError 没识别到语音原样返回，其余归为格式错误或识别失败
func recognitionError(err error) error {
	switch {
	case errors.Is(err, asr.ErrNoSpeech), errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return fmt.Errorf("%w: %w", ErrAudioFormat, err)
	default:
		return fmt.Errorf("%w: %w", ErrRecognitionFailed, err)
	}
}

// Restart 清空消息并重新开场
func (s *Service) Restart(ctx context.Context, userID int64, convID string) (*Conversation, error) {
	unlock := s.locks.acquire(convID)
	conv, err := s.convs.load(ctx, userID, convID)
	if err != nil {
		unlock()
		return nil, err
	}
	conv.Messages = []Message{}
	conv.Epoch++
	conv.UpdatedAt = s.now()
	err = s.convs.save(ctx, conv)
	unlock()
	if err != nil {
		return nil, err
	}
	return s.Opening(ctx, userID, convID)
}

// Speech 合成第index条助手消息的中文，结果按对话和位置缓存
func (s *Service) Speech(ctx context.Context, userID int64, convID string, index int) ([]byte, error) {
	conv, err := s.convs.load(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	msg, err := assistantAt(conv, index)
	if err != nil {
		return nil, err
	}
	if s.tts == nil {
		return nil, ErrSpeechUnavailable
	}
	text := strings.TrimSpace(msg.Reply.Chinese)
	if text == "" {
		return nil, fmt.Errorf("%w: 没有可朗读的文本", ErrSpeechUnavailable)
	}

	key := speechKey(conv.ID, conv.Epoch, index)
	if audio, err := s.store.Get(ctx, key); err == nil && len(audio) > 0 {
		return audio, nil
	}

	role, err := s.role(conv)
	if err != nil {
		return nil, err
	}
	audio, err := s.tts.Synthesize(ctx, text, role.IsMale())
	if err != nil {
		log.Errorf("语音合成错误: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrSpeechUnavailable, err)
	}
	if err := s.store.Set(ctx, key, audio, s.speechTTL); err != nil {
		log.Warnf("缓存语音失败 %s: %v", key, err)
	}
	return audio, nil
}

// SaveKeyword 把回复里的关键词加入生词本，上下文是该回复的中文
func (s *Service) SaveKeyword(ctx context.Context, userID int64, convID string, index int, word string) (*models.Vocab, error) {
	if s.vocab == nil {
		return nil, errors.New("生词本未启用")
	}
	conv, err := s.convs.load(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	msg, err := assistantAt(conv, index)
	if err != nil {
		return nil, err
	}
	for _, kw := range msg.Reply.Keywords {
		if kw.Word == word {
			return s.vocab.Save(ctx, userID, kw.Word, kw.Meaning, msg.Reply.Chinese)
		}
	}
	return nil, ErrKeywordNotFound
}

func assistantAt(conv *Conversation, index int) (*Message, error) {
	if index < 0 || index >= len(conv.Messages) {
		return nil, ErrMessageNotFound
	}
	msg := &conv.Messages[index]
	if !msg.IsAssistant() {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

// complete 调用模型；输出无法解析时用兜底回复，网络或接口错误返回ErrLLMUnavailable
func (s *Service) complete(ctx context.Context, role *persona.Role, conv *Conversation, history []*schema.Message) (*common.Reply, error) {
	dialogue := llm.BuildDialogue(role, conv.Scene, conv.HSK, history)

	startTs := time.Now()
	raw, err := s.llm.Chat(ctx, dialogue)
	s.metrics.RecordProvider(ctx, "llm", s.llmName, startTs, err)
	if err != nil {
		log.Errorf("%s API 错误: %v", s.llmName, err)
		return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	reply, err := llm.ParseReply(raw)
	if err != nil {
		log.Warnf("JSON解析错误: %v, 原始输出: %s", err, raw)
		s.metrics.FallbackReply(ctx)
		return llm.FallbackReply(), nil
	}
	return reply, nil
}

func (s *Service) assistantMessage(reply *common.Reply) Message {
	return Message{
		Role:       constants.SenderAssistant,
		Reply:      reply,
		Polyphones: s.catalog.PolyphoneHints(reply.Chinese),
		CreatedAt:  s.now(),
	}
}

// persist 写入history表，失败只记日志
func (s *Service) persist(ctx context.Context, conv *Conversation, msgs ...Message) {
	if s.db == nil || len(msgs) == 0 {
		return
	}
	rows := make([]models.History, 0, len(msgs))
	for _, m := range msgs {
		row := models.History{
			UserID:    conv.UserID,
			Role:      conv.Role,
			Scene:     conv.Scene,
			Sender:    m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
		if m.Reply != nil {
			row.Content = m.Reply.Chinese
			row.Pinyin = m.Reply.Pinyin
			row.English = m.Reply.English
			if kw, err := json.Marshal(m.Reply.Keywords); err == nil {
				row.Keywords = string(kw)
			}
		}
		rows = append(rows, row)
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		log.Warnf("保存对话记录失败: %v", err)
	}
}
