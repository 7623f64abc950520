// Package stats 管理后台和数据报告用的汇总统计
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cast"
	"gorm.io/gorm"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/data/models"
)

const (
	Anonymous   = "匿名"
	Placeholder = "-"
	Unknown     = "未知"

	DefaultVocabLimit = 50
	DefaultEventLimit = 20
	TopPairs          = 5
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Count 一个分类的次数和占比
type Count struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

type HSKCount struct {
	Level   int     `json:"level"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

type UserStats struct {
	Total              int           `json:"total"`
	ActiveThisMonth    int           `json:"active_this_month"`
	TotalConversations int           `json:"total_conversations"`
	Users              []models.User `json:"users"`
}

// Users 用户列表（新注册在前），本月活跃按最后登录时间所在自然月计算
func (s *Service) Users(ctx context.Context, now time.Time) (*UserStats, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	st := &UserStats{Total: len(users), Users: users}
	year, month, _ := now.Date()
	for _, u := range users {
		st.TotalConversations += u.TotalConversations
		if u.LastLogin == nil {
			continue
		}
		y, m, _ := u.LastLogin.In(now.Location()).Date()
		if y == year && m == month {
			st.ActiveThisMonth++
		}
	}
	return st, nil
}

type RoleSceneStats struct {
	Total  int        `json:"total"`
	Roles  []Count    `json:"roles"`
	Scenes []Count    `json:"scenes"`
	HSK    []HSKCount `json:"hsk"`
	// 角色+场景组合，最多TopPairs个
	Pairs []Count `json:"pairs"`
}

// RoleScenes 统计conversation_started事件，无法解析的行跳过但计入总数
func (s *Service) RoleScenes(ctx context.Context) (*RoleSceneStats, error) {
	var rows []string
	err := s.db.WithContext(ctx).Model(&models.Event{}).
		Where("event_name = ? AND event_data IS NOT NULL", constants.EventConversationStarted).
		Pluck("event_data", &rows).Error
	if err != nil {
		return nil, fmt.Errorf("query conversation events: %w", err)
	}

	roles := map[string]int{}
	scenes := map[string]int{}
	hsk := map[int]int{}
	pairs := map[string]int{}
	for _, raw := range rows {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &data); err != nil || data == nil {
			continue
		}
		role := stringOr(data["role"], Unknown)
		scene := stringOr(data["scene"], Unknown)
		level := constants.DefaultHSKLevel
		if v, ok := data["hsk_level"]; ok {
			level = cast.ToInt(v)
		}
		roles[role]++
		scenes[scene]++
		hsk[level]++
		pairs[role+" + "+scene]++
	}

	total := len(rows)
	st := &RoleSceneStats{
		Total:  total,
		Roles:  ranked(roles, total),
		Scenes: ranked(scenes, total),
		Pairs:  ranked(pairs, total),
	}
	if len(st.Pairs) > TopPairs {
		st.Pairs = st.Pairs[:TopPairs]
	}
	for level, n := range hsk {
		st.HSK = append(st.HSK, HSKCount{Level: level, Count: n, Percent: percent(n, total)})
	}
	sort.Slice(st.HSK, func(i, j int) bool { return st.HSK[i].Level < st.HSK[j].Level })
	return st, nil
}

func stringOr(v interface{}, def string) string {
	if v == nil {
		return def
	}
	return cast.ToString(v)
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// ranked 次数降序，相同次数按名字
func ranked(m map[string]int, total int) []Count {
	out := make([]Count, 0, len(m))
	for name, n := range m {
		out = append(out, Count{Name: name, Count: n, Percent: percent(n, total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

type VocabRow struct {
	ID        int64     `json:"id"`
	Word      string    `json:"word"`
	Meaning   string    `json:"meaning"`
	Mastered  bool      `json:"mastered"`
	User      string    `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

type VocabStats struct {
	Total    int        `json:"total"`
	Mastered int        `json:"mastered"`
	Pending  int        `json:"pending"`
	Words    []VocabRow `json:"words"`
}

type vocabScan struct {
	ID        int64
	Word      string
	Meaning   string
	Mastered  int
	Email     *string
	CreatedAt time.Time
}

// Vocab 生词总览，limit<=0时返回全部
func (s *Service) Vocab(ctx context.Context, limit int) (*VocabStats, error) {
	db := s.db.WithContext(ctx)
	var total, mastered int64
	if err := db.Model(&models.Vocab{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count vocab: %w", err)
	}
	if err := db.Model(&models.Vocab{}).Where("mastered = 1").Count(&mastered).Error; err != nil {
		return nil, fmt.Errorf("count mastered vocab: %w", err)
	}

	q := db.Table("vocab AS v").
		Select("v.id, v.word, v.meaning, v.mastered, u.email, v.created_at").
		Joins("LEFT JOIN users u ON v.user_id = u.id").
		Order("v.created_at DESC").Order("v.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []vocabScan
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list vocab: %w", err)
	}

	st := &VocabStats{
		Total:    int(total),
		Mastered: int(mastered),
		Pending:  int(total - mastered),
		Words:    make([]VocabRow, 0, len(rows)),
	}
	for _, r := range rows {
		st.Words = append(st.Words, VocabRow{
			ID:        r.ID,
			Word:      r.Word,
			Meaning:   r.Meaning,
			Mastered:  r.Mastered == 1,
			User:      emailOr(r.Email, Placeholder),
			CreatedAt: r.CreatedAt,
		})
	}
	return st, nil
}

func emailOr(email *string, def string) string {
	if email == nil || *email == "" {
		return def
	}
	return *email
}

type EventRow struct {
	ID        int64     `json:"id"`
	EventName string    `json:"event_name"`
	User      string    `json:"user"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

type EventStats struct {
	Total  int        `json:"total"`
	Counts []Count    `json:"counts"`
	Recent []EventRow `json:"recent"`
}

type eventScan struct {
	ID        int64
	EventName string
	Email     *string
	EventData string
	CreatedAt time.Time
}

// Events 按事件名计数，并返回最近limit条
func (s *Service) Events(ctx context.Context, limit int) (*EventStats, error) {
	db := s.db.WithContext(ctx)
	var grouped []struct {
		EventName string
		N         int
	}
	err := db.Model(&models.Event{}).
		Select("event_name, COUNT(*) AS n").
		Group("event_name").
		Scan(&grouped).Error
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	counts := make(map[string]int, len(grouped))
	total := 0
	for _, g := range grouped {
		counts[g.EventName] = g.N
		total += g.N
	}

	if limit <= 0 {
		limit = DefaultEventLimit
	}
	var rows []eventScan
	err = db.Table("events AS e").
		Select("e.id, e.event_name, u.email, e.event_data, e.created_at").
		Joins("LEFT JOIN users u ON e.user_id = u.id").
		Order("e.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	st := &EventStats{Total: total, Counts: ranked(counts, total), Recent: make([]EventRow, 0, len(rows))}
	for _, r := range rows {
		data := r.EventData
		if data == "" || data == "{}" {
			data = Placeholder
		}
		st.Recent = append(st.Recent, EventRow{
			ID:        r.ID,
			EventName: r.EventName,
			User:      emailOr(r.Email, Anonymous),
			Data:      data,
			CreatedAt: r.CreatedAt,
		})
	}
	return st, nil
}

type Summary struct {
	GeneratedAt   time.Time `json:"generated_at"`
	Users         int       `json:"users"`
	Events        int       `json:"events"`
	VocabTotal    int       `json:"vocab_total"`
	VocabMastered int       `json:"vocab_mastered"`
	EventsToday   int       `json:"events_today"`
}

// Summary 数据汇总，今日按now所在时区的自然日
func (s *Service) Summary(ctx context.Context, now time.Time) (*Summary, error) {
	db := s.db.WithContext(ctx)
	var users, events, vocabTotal, vocabMastered, today int64
	steps := []struct {
		q    *gorm.DB
		dest *int64
	}{
		{db.Model(&models.User{}), &users},
		{db.Model(&models.Event{}), &events},
		{db.Model(&models.Vocab{}), &vocabTotal},
		{db.Model(&models.Vocab{}).Where("mastered = 1"), &vocabMastered},
	}
	for _, step := range steps {
		if err := step.q.Count(step.dest).Error; err != nil {
			return nil, fmt.Errorf("summary count: %w", err)
		}
	}

	// 存储时区可能与now不同，多查一天再按自然日过滤
	var times []time.Time
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err := db.Model(&models.Event{}).
		Where("created_at >= ?", start.Add(-24*time.Hour)).
		Pluck("created_at", &times).Error
	if err != nil {
		return nil, fmt.Errorf("summary events today: %w", err)
	}
	end := start.Add(24 * time.Hour)
	for _, t := range times {
		if !t.Before(start) && t.Before(end) {
			today++
		}
	}

	return &Summary{
		GeneratedAt:   now,
		Users:         int(users),
		Events:        int(events),
		VocabTotal:    int(vocabTotal),
		VocabMastered: int(vocabMastered),
		EventsToday:   int(today),
	}, nil
}
