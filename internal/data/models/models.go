package models

import "time"

// User 学习者账号
type User struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email              string     `gorm:"unique;not null" json:"email"`
	PasswordHash       string     `gorm:"not null" json:"-"`
	Nickname           string     `json:"nickname"`
	HSKLevel           int        `gorm:"column:hsk_level;default:3" json:"hsk_level"`
	TotalConversations int        `gorm:"default:0" json:"total_conversations"`
	TotalWordsLearned  int        `gorm:"default:0" json:"total_words_learned"`
	CreatedAt          time.Time  `gorm:"type:timestamp" json:"created_at"`
	LastLogin          *time.Time `gorm:"type:timestamp" json:"last_login,omitempty"`
}

func (User) TableName() string { return "users" }

// History 对话记录，一行一条消息
type History struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index" json:"user_id"`
	Role      string    `json:"role"`
	Scene     string    `json:"scene"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Pinyin    string    `json:"pinyin"`
	English   string    `json:"english"`
	Keywords  string    `json:"keywords"`
	CreatedAt time.Time `gorm:"type:timestamp" json:"created_at"`
}

func (History) TableName() string { return "history" }

// Vocab 生词本条目，同一用户同一个词只有一行
type Vocab struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex:idx_vocab_user_word" json:"user_id"`
	Word      string    `gorm:"uniqueIndex:idx_vocab_user_word" json:"word"`
	Meaning   string    `json:"meaning"`
	Context   string    `json:"context"`
	Mastered  int       `gorm:"default:0" json:"mastered"`
	CreatedAt time.Time `gorm:"type:timestamp" json:"created_at"`
}

func (Vocab) TableName() string { return "vocab" }

// Event 行为埋点，UserID为空表示匿名
type Event struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    *int64    `gorm:"index" json:"user_id,omitempty"`
	EventName string    `gorm:"index" json:"event_name"`
	EventData string    `json:"event_data"`
	CreatedAt time.Time `gorm:"type:timestamp" json:"created_at"`
}

func (Event) TableName() string { return "events" }

// All 返回需要迁移的全部表
func All() []interface{} {
	return []interface{}{&User{}, &History{}, &Vocab{}, &Event{}}
}
