package schema

import "time"

// SlotsPerSession 每个会话的卡槽数量（一小时一张）
const SlotsPerSession = 24

// DailySession 每日抽牌会话
// 每个日期仅一条；卡槽生成后除备注外不可变。
type DailySession struct {
	ID          int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Date        string      `gorm:"size:10;uniqueIndex" json:"date"` // YYYY-MM-DD
	Seed        string      `gorm:"size:32" json:"seed"`
	DeckID      string      `gorm:"size:64" json:"deck_id"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
	GeneratedAt *time.Time  `json:"generated_at,omitempty"`
	Cards       []DailyCard `gorm:"foreignKey:SessionID" json:"cards,omitempty"`
}

// TableName 指定表名
func (DailySession) TableName() string {
	return "daily_sessions"
}

// Complete 是否已生成全部卡槽
func (s *DailySession) Complete() bool {
	return s != nil && len(s.Cards) == SlotsPerSession
}

// DailyCard 会话中某一小时的卡槽
type DailyCard struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID   int64     `gorm:"not null;uniqueIndex:idx_daily_cards_session_hour" json:"session_id"`
	Hour        int       `gorm:"not null;uniqueIndex:idx_daily_cards_session_hour" json:"hour"` // 0-23
	ContentKey  string    `gorm:"size:64;not null" json:"content_key"`
	DisplayName string    `gorm:"size:128" json:"display_name"`
	Keywords    JSONArray `gorm:"type:text" json:"keywords"`
	Memo        *string   `gorm:"type:text" json:"memo,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (DailyCard) TableName() string {
	return "daily_cards"
}
