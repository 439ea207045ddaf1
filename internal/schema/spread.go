package schema

import (
	"fmt"
	"time"
)

// Spread 用户保存的牌阵
type Spread struct {
	ID         string       `gorm:"primaryKey;size:36" json:"id"` // uuid
	SpreadType string       `gorm:"size:64;not null" json:"spread_type"`
	DeckID     string       `gorm:"size:64" json:"deck_id"`
	Title      *string      `gorm:"size:255" json:"title,omitempty"`
	ImageURI   *string      `gorm:"size:1024" json:"image_uri,omitempty"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"created_at"`
	Cards      []SpreadCard `gorm:"foreignKey:SpreadID" json:"cards,omitempty"`
}

// TableName 指定表名
func (Spread) TableName() string {
	return "spreads"
}

// SpreadCard 牌阵中的一张牌，布局坐标归一化到 [0,1]
type SpreadCard struct {
	ID            int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	SpreadID      string  `gorm:"size:36;not null" json:"spread_id"`
	PositionIndex int     `gorm:"not null" json:"position_index"`
	ContentKey    string  `gorm:"size:64;not null" json:"content_key"`
	Reversed      bool    `json:"reversed"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	W             float64 `json:"w"`
	H             float64 `json:"h"`
}

// TableName 指定表名
func (SpreadCard) TableName() string {
	return "spread_cards"
}

// Validate 校验布局矩形
func (c SpreadCard) Validate() error {
	for _, v := range [...]float64{c.X, c.Y, c.W, c.H} {
		if v < 0 || v > 1 {
			return fmt.Errorf("位置 %d 的布局坐标超出 [0,1]: x=%v y=%v w=%v h=%v", c.PositionIndex, c.X, c.Y, c.W, c.H)
		}
	}
	return nil
}
