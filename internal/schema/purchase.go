package schema

import "time"

// Purchase 内购记录（按 product_id 唯一）
type Purchase struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	ProductID    string    `gorm:"size:128;uniqueIndex" json:"product_id"`
	PurchaseDate time.Time `json:"purchase_date"`
	Platform     string    `gorm:"size:32" json:"platform"`
	IsActive     bool      `json:"is_active"`
}

// TableName 指定表名
func (Purchase) TableName() string {
	return "purchases"
}
