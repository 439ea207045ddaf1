package schema

import "time"

// SchemaMigration 迁移审计记录，与对应 DDL 在同一事务中写入。
// success=false 表示该版本迁移失败，需人工清除后才能继续向前迁移。
type SchemaMigration struct {
	Version     int       `gorm:"primaryKey;autoIncrement:false" json:"version"`
	Description string    `gorm:"type:text" json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
	Success     bool      `json:"success"`
}

func (SchemaMigration) TableName() string {
	return "schema_migrations"
}
