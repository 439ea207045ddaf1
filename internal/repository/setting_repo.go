package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/yuqie6/Arcana/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository 扁平 KV 设置仓储
type SettingRepository struct {
	db *Database
}

// NewSettingRepository 创建仓储
func NewSettingRepository(db *Database) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get 读取设置；不存在时 ok=false
func (r *SettingRepository) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return "", false, err
	}
	var s schema.Setting
	if err := db.Where("key = ?", key).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("读取设置 %s 失败: %w", key, err)
	}
	return s.Value, true, nil
}

// Set 写入设置（存在则覆盖）
func (r *SettingRepository) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("设置 key 不能为空")
	}
	db, err := r.db.Session(ctx)
	if err != nil {
		return err
	}
	s := schema.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error; err != nil {
		return fmt.Errorf("写入设置 %s 失败: %w", key, err)
	}
	return nil
}

// Delete 删除设置；不存在不算错误
func (r *SettingRepository) Delete(ctx context.Context, key string) error {
	db, err := r.db.Session(ctx)
	if err != nil {
		return err
	}
	if err := db.Where("key = ?", key).Delete(&schema.Setting{}).Error; err != nil {
		return fmt.Errorf("删除设置 %s 失败: %w", key, err)
	}
	return nil
}

// All 全部设置，按 key 升序
func (r *SettingRepository) All(ctx context.Context) ([]schema.Setting, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	var out []schema.Setting
	if err := db.Order("key ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("读取设置失败: %w", err)
	}
	return out, nil
}

// GetBool 读取布尔设置，不存在或无法解析时返回 def
func (r *SettingRepository) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, perr := strconv.ParseBool(v)
	if perr != nil {
		return def, nil
	}
	return b, nil
}

// SetBool 写入布尔设置
func (r *SettingRepository) SetBool(ctx context.Context, key string, value bool) error {
	return r.Set(ctx, key, strconv.FormatBool(value))
}

// GetJSON 读取 JSON 设置到 out；不存在时 ok=false 且 out 不变
func (r *SettingRepository) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	v, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(v), out); err != nil {
		return true, fmt.Errorf("解析设置 %s 失败: %w", key, err)
	}
	return true, nil
}

// SetJSON 以 JSON 写入设置
func (r *SettingRepository) SetJSON(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化设置 %s 失败: %w", key, err)
	}
	return r.Set(ctx, key, string(b))
}
