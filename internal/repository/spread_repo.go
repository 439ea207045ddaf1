package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/yuqie6/Arcana/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SpreadRepository 牌阵仓储
type SpreadRepository struct {
	db *Database
}

// NewSpreadRepository 创建仓储
func NewSpreadRepository(db *Database) *SpreadRepository {
	return &SpreadRepository{db: db}
}

// SpreadMeta 可修改的牌阵元数据；nil 字段保持不变
type SpreadMeta struct {
	Title    *string
	ImageURI *string
}

// Create 在一个事务中写入牌阵及其全部卡牌；ID 为空时生成 uuid
func (r *SpreadRepository) Create(ctx context.Context, spread *schema.Spread) error {
	if spread == nil {
		return fmt.Errorf("spread is nil")
	}
	if spread.SpreadType == "" {
		return fmt.Errorf("spread_type 不能为空")
	}
	seen := make(map[int]bool, len(spread.Cards))
	for _, c := range spread.Cards {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c.PositionIndex] {
			return fmt.Errorf("牌阵位置重复: %d", c.PositionIndex)
		}
		seen[c.PositionIndex] = true
	}
	if spread.ID == "" {
		spread.ID = uuid.NewString()
	}

	return r.db.RunInTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(spread).Error; err != nil {
			return fmt.Errorf("创建牌阵失败: %w", err)
		}
		if len(spread.Cards) == 0 {
			return nil
		}
		for i := range spread.Cards {
			spread.Cards[i].SpreadID = spread.ID
		}
		if err := tx.Create(&spread.Cards).Error; err != nil {
			return fmt.Errorf("写入牌阵卡牌失败: %w", err)
		}
		return nil
	})
}

// GetByID 获取牌阵（含卡牌），不存在返回 nil
func (r *SpreadRepository) GetByID(ctx context.Context, id string) (*schema.Spread, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	var spread schema.Spread
	err = db.Preload("Cards", func(db *gorm.DB) *gorm.DB {
		return db.Order("position_index ASC")
	}).Where("id = ?", id).First(&spread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询牌阵失败: %w", err)
	}
	return &spread, nil
}

// List 按创建时间倒序列出牌阵（不含卡牌）
func (r *SpreadRepository) List(ctx context.Context, page Page) ([]schema.Spread, error) {
	return r.find(ctx, page, nil)
}

// Search 按标题或牌阵类型做子串搜索
func (r *SpreadRepository) Search(ctx context.Context, query string, page Page) ([]schema.Spread, error) {
	pattern := likePattern(query)
	return r.find(ctx, page, func(db *gorm.DB) *gorm.DB {
		return db.Where(`title LIKE ? ESCAPE '\' OR spread_type LIKE ? ESCAPE '\'`, pattern, pattern)
	})
}

func (r *SpreadRepository) find(ctx context.Context, page Page, scope func(*gorm.DB) *gorm.DB) ([]schema.Spread, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	page = page.normalize()
	q := db.Model(&schema.Spread{})
	if scope != nil {
		q = q.Scopes(scope)
	}
	var spreads []schema.Spread
	if err := q.Order("created_at DESC, id ASC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&spreads).Error; err != nil {
		return nil, fmt.Errorf("查询牌阵失败: %w", err)
	}
	return spreads, nil
}

// UpdateMeta 更新标题或图片
func (r *SpreadRepository) UpdateMeta(ctx context.Context, id string, meta SpreadMeta) error {
	updates := map[string]any{}
	if meta.Title != nil {
		updates["title"] = *meta.Title
	}
	if meta.ImageURI != nil {
		updates["image_uri"] = *meta.ImageURI
	}
	if len(updates) == 0 {
		return nil
	}
	db, err := r.db.Session(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&schema.Spread{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("更新牌阵失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("牌阵 %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete 删除牌阵，卡牌经外键级联删除
func (r *SpreadRepository) Delete(ctx context.Context, id string) error {
	db, err := r.db.Session(ctx)
	if err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(&schema.Spread{})
	if res.Error != nil {
		return fmt.Errorf("删除牌阵失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("牌阵 %s: %w", id, ErrNotFound)
	}
	return nil
}
