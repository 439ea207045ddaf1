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

// PurchaseRepository 内购记录仓储
type PurchaseRepository struct {
	db *Database
}

// NewPurchaseRepository 创建仓储
func NewPurchaseRepository(db *Database) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Upsert 按 product_id 插入或更新；已存在的记录保留原 ID
func (r *PurchaseRepository) Upsert(ctx context.Context, p *schema.Purchase) error {
	if p == nil || p.ProductID == "" {
		return fmt.Errorf("product_id 不能为空")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	db, err := r.db.Session(ctx)
	if err != nil {
		return err
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"purchase_date", "platform", "is_active"}),
	}).Create(p).Error; err != nil {
		return fmt.Errorf("写入购买记录失败: %w", err)
	}
	var stored schema.Purchase
	if err := db.Select("id").Where("product_id = ?", p.ProductID).First(&stored).Error; err != nil {
		return fmt.Errorf("查询购买记录失败: %w", err)
	}
	p.ID = stored.ID
	return nil
}

// GetByProductID 按商品获取，不存在返回 nil
func (r *PurchaseRepository) GetByProductID(ctx context.Context, productID string) (*schema.Purchase, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	var p schema.Purchase
	if err := db.Where("product_id = ?", productID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询购买记录失败: %w", err)
	}
	return &p, nil
}

// ListActive 全部有效购买
func (r *PurchaseRepository) ListActive(ctx context.Context) ([]schema.Purchase, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	var out []schema.Purchase
	if err := db.Where("is_active = ?", true).Order("purchase_date DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询有效购买失败: %w", err)
	}
	return out, nil
}

// List 全部购买记录（分页）
func (r *PurchaseRepository) List(ctx context.Context, page Page) ([]schema.Purchase, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	page = page.normalize()
	var out []schema.Purchase
	if err := db.Order("purchase_date DESC").Limit(page.Limit).Offset(page.Offset).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询购买记录失败: %w", err)
	}
	return out, nil
}

// Deactivate 标记购买失效（退款/撤销）
func (r *PurchaseRepository) Deactivate(ctx context.Context, productID string) error {
	db, err := r.db.Session(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&schema.Purchase{}).Where("product_id = ?", productID).Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("更新购买记录失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("购买记录 %s: %w", productID, ErrNotFound)
	}
	return nil
}
