package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yuqie6/Arcana/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailyRepository 每日会话与卡槽仓储
type DailyRepository struct {
	db *Database
}

// NewDailyRepository 创建仓储
func NewDailyRepository(db *Database) *DailyRepository {
	return &DailyRepository{db: db}
}

// CardHit 搜索结果：卡槽及其所属日期
type CardHit struct {
	schema.DailyCard
	Date   string `json:"date"`
	DeckID string `json:"deck_id"`
}

func preloadCards(db *gorm.DB) *gorm.DB {
	return db.Order("hour ASC")
}

// GetSessionByDate 按日期获取会话（含卡槽），不存在返回 nil
func (r *DailyRepository) GetSessionByDate(ctx context.Context, date string) (*schema.DailySession, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	return findSession(db, "date = ?", date)
}

// GetSessionByID 按 ID 获取会话（含卡槽），不存在返回 nil
func (r *DailyRepository) GetSessionByID(ctx context.Context, id int64) (*schema.DailySession, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	return findSession(db, "id = ?", id)
}

func findSession(db *gorm.DB, query string, arg any) (*schema.DailySession, error) {
	var session schema.DailySession
	err := db.Preload("Cards", preloadCards).Where(query, arg).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	return &session, nil
}

// SaveGenerated 在一个事务中写入会话及其 24 个卡槽。
// 同日期已存在时就地更新（不产生重复）；卡槽内容未变时保留备注，内容变化则清空备注。
func (r *DailyRepository) SaveGenerated(ctx context.Context, session *schema.DailySession) (*schema.DailySession, error) {
	if session == nil {
		return nil, fmt.Errorf("session is nil")
	}
	date, err := NormalizeDate(session.Date)
	if err != nil {
		return nil, err
	}
	if err := validateSlots(session.Cards); err != nil {
		return nil, err
	}

	var saved *schema.DailySession
	err = r.db.RunInTx(ctx, func(tx *gorm.DB) error {
		now := time.Now()

		var existing schema.DailySession
		err := tx.Where("date = ?", date).First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Model(&existing).Updates(map[string]any{
				"seed":         session.Seed,
				"deck_id":      session.DeckID,
				"generated_at": now,
			}).Error; err != nil {
				return fmt.Errorf("更新会话失败: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			existing = schema.DailySession{
				Date:        date,
				Seed:        session.Seed,
				DeckID:      session.DeckID,
				GeneratedAt: &now,
			}
			if err := tx.Omit(clause.Associations).Create(&existing).Error; err != nil {
				return fmt.Errorf("创建会话失败: %w", err)
			}
		default:
			return fmt.Errorf("查询会话失败: %w", err)
		}

		cards := make([]schema.DailyCard, len(session.Cards))
		for i, c := range session.Cards {
			cards[i] = schema.DailyCard{
				SessionID:   existing.ID,
				Hour:        c.Hour,
				ContentKey:  c.ContentKey,
				DisplayName: c.DisplayName,
				Keywords:    c.Keywords,
				Memo:        c.Memo,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}, {Name: "hour"}},
			DoUpdates: clause.Assignments(map[string]any{
				"content_key":  gorm.Expr("excluded.content_key"),
				"display_name": gorm.Expr("excluded.display_name"),
				"keywords":     gorm.Expr("excluded.keywords"),
				"memo":         gorm.Expr("CASE WHEN daily_cards.content_key = excluded.content_key THEN daily_cards.memo ELSE excluded.memo END"),
				"updated_at":   gorm.Expr("excluded.updated_at"),
			}),
		}).Create(&cards).Error; err != nil {
			return fmt.Errorf("写入卡槽失败: %w", err)
		}

		saved, err = findSession(tx, "id = ?", existing.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func validateSlots(cards []schema.DailyCard) error {
	if len(cards) != schema.SlotsPerSession {
		return fmt.Errorf("卡槽数量必须为 %d，实际 %d", schema.SlotsPerSession, len(cards))
	}
	var seen [schema.SlotsPerSession]bool
	for _, c := range cards {
		if c.Hour < 0 || c.Hour >= schema.SlotsPerSession {
			return fmt.Errorf("卡槽小时超出范围: %d", c.Hour)
		}
		if seen[c.Hour] {
			return fmt.Errorf("卡槽小时重复: %d", c.Hour)
		}
		if c.ContentKey == "" {
			return fmt.Errorf("卡槽 %d 缺少 content_key", c.Hour)
		}
		seen[c.Hour] = true
	}
	return nil
}

// UpdateMemo 更新某小时卡槽的备注；memo 为 nil 表示清空
func (r *DailyRepository) UpdateMemo(ctx context.Context, sessionID int64, hour int, memo *string) error {
	db, err := r.db.Session(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&schema.DailyCard{}).
		Where("session_id = ? AND hour = ?", sessionID, hour).
		Updates(map[string]any{"memo": memo, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("更新备注失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("卡槽 session=%d hour=%d: %w", sessionID, hour, ErrNotFound)
	}
	return nil
}

// ListSessions 按日期倒序列出会话（不含卡槽）
func (r *DailyRepository) ListSessions(ctx context.Context, page Page) ([]schema.DailySession, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	page = page.normalize()
	var sessions []schema.DailySession
	if err := db.Order("date DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("查询会话列表失败: %w", err)
	}
	return sessions, nil
}

// CountSessions 会话总数
func (r *DailyRepository) CountSessions(ctx context.Context) (int64, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Model(&schema.DailySession{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计会话失败: %w", err)
	}
	return n, nil
}

// SearchCards 在牌名、关键词、备注中做子串搜索
func (r *DailyRepository) SearchCards(ctx context.Context, query string, page Page) ([]CardHit, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	page = page.normalize()
	pattern := likePattern(query)

	var hits []CardHit
	err = db.Table("daily_cards").
		Select("daily_cards.*, daily_sessions.date AS date, daily_sessions.deck_id AS deck_id").
		Joins("JOIN daily_sessions ON daily_sessions.id = daily_cards.session_id").
		Where(`daily_cards.display_name LIKE ? ESCAPE '\' OR daily_cards.keywords LIKE ? ESCAPE '\' OR daily_cards.memo LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern).
		Order("daily_sessions.date DESC, daily_cards.hour ASC").
		Limit(page.Limit).
		Offset(page.Offset).
		Scan(&hits).Error
	if err != nil {
		return nil, fmt.Errorf("搜索卡槽失败: %w", err)
	}
	return hits, nil
}

// DeleteSession 删除会话，卡槽经外键级联删除
func (r *DailyRepository) DeleteSession(ctx context.Context, id int64) error {
	db, err := r.db.Session(ctx)
	if err != nil {
		return err
	}
	res := db.Delete(&schema.DailySession{}, id)
	if res.Error != nil {
		return fmt.Errorf("删除会话失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("会话 %d: %w", id, ErrNotFound)
	}
	return nil
}
