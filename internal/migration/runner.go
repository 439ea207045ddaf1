package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/yuqie6/Arcana/internal/observability"
	"github.com/yuqie6/Arcana/internal/repository"
	"github.com/yuqie6/Arcana/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const auditTable = "schema_migrations"

const createAuditTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version     INTEGER PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	applied_at  TIMESTAMP NOT NULL,
	success     BOOLEAN NOT NULL DEFAULT 0
)`

// Migration 一个 schema 版本。Up/Down 只接收事务句柄，对内容不做假设。
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *gorm.DB) error
	Down        func(ctx context.Context, tx *gorm.DB) error
}

// Runner 迁移执行器
type Runner struct {
	db            *repository.Database
	migrations    []Migration
	allowRollback bool
	now           func() time.Time

	mu sync.Mutex
}

// Option Runner 选项
type Option func(*Runner)

// WithRollback 允许 Rollback（仅开发构建）
func WithRollback(allow bool) Option {
	return func(r *Runner) { r.allowRollback = allow }
}

// WithClock 替换时间源（测试使用）
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner 创建迁移执行器，校验版本从 1 开始连续且 Up/Down 齐全
func NewRunner(db *repository.Database, migrations []Migration, opts ...Option) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db 不能为空")
	}
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	for i, m := range sorted {
		if m.Version != i+1 {
			return nil, fmt.Errorf("迁移版本必须从 1 开始连续: 位置 %d 为 v%d", i, m.Version)
		}
		if m.Up == nil || m.Down == nil {
			return nil, fmt.Errorf("迁移 v%d 缺少 Up 或 Down", m.Version)
		}
	}

	r := &Runner{
		db:         db,
		migrations: sorted,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Initialize 确保连接就绪并迁移到最新版本，任何仓储操作之前调用
func (r *Runner) Initialize(ctx context.Context) error {
	if _, err := r.db.Initialize(ctx); err != nil {
		return err
	}
	return r.Migrate(ctx)
}

// Latest 已注册的最新版本
func (r *Runner) Latest() int {
	if len(r.migrations) == 0 {
		return 0
	}
	return r.migrations[len(r.migrations)-1].Version
}

// CurrentVersion 成功迁移的最大版本；审计表不存在时返回 0
func (r *Runner) CurrentVersion(ctx context.Context) (int, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return 0, err
	}
	if !db.Migrator().HasTable(auditTable) {
		return 0, nil
	}
	var version int
	if err := db.Model(&schema.SchemaMigration{}).
		Select("COALESCE(MAX(version), 0)").
		Where("success = ?", true).
		Scan(&version).Error; err != nil {
		return 0, fmt.Errorf("查询 schema 版本失败: %w", err)
	}
	return version, nil
}

// NeedsMigration 当前版本是否落后于最新版本
func (r *Runner) NeedsMigration(ctx context.Context) (bool, error) {
	cur, err := r.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return cur < r.Latest(), nil
}

// History 全部审计记录（按版本升序）
func (r *Runner) History(ctx context.Context) ([]schema.SchemaMigration, error) {
	db, err := r.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	if !db.Migrator().HasTable(auditTable) {
		return nil, nil
	}
	var rows []schema.SchemaMigration
	if err := db.Order("version ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询迁移记录失败: %w", err)
	}
	return rows, nil
}

// Migrate 迁移到最新版本
func (r *Runner) Migrate(ctx context.Context) error {
	return r.MigrateTo(ctx, r.Latest())
}

// MigrateTo 向前迁移到 target；每个版本独立事务，审计记录与 DDL 同事务写入
func (r *Runner) MigrateTo(ctx context.Context, target int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return &MigrationError{Version: target, Err: err}
	}
	if target > r.Latest() || target < 0 {
		return &MigrationError{Version: target, Err: ErrUnknownVersion}
	}
	if target < current {
		return &MigrationError{Version: target, Err: fmt.Errorf("%w: current=%d target=%d", ErrDowngrade, current, target)}
	}
	if target == current {
		slog.Debug("schema 已是目标版本", "version", current)
		return nil
	}

	db, err := r.db.Session(ctx)
	if err != nil {
		return &MigrationError{Version: current + 1, Err: err}
	}
	if err := db.Exec(createAuditTableSQL).Error; err != nil {
		return &MigrationError{Version: current + 1, Err: fmt.Errorf("创建 %s 失败: %w", auditTable, err)}
	}

	var failed []schema.SchemaMigration
	if err := db.Where("success = ? AND version > ? AND version <= ?", false, current, target).
		Order("version ASC").
		Find(&failed).Error; err != nil {
		return &MigrationError{Version: current + 1, Err: fmt.Errorf("查询失败记录失败: %w", err)}
	}
	if len(failed) > 0 {
		return &MigrationError{Version: failed[0].Version, Description: failed[0].Description, Err: ErrBlocked}
	}

	slog.Info("开始数据库迁移", "from", current, "to", target)
	for v := current + 1; v <= target; v++ {
		m := r.migrations[v-1]
		if err := r.apply(ctx, m); err != nil {
			observability.MigrationsTotal.WithLabelValues("up", observability.ResultError).Inc()
			r.markFailed(ctx, m)
			slog.Error("数据库迁移失败", "version", m.Version, "description", m.Description, "error", err)
			return &MigrationError{Version: m.Version, Description: m.Description, Err: unwrapTx(err)}
		}
		observability.MigrationsTotal.WithLabelValues("up", observability.ResultOK).Inc()
		slog.Info("数据库迁移完成", "version", m.Version, "description", m.Description)
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	return r.db.RunInTx(ctx, func(tx *gorm.DB) error {
		if err := m.Up(ctx, tx); err != nil {
			return err
		}
		record := schema.SchemaMigration{
			Version:     m.Version,
			Description: m.Description,
			AppliedAt:   r.now(),
			Success:     true,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "version"}},
			UpdateAll: true,
		}).Create(&record).Error
	})
}

// markFailed 尽力写入失败标记；写入失败只记录日志
func (r *Runner) markFailed(ctx context.Context, m Migration) {
	db, err := r.db.Session(ctx)
	if err != nil {
		slog.Error("写入迁移失败标记失败", "version", m.Version, "error", err)
		return
	}
	record := schema.SchemaMigration{
		Version:     m.Version,
		Description: m.Description,
		AppliedAt:   r.now(),
		Success:     false,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "version"}},
		UpdateAll: true,
	}).Create(&record).Error; err != nil {
		slog.Error("写入迁移失败标记失败", "version", m.Version, "error", err)
	}
}

// ClearFailure 清除某版本的失败记录，使其可被重新迁移
func (r *Runner) ClearFailure(ctx context.Context, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, err := r.db.Session(ctx)
	if err != nil {
		return err
	}
	if !db.Migrator().HasTable(auditTable) {
		return nil
	}
	res := db.Where("version = ? AND success = ?", version, false).Delete(&schema.SchemaMigration{})
	if res.Error != nil {
		return fmt.Errorf("清除失败记录失败: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		slog.Info("已清除迁移失败记录", "version", version)
	}
	return nil
}

// Rollback 回滚到 target（严格低于当前版本），仅开发构建可用
func (r *Runner) Rollback(ctx context.Context, target int) error {
	if !r.allowRollback {
		return &MigrationError{Version: target, Err: ErrRollbackDisabled}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return &MigrationError{Version: target, Err: err}
	}
	if target < 0 || target >= current {
		return &MigrationError{Version: target, Err: fmt.Errorf("%w: current=%d target=%d", ErrInvalidTarget, current, target)}
	}

	slog.Warn("开始回滚数据库", "from", current, "to", target)
	for v := current; v > target; v-- {
		m := r.migrations[v-1]
		err := r.db.RunInTx(ctx, func(tx *gorm.DB) error {
			if err := m.Down(ctx, tx); err != nil {
				return err
			}
			return tx.Where("version = ?", m.Version).Delete(&schema.SchemaMigration{}).Error
		})
		if err != nil {
			observability.MigrationsTotal.WithLabelValues("down", observability.ResultError).Inc()
			return &MigrationError{Version: m.Version, Description: m.Description, Err: unwrapTx(err)}
		}
		observability.MigrationsTotal.WithLabelValues("down", observability.ResultOK).Inc()
		slog.Info("已回滚迁移", "version", m.Version, "description", m.Description)
	}
	return nil
}

func unwrapTx(err error) error {
	var txErr *repository.TransactionError
	if errors.As(err, &txErr) && txErr.Err != nil {
		return txErr.Err
	}
	return err
}
