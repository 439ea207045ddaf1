package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/yuqie6/Arcana/internal/schema"
)

// DefaultRolloverSpec 每天 00:05 预生成当日会话
const DefaultRolloverSpec = "5 0 * * *"

// OpenFunc 打开当日会话。调用方负责把会话载入自己的状态容器。
type OpenFunc func(ctx context.Context) (*schema.DailySession, error)

// Rollover 日切任务：定时预生成当日会话
type Rollover struct {
	open OpenFunc
	cron *cron.Cron
}

// NewRollover 创建日切任务，每次执行都调用 open
func NewRollover(spec string, open OpenFunc) (*Rollover, error) {
	if open == nil {
		return nil, fmt.Errorf("日切任务缺少 open 回调")
	}
	if spec == "" {
		spec = DefaultRolloverSpec
	}
	r := &Rollover{open: open, cron: cron.New()}
	if _, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := r.RunOnce(ctx); err != nil {
			slog.Error("日切预生成失败", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("解析日切 cron 表达式 %q 失败: %w", spec, err)
	}
	return r, nil
}

// RunOnce 立即执行一次（启动时补跑）
func (r *Rollover) RunOnce(ctx context.Context) error {
	session, err := r.open(ctx)
	if err != nil {
		return err
	}
	slog.Info("日切完成", "date", session.Date, "deck", session.DeckID)
	return nil
}

// Start 启动调度
func (r *Rollover) Start() {
	r.cron.Start()
}

// Stop 停止调度，返回的 ctx 在运行中的任务结束后完成
func (r *Rollover) Stop() context.Context {
	return r.cron.Stop()
}

// Next 下一次执行时间
func (r *Rollover) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
