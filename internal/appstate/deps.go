// Package appstate 应用层状态容器：设置、当日阅读、内购权益。
// 每个容器都挂载持久化快照与数据库同步两个中间件。
package appstate

import (
	"context"
	"time"

	"github.com/yuqie6/Arcana/internal/schema"
	"github.com/yuqie6/Arcana/internal/store"
)

// SettingWriter 设置表写入
type SettingWriter interface {
	Set(ctx context.Context, key, value string) error
	SetBool(ctx context.Context, key string, value bool) error
}

// MemoWriter 卡槽备注写入
type MemoWriter interface {
	UpdateMemo(ctx context.Context, sessionID int64, hour int, memo *string) error
}

// PurchaseWriter 购买记录写入
type PurchaseWriter interface {
	Upsert(ctx context.Context, p *schema.Purchase) error
	Deactivate(ctx context.Context, productID string) error
}

// Deps 构造状态容器所需的依赖
type Deps struct {
	Storage store.Storage
	DB      store.ReadyChecker

	Settings  SettingWriter
	Memos     MemoWriter
	Purchases PurchaseWriter

	Clock           store.Clock
	SyncDebounce    time.Duration
	PersistDebounce time.Duration
	OnSyncError     func(store.SyncError)
}

// Bound 挂载了中间件的 Store
type Bound[S any] struct {
	*store.Store[S]
	persister *store.Persister[S]
	syncer    *store.Syncer[S]
}

// bind 先以 initial 为同步起点挂载同步中间件，再从快照恢复。
// 恢复出的值若与 initial 不同即视为未落库，启动后补一次同步。
func bind[S any](name string, initial S, deps Deps, popts store.PersistOptions[S], fields []store.Field[S]) (*Bound[S], error) {
	st := store.New(name, initial)

	syncer, err := store.SyncDatabase(st, deps.DB, fields, store.SyncOptions{
		Debounce:    deps.SyncDebounce,
		Clock:       deps.Clock,
		OnSyncError: deps.OnSyncError,
	})
	if err != nil {
		return nil, err
	}

	popts.Key = "arcana." + name
	popts.Debounce = deps.PersistDebounce
	popts.Clock = deps.Clock
	persister := store.Persist(st, deps.Storage, popts)
	syncer.Resync()

	return &Bound[S]{Store: st, persister: persister, syncer: syncer}, nil
}

// Flush 立即写入快照并执行待同步的字段
func (b *Bound[S]) Flush(ctx context.Context) error {
	b.persister.Flush()
	return b.syncer.Flush(ctx)
}

// Close 停止中间件；需要落库时先调用 Flush
func (b *Bound[S]) Close() {
	b.syncer.Close()
	b.persister.Close()
}

// Pending 是否有待同步的变更
func (b *Bound[S]) Pending() bool {
	return b.syncer.Pending()
}
