package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/yuqie6/Arcana/internal/observability"
)

// DefaultSyncDebounce 默认同步防抖间隔
const DefaultSyncDebounce = 500 * time.Millisecond

// ReadyChecker 数据库就绪探针（*repository.Database 满足）
type ReadyChecker interface {
	Ready() bool
}

// Strategy 字段同步策略：把 next 写入数据库，prev 为上次成功同步的值。
// 可能因失败重试而被重复调用，必须是幂等的 upsert 式写入。
type Strategy[V any] func(ctx context.Context, next, prev V) error

// Field 一个参与同步的字段，由 SyncField 构造
type Field[S any] interface {
	Name() string
	capture(state S) any
	equal(a, b any) bool
	run(ctx context.Context, next, prev any) error
}

type syncField[S, V any] struct {
	name     string
	get      func(S) V
	strategy Strategy[V]
}

// SyncField 把字段名、取值函数和同步策略绑定为一个强类型字段
func SyncField[S, V any](name string, get func(S) V, strategy Strategy[V]) Field[S] {
	return &syncField[S, V]{name: name, get: get, strategy: strategy}
}

func (f *syncField[S, V]) Name() string { return f.name }

// capture 取值并深拷贝，避免快照与后续状态共享 map/slice
func (f *syncField[S, V]) capture(state S) any {
	v := f.get(state)
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var cp V
	if err := json.Unmarshal(b, &cp); err != nil {
		return v
	}
	return cp
}

func (f *syncField[S, V]) equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func (f *syncField[S, V]) run(ctx context.Context, next, prev any) error {
	nv, _ := next.(V)
	pv, _ := prev.(V)
	return f.strategy(ctx, nv, pv)
}

// SyncOptions 同步配置
type SyncOptions struct {
	Debounce    time.Duration // 默认 DefaultSyncDebounce
	Clock       Clock
	OnSyncError func(SyncError)
}

// Syncer 数据库同步中间件：对比上次同步快照，防抖后把变化的字段交给各自的策略写入
type Syncer[S any] struct {
	store  *Store[S]
	db     ReadyChecker
	fields []Field[S]
	opts   SyncOptions

	mu       sync.Mutex // 保护 previous
	previous map[string]any

	flushMu   sync.Mutex
	debouncer *Debouncer
	unsub     func()
}

// SyncDatabase 把 fields 绑定到 st。快照以挂载时的状态为起点；
// 之后绕过监听器的状态替换（快照恢复）需调用 Resync 才会被同步。
func SyncDatabase[S any](st *Store[S], db ReadyChecker, fields []Field[S], opts SyncOptions) (*Syncer[S], error) {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f == nil || f.Name() == "" {
			return nil, fmt.Errorf("store %s: 同步字段缺少名称", st.Name())
		}
		if seen[f.Name()] {
			return nil, fmt.Errorf("store %s: 同步字段重复: %s", st.Name(), f.Name())
		}
		seen[f.Name()] = true
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultSyncDebounce
	}

	s := &Syncer[S]{
		store:    st,
		db:       db,
		fields:   fields,
		opts:     opts,
		previous: make(map[string]any, len(fields)),
	}
	current := st.Get()
	for _, f := range fields {
		s.previous[f.Name()] = f.capture(current)
	}
	s.debouncer = NewDebouncer(opts.Clock, opts.Debounce, func() {
		_ = s.flush(context.Background())
	})
	s.unsub = st.Subscribe(func(_, next S) {
		if len(s.changed(next)) > 0 {
			s.debouncer.Trigger()
		}
	})
	return s, nil
}

type change[S any] struct {
	field Field[S]
	next  any
	prev  any
}

func (s *Syncer[S]) changed(state S) []change[S] {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []change[S]
	for _, f := range s.fields {
		cur := f.capture(state)
		prev := s.previous[f.Name()]
		if !f.equal(cur, prev) {
			out = append(out, change[S]{field: f, next: cur, prev: prev})
		}
	}
	return out
}

// Resync 对比当前状态与上次同步快照，有差异时安排一次同步
func (s *Syncer[S]) Resync() bool {
	if len(s.changed(s.store.Get())) == 0 {
		return false
	}
	s.debouncer.Trigger()
	return true
}

// Synced 字段上次成功同步的值
func (s *Syncer[S]) Synced(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.previous[name]
	return v, ok
}

// Pending 是否有待执行的同步
func (s *Syncer[S]) Pending() bool {
	return s.debouncer.Pending()
}

// Flush 立即执行同步（关闭前调用）。返回本轮各字段错误的合并结果。
func (s *Syncer[S]) Flush(ctx context.Context) error {
	s.debouncer.Stop()
	return s.flush(ctx)
}

// Close 取消待执行的同步并停止监听
func (s *Syncer[S]) Close() {
	s.debouncer.Stop()
	if s.unsub != nil {
		s.unsub()
	}
}

func (s *Syncer[S]) flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	name := s.store.Name()
	changes := s.changed(s.store.Get())
	if len(changes) == 0 {
		return nil
	}
	if s.db != nil && !s.db.Ready() {
		observability.SyncFlushesTotal.WithLabelValues(name, observability.ResultSkipped).Inc()
		slog.Warn("数据库未就绪，跳过本轮同步", "store", name, "fields", len(changes))
		return ErrDatabaseNotReady
	}

	synced := make(map[string]any, len(changes))
	var errs []error
	for _, c := range changes {
		fieldName := c.field.Name()
		if err := runStrategy(ctx, c); err != nil {
			observability.SyncFieldErrorsTotal.WithLabelValues(name, fieldName).Inc()
			slog.Error("字段同步失败", "store", name, "field", fieldName, "error", err)
			se := SyncError{Store: name, Field: fieldName, Value: c.next, Err: err}
			errs = append(errs, &se)
			if s.opts.OnSyncError != nil {
				s.opts.OnSyncError(se)
			}
			continue
		}
		synced[fieldName] = c.next
	}

	// 只推进成功字段的快照，失败字段下次继续与旧值比较
	s.mu.Lock()
	for k, v := range synced {
		s.previous[k] = v
	}
	s.mu.Unlock()

	if len(errs) > 0 {
		observability.SyncFlushesTotal.WithLabelValues(name, observability.ResultError).Inc()
		return errors.Join(errs...)
	}
	observability.SyncFlushesTotal.WithLabelValues(name, observability.ResultOK).Inc()
	slog.Debug("同步完成", "store", name, "fields", len(synced))
	return nil
}

func runStrategy[S any](ctx context.Context, c change[S]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("同步策略 panic: %v", r)
		}
	}()
	return c.field.run(ctx, c.next, c.prev)
}
