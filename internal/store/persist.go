package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/yuqie6/Arcana/internal/observability"
)

// PersistOptions 持久化配置
type PersistOptions[S any] struct {
	// Key 存储 key，默认为 store 名称
	Key string
	// Version 当前持久化结构版本
	Version int
	// Partialize 选择需要持久化的字段；为 nil 时持久化整个状态
	Partialize func(S) any
	// Migrate 把旧版本快照升级到当前版本
	Migrate func(state json.RawMessage, fromVersion int) (json.RawMessage, error)
	// Merge 把快照合并进初始状态；为 nil 时按顶层 JSON 字段覆盖
	Merge func(initial S, persisted json.RawMessage) (S, error)
	// OnRehydrate 恢复完成后调用；err 非空表示已退回默认状态
	OnRehydrate func(state S, err error)
	// Debounce 大于 0 时合并写入
	Debounce time.Duration
	Clock    Clock
}

type envelope struct {
	State   json.RawMessage `json:"state"`
	Version int             `json:"version"`
}

// Persister 绑定在 Store 上的持久化中间件
type Persister[S any] struct {
	store   *Store[S]
	storage Storage
	opts    PersistOptions[S]

	writeMu   sync.Mutex
	debouncer *Debouncer
	unsub     func()
}

// Persist 从 storage 恢复 st 的状态，并在此后每次 Set 后写入快照
func Persist[S any](st *Store[S], storage Storage, opts PersistOptions[S]) *Persister[S] {
	if opts.Key == "" {
		opts.Key = st.Name()
	}
	if opts.Partialize == nil {
		opts.Partialize = func(s S) any { return s }
	}
	if opts.Merge == nil {
		opts.Merge = OverlayJSON[S]
	}

	p := &Persister[S]{store: st, storage: storage, opts: opts}
	if opts.Debounce > 0 {
		p.debouncer = NewDebouncer(opts.Clock, opts.Debounce, func() { p.write(p.store.Get()) })
	}

	state, err := p.rehydrate(st.Get())
	st.replace(state)
	if opts.OnRehydrate != nil {
		opts.OnRehydrate(state, err)
	}

	p.unsub = st.Subscribe(func(_, next S) {
		if p.debouncer != nil {
			p.debouncer.Trigger()
			return
		}
		p.write(next)
	})
	return p
}

func (p *Persister[S]) rehydrate(initial S) (S, error) {
	name := p.store.Name()
	raw, ok, err := p.storage.GetItem(p.opts.Key)
	if err != nil {
		slog.Error("读取持久化状态失败，使用默认值", "store", name, "error", err)
		return initial, &StoreError{Store: name, Action: "read", Err: err}
	}
	if !ok {
		slog.Debug("无持久化状态，使用默认值", "store", name)
		return initial, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("持久化状态无法解析，使用默认值", "store", name, "error", err)
		return initial, &StoreError{Store: name, Action: "decode", Err: err}
	}
	if env.Version > p.opts.Version {
		slog.Warn("持久化状态版本高于当前版本，已丢弃", "store", name, "persisted", env.Version, "current", p.opts.Version)
		return initial, &StoreError{Store: name, Action: "migrate", Err: ErrVersionTooNew}
	}

	persisted := env.State
	if env.Version < p.opts.Version {
		if p.opts.Migrate == nil {
			err := fmt.Errorf("缺少 v%d → v%d 的迁移函数", env.Version, p.opts.Version)
			slog.Warn("持久化状态无法迁移，使用默认值", "store", name, "error", err)
			return initial, &StoreError{Store: name, Action: "migrate", Err: err}
		}
		migrated, err := p.opts.Migrate(persisted, env.Version)
		if err != nil {
			slog.Warn("持久化状态迁移失败，使用默认值", "store", name, "from", env.Version, "error", err)
			return initial, &StoreError{Store: name, Action: "migrate", Err: err}
		}
		slog.Info("持久化状态已迁移", "store", name, "from", env.Version, "to", p.opts.Version)
		persisted = migrated
	}
	if len(persisted) == 0 || string(persisted) == "null" {
		return initial, nil
	}

	merged, err := p.opts.Merge(initial, persisted)
	if err != nil {
		slog.Warn("合并持久化状态失败，使用默认值", "store", name, "error", err)
		return initial, &StoreError{Store: name, Action: "merge", Err: err}
	}
	return merged, nil
}

// write 序列化并写入快照；失败只记录，不回滚内存状态
func (p *Persister[S]) write(state S) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	name := p.store.Name()
	payload, err := json.Marshal(p.opts.Partialize(state))
	if err == nil {
		payload, err = json.Marshal(envelope{State: payload, Version: p.opts.Version})
	}
	if err != nil {
		observability.PersistWritesTotal.WithLabelValues(name, observability.ResultError).Inc()
		slog.Error("序列化持久化状态失败", "store", name, "error", err)
		return
	}
	if err := p.storage.SetItem(p.opts.Key, payload); err != nil {
		observability.PersistWritesTotal.WithLabelValues(name, observability.ResultError).Inc()
		slog.Error("写入持久化状态失败", "store", name, "error", err)
		return
	}
	observability.PersistWritesTotal.WithLabelValues(name, observability.ResultOK).Inc()
}

// Flush 立即写入尚未落盘的快照（仅在启用 Debounce 时有意义）
func (p *Persister[S]) Flush() {
	if p.debouncer != nil {
		p.debouncer.Flush()
	}
}

// Clear 删除已持久化的快照
func (p *Persister[S]) Clear() error {
	if err := p.storage.RemoveItem(p.opts.Key); err != nil {
		return &StoreError{Store: p.store.Name(), Action: "remove", Err: err}
	}
	return nil
}

// Close 写入待处理的快照并停止监听
func (p *Persister[S]) Close() {
	p.Flush()
	if p.unsub != nil {
		p.unsub()
	}
}

// OverlayJSON 默认合并策略：快照中出现的顶层字段覆盖初始值，其余字段（含不可序列化的瞬态字段）保持初始值。
// 非结构体状态直接整体解码。
func OverlayJSON[S any](initial S, persisted json.RawMessage) (S, error) {
	out := initial
	rv := reflect.ValueOf(&out).Elem()
	if rv.Kind() != reflect.Struct {
		var whole S
		if err := json.Unmarshal(persisted, &whole); err != nil {
			return initial, err
		}
		return whole, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(persisted, &fields); err != nil {
		return initial, fmt.Errorf("快照不是 JSON 对象: %w", err)
	}

	rt := rv.Type()
	var errs []error
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, skip := jsonFieldName(sf)
		if skip {
			continue
		}
		raw, ok := fields[name]
		if !ok {
			continue
		}
		// 新建零值再解码，避免与初始值里的 map/slice 合并
		fv := reflect.New(sf.Type)
		if err := json.Unmarshal(raw, fv.Interface()); err != nil {
			errs = append(errs, fmt.Errorf("字段 %s: %w", name, err))
			continue
		}
		rv.Field(i).Set(fv.Elem())
	}
	if len(errs) > 0 {
		return initial, errors.Join(errs...)
	}
	return out, nil
}

func jsonFieldName(sf reflect.StructField) (string, bool) {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = sf.Name
	}
	return name, false
}
