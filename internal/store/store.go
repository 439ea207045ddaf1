// Package store 内存状态容器及其中间件：持久化快照（Persist）与数据库同步（SyncDatabase）。
package store

import (
	"sort"
	"sync"
)

// Listener 状态变更回调，在 Set 应用新状态之后同步调用
type Listener[S any] func(prev, next S)

// Store 单个内存状态容器。
// Set 串行执行（应用 + 回调）；Update 函数应返回新值，不要原地修改旧状态里的 map/slice。
type Store[S any] struct {
	name string

	setMu sync.Mutex

	mu        sync.RWMutex
	state     S
	listeners map[int]Listener[S]
	nextID    int
}

// New 创建 Store
func New[S any](name string, initial S) *Store[S] {
	return &Store[S]{
		name:      name,
		state:     initial,
		listeners: make(map[int]Listener[S]),
	}
}

// Name store 名称（日志、指标、持久化 key 使用）
func (s *Store[S]) Name() string { return s.name }

// Get 当前状态
func (s *Store[S]) Get() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set 计算并应用新状态，然后依注册顺序通知监听者
func (s *Store[S]) Set(update func(S) S) S {
	s.setMu.Lock()
	defer s.setMu.Unlock()

	s.mu.Lock()
	prev := s.state
	next := update(prev)
	s.state = next
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, l := range listeners {
		l(prev, next)
	}
	return next
}

// Subscribe 注册监听者，返回取消函数
func (s *Store[S]) Subscribe(l Listener[S]) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// replace 直接替换状态，不通知监听者（仅用于启动时的恢复）
func (s *Store[S]) replace(state S) {
	s.setMu.Lock()
	defer s.setMu.Unlock()
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Store[S]) snapshotListeners() []Listener[S] {
	if len(s.listeners) == 0 {
		return nil
	}
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener[S], len(ids))
	for i, id := range ids {
		out[i] = s.listeners[id]
	}
	return out
}
