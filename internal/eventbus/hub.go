// Package eventbus 进程内事件广播：发布不阻塞，慢订阅者丢弃事件。
package eventbus

import (
	"context"
	"sync"
	"time"
)

// 事件类型
const (
	TypeDailyGenerated = "daily.generated"
	TypeSyncError      = "store.sync_error"
	TypeSchemaMigrated = "schema.migrated"
	TypeConfigReloaded = "config.reloaded"
)

type Event struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]string // ch -> 订阅的类型，空串表示全部
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]string)}
}

// Publish 广播事件；nil Hub 上调用是 no-op
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch, typ := range h.subs {
		if typ != "" && typ != evt.Type {
			continue
		}
		select {
		case ch <- evt:
		default:
			// 慢消费者直接丢弃，避免阻塞同步链路
		}
	}
}

// Subscribe 订阅全部事件，ctx 结束时关闭通道
func (h *Hub) Subscribe(ctx context.Context, buffer int) <-chan Event {
	return h.SubscribeType(ctx, "", buffer)
}

// SubscribeType 只订阅某一类型的事件
func (h *Hub) SubscribeType(ctx context.Context, typ string, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subs[ch] = typ
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Subscribers 当前订阅者数量
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
