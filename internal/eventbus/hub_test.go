package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestHubFiltersByType(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all := h.Subscribe(ctx, 4)
	daily := h.SubscribeType(ctx, TypeDailyGenerated, 4)

	h.Publish(Event{Type: TypeSyncError})
	h.Publish(Event{Type: TypeDailyGenerated, Data: map[string]any{"date": "2025-03-14"}})

	if got := <-all; got.Type != TypeSyncError || got.Timestamp == 0 {
		t.Fatalf("first event=%+v", got)
	}
	if got := <-all; got.Type != TypeDailyGenerated {
		t.Fatalf("second event=%+v", got)
	}
	got := <-daily
	if got.Type != TypeDailyGenerated || got.Data["date"] != "2025-03-14" {
		t.Fatalf("typed event=%+v", got)
	}
	select {
	case evt := <-daily:
		t.Fatalf("unexpected event on typed subscription: %+v", evt)
	default:
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.Subscribe(ctx, 1)

	h.Publish(Event{Type: "a"})
	h.Publish(Event{Type: "b"}) // 缓冲已满，丢弃

	if got := <-ch; got.Type != "a" {
		t.Fatalf("got=%+v, want a", got)
	}

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if h.Subscribers() != 0 {
					t.Fatalf("Subscribers=%d after cancel", h.Subscribers())
				}
				return
			}
		case <-deadline:
			t.Fatalf("channel not closed after cancel")
		}
	}
}

func TestNilHubPublishIsNoop(t *testing.T) {
	var h *Hub
	h.Publish(Event{Type: "x"})
}
