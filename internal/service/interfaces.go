package service

import (
	"context"

	"github.com/yuqie6/Arcana/internal/deck"
	"github.com/yuqie6/Arcana/internal/eventbus"
	"github.com/yuqie6/Arcana/internal/schema"
)

// 仓储/外部依赖的最小接口集合（ISP）

type DailyRepository interface {
	GetSessionByDate(ctx context.Context, date string) (*schema.DailySession, error)
	SaveGenerated(ctx context.Context, session *schema.DailySession) (*schema.DailySession, error)
}

// Generator 每日索引生成（*daily.Cache）
type Generator interface {
	Generate(date string, deckSize int) ([]int, error)
}

type DeckCatalog interface {
	Get(id string) (*deck.Deck, error)
}

type EventPublisher interface {
	Publish(evt eventbus.Event)
}
