package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yuqie6/Arcana/internal/eventbus"
	"github.com/yuqie6/Arcana/internal/observability"
	"github.com/yuqie6/Arcana/internal/repository"
	"github.com/yuqie6/Arcana/internal/schema"
)

// DailyService 当日阅读：取已有会话或生成新会话
type DailyService struct {
	repo   DailyRepository
	gen    Generator
	decks  DeckCatalog
	events EventPublisher
	now    func() time.Time

	mu sync.Mutex // 串行化生成，避免同一日期并发生成两次
}

// NewDailyService 创建服务；events 可为 nil
func NewDailyService(repo DailyRepository, gen Generator, decks DeckCatalog, events EventPublisher) *DailyService {
	return &DailyService{
		repo:   repo,
		gen:    gen,
		decks:  decks,
		events: events,
		now:    time.Now,
	}
}

// Open 返回 date 的会话。已完整生成的会话原样返回（即使 deckID 不同），否则生成并保存。
func (s *DailyService) Open(ctx context.Context, date, deckID string) (*schema.DailySession, error) {
	date, err := repository.NormalizeDate(date)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.GetSessionByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if existing.Complete() {
		return existing, nil
	}
	if existing != nil {
		slog.Warn("会话卡槽不完整，重新生成", "date", date, "cards", len(existing.Cards))
	}
	return s.generate(ctx, date, deckID)
}

// Today 打开今天的会话
func (s *DailyService) Today(ctx context.Context, deckID string) (*schema.DailySession, error) {
	return s.Open(ctx, s.now().Format(time.DateOnly), deckID)
}

// Regenerate 无条件重新生成（例如切换牌组）；同一日期就地覆盖
func (s *DailyService) Regenerate(ctx context.Context, date, deckID string) (*schema.DailySession, error) {
	date, err := repository.NormalizeDate(date)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generate(ctx, date, deckID)
}

// CardAt 返回 t 所在小时的卡槽
func (s *DailyService) CardAt(ctx context.Context, t time.Time, deckID string) (*schema.DailyCard, error) {
	session, err := s.Open(ctx, t.Format(time.DateOnly), deckID)
	if err != nil {
		return nil, err
	}
	for i := range session.Cards {
		if session.Cards[i].Hour == t.Hour() {
			return &session.Cards[i], nil
		}
	}
	return nil, fmt.Errorf("会话 %s 缺少 %d 点的卡槽", session.Date, t.Hour())
}

func (s *DailyService) generate(ctx context.Context, date, deckID string) (*schema.DailySession, error) {
	d, err := s.decks.Get(deckID)
	if err != nil {
		return nil, err
	}
	indices, err := s.gen.Generate(date, d.Size())
	if err != nil {
		return nil, err
	}

	session := &schema.DailySession{Date: date, Seed: date, DeckID: d.ID}
	for hour, idx := range indices {
		card, err := d.Card(idx)
		if err != nil {
			return nil, err
		}
		session.Cards = append(session.Cards, schema.DailyCard{
			Hour:        hour,
			ContentKey:  card.Key,
			DisplayName: card.Name,
			Keywords:    schema.JSONArray(card.Keywords),
		})
	}

	saved, err := s.repo.SaveGenerated(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("保存 %s 的会话失败: %w", date, err)
	}
	observability.DailySessionsGeneratedTotal.Inc()
	slog.Info("已生成每日会话", "date", date, "deck", d.ID, "session_id", saved.ID)

	if s.events != nil {
		s.events.Publish(eventbus.Event{
			Type: eventbus.TypeDailyGenerated,
			Data: map[string]any{"date": date, "deck_id": d.ID, "session_id": saved.ID},
		})
	}
	return saved, nil
}
