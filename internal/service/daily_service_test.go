package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yuqie6/Arcana/internal/daily"
	"github.com/yuqie6/Arcana/internal/deck"
	"github.com/yuqie6/Arcana/internal/eventbus"
	"github.com/yuqie6/Arcana/internal/schema"
)

type fakeDailyRepo struct {
	sessions map[string]*schema.DailySession
	saves    int
	nextID   int64
}

func newFakeDailyRepo() *fakeDailyRepo {
	return &fakeDailyRepo{sessions: make(map[string]*schema.DailySession)}
}

func (f *fakeDailyRepo) GetSessionByDate(ctx context.Context, date string) (*schema.DailySession, error) {
	return f.sessions[date], nil
}

func (f *fakeDailyRepo) SaveGenerated(ctx context.Context, s *schema.DailySession) (*schema.DailySession, error) {
	f.saves++
	if existing, ok := f.sessions[s.Date]; ok {
		s.ID = existing.ID
	} else {
		f.nextID++
		s.ID = f.nextID
	}
	cp := *s
	f.sessions[s.Date] = &cp
	return &cp, nil
}

type recordingPublisher struct {
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(evt eventbus.Event) { p.events = append(p.events, evt) }

func newTestService(t *testing.T) (*DailyService, *fakeDailyRepo, *recordingPublisher) {
	t.Helper()
	catalog, err := deck.Builtin()
	if err != nil {
		t.Fatalf("Builtin error: %v", err)
	}
	cache, err := daily.NewCache(8)
	if err != nil {
		t.Fatalf("NewCache error: %v", err)
	}
	repo := newFakeDailyRepo()
	pub := &recordingPublisher{}
	return NewDailyService(repo, cache, catalog, pub), repo, pub
}

func TestDailyServiceOpenGeneratesOnce(t *testing.T) {
	ctx := context.Background()
	svc, repo, pub := newTestService(t)

	first, err := svc.Open(ctx, "2025-03-14", "classic")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if !first.Complete() || first.DeckID != "classic" || first.Seed != "2025-03-14" {
		t.Fatalf("session=%+v", first)
	}
	if first.Cards[0].ContentKey == "" || len(first.Cards[0].Keywords) == 0 {
		t.Fatalf("card 0=%+v", first.Cards[0])
	}

	second, err := svc.Open(ctx, "2025-03-14", "classic")
	if err != nil {
		t.Fatalf("second Open error: %v", err)
	}
	if repo.saves != 1 || second.ID != first.ID {
		t.Fatalf("saves=%d id=%d/%d, want a single generation", repo.saves, first.ID, second.ID)
	}
	if len(pub.events) != 1 || pub.events[0].Type != eventbus.TypeDailyGenerated {
		t.Fatalf("events=%+v", pub.events)
	}

	// 已存在的完整会话不因牌组不同而重建
	third, _ := svc.Open(ctx, "2025-03-14", "major")
	if third.DeckID != "classic" || repo.saves != 1 {
		t.Fatalf("existing session regenerated: deck=%s saves=%d", third.DeckID, repo.saves)
	}
}

func TestDailyServiceIsReproducibleAfterReinstall(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestService(t)
	b, _, _ := newTestService(t)

	first, _ := a.Open(ctx, "2025-03-14", "classic")
	fresh, _ := b.Open(ctx, "2025-03-14", "classic")

	catalog, _ := deck.Builtin()
	classic, _ := catalog.Get("classic")
	indices, err := daily.Generate("2025-03-14", classic.Size())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	for h, idx := range indices {
		card, _ := classic.Card(idx)
		if first.Cards[h].ContentKey != card.Key {
			t.Fatalf("hour %d: content_key=%s, want %s", h, first.Cards[h].ContentKey, card.Key)
		}
	}
	for h := range first.Cards {
		if first.Cards[h].ContentKey != fresh.Cards[h].ContentKey {
			t.Fatalf("hour %d: %s vs %s", h, first.Cards[h].ContentKey, fresh.Cards[h].ContentKey)
		}
	}
}

func TestDailyServiceErrors(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t)

	if _, err := svc.Open(ctx, "2025-03-14", "major"); !errors.Is(err, daily.ErrDeckTooSmall) {
		t.Fatalf("Open(major) err=%v, want ErrDeckTooSmall", err)
	}
	if _, err := svc.Open(ctx, "2025-03-14", "thoth"); !errors.Is(err, deck.ErrUnknownDeck) {
		t.Fatalf("Open(thoth) err=%v, want ErrUnknownDeck", err)
	}
	if _, err := svc.Open(ctx, "not-a-date", "classic"); err == nil {
		t.Fatalf("Open(bad date) err=nil, want error")
	}
	if repo.saves != 0 {
		t.Fatalf("saves=%d, want 0", repo.saves)
	}
}

func TestDailyServiceRegenerateAndCardAt(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t)
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 15, 30, 0, 0, time.Local) }

	today, err := svc.Today(ctx, "classic")
	if err != nil || today.Date != "2025-03-14" {
		t.Fatalf("Today=%+v err=%v", today, err)
	}

	again, err := svc.Regenerate(ctx, "2025-03-14", "classic")
	if err != nil {
		t.Fatalf("Regenerate error: %v", err)
	}
	if repo.saves != 2 || again.ID != today.ID {
		t.Fatalf("saves=%d id=%d/%d", repo.saves, today.ID, again.ID)
	}

	card, err := svc.CardAt(ctx, svc.now(), "classic")
	if err != nil {
		t.Fatalf("CardAt error: %v", err)
	}
	if card.Hour != 15 || card.ContentKey != today.Cards[15].ContentKey {
		t.Fatalf("card=%+v", card)
	}
}

func TestRolloverScheduleAndRunOnce(t *testing.T) {
	svc, repo, _ := newTestService(t)
	var opened []*schema.DailySession
	open := func(ctx context.Context) (*schema.DailySession, error) {
		s, err := svc.Today(ctx, "classic")
		if err == nil {
			opened = append(opened, s)
		}
		return s, err
	}
	if _, err := NewRollover("not a cron", open); err == nil {
		t.Fatalf("NewRollover(bad cron) err=nil, want error")
	}
	if _, err := NewRollover("", nil); err == nil {
		t.Fatalf("NewRollover(nil open) err=nil, want error")
	}

	r, err := NewRollover("", open)
	if err != nil {
		t.Fatalf("NewRollover error: %v", err)
	}
	svc.now = func() time.Time { return time.Date(2025, 3, 15, 0, 5, 0, 0, time.Local) }
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if len(opened) != 1 || opened[0].Date != "2025-03-15" || repo.saves != 1 {
		t.Fatalf("opened=%d saves=%d, want one session for 2025-03-15", len(opened), repo.saves)
	}

	failing, _ := NewRollover("", func(ctx context.Context) (*schema.DailySession, error) {
		return nil, daily.ErrDeckTooSmall
	})
	if err := failing.RunOnce(context.Background()); !errors.Is(err, daily.ErrDeckTooSmall) {
		t.Fatalf("RunOnce err=%v, want ErrDeckTooSmall", err)
	}

	r.Start()
	if r.Next().IsZero() {
		t.Fatalf("Next is zero after Start")
	}
	<-r.Stop().Done()
}
