package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/yuqie6/Arcana/internal/repository"
	"github.com/yuqie6/Arcana/internal/schema"
	"github.com/yuqie6/Arcana/internal/testutil"
)

func strPtr(s string) *string { return &s }

func threeCardSpread(title string) *schema.Spread {
	return &schema.Spread{
		SpreadType: "three_card",
		DeckID:     "classic",
		Title:      strPtr(title),
		Cards: []schema.SpreadCard{
			{PositionIndex: 0, ContentKey: "major-00", X: 0.05, Y: 0.3, W: 0.25, H: 0.4},
			{PositionIndex: 1, ContentKey: "cups-03", Reversed: true, X: 0.375, Y: 0.3, W: 0.25, H: 0.4},
			{PositionIndex: 2, ContentKey: "swords-10", X: 0.7, Y: 0.3, W: 0.25, H: 0.4},
		},
	}
}

func TestSpreadRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSpreadRepository(testutil.OpenTestDB(t))

	sp := threeCardSpread("morning check-in")
	if err := repo.Create(ctx, sp); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if len(sp.ID) != 36 {
		t.Fatalf("ID=%q, want uuid", sp.ID)
	}

	got, err := repo.GetByID(ctx, sp.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID=%+v err=%v", got, err)
	}
	if len(got.Cards) != 3 || !got.Cards[1].Reversed || got.Cards[2].ContentKey != "swords-10" {
		t.Fatalf("cards=%+v", got.Cards)
	}

	missing, err := repo.GetByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("GetByID(missing)=%+v err=%v", missing, err)
	}
}

func TestSpreadRepositoryCreateValidatesLayout(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenTestDB(t)
	repo := repository.NewSpreadRepository(db)

	sp := threeCardSpread("bad")
	sp.Cards[2].W = 1.5
	if err := repo.Create(ctx, sp); err == nil {
		t.Fatalf("Create(w=1.5) err=nil, want error")
	}

	sp = threeCardSpread("dup")
	sp.Cards[2].PositionIndex = 0
	if err := repo.Create(ctx, sp); err == nil {
		t.Fatalf("Create(duplicate position) err=nil, want error")
	}

	row, _ := db.QueryFirst(ctx, "SELECT COUNT(*) AS n FROM spreads")
	if n, _ := row["n"].(int64); n != 0 {
		t.Fatalf("spreads=%v, want 0", row["n"])
	}
}

func TestSpreadRepositoryUpdateSearchDelete(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenTestDB(t)
	repo := repository.NewSpreadRepository(db)

	a := threeCardSpread("career")
	b := threeCardSpread("love_life")
	for _, sp := range []*schema.Spread{a, b} {
		if err := repo.Create(ctx, sp); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	all, err := repo.List(ctx, repository.Page{})
	if err != nil || len(all) != 2 {
		t.Fatalf("List=%d err=%v, want 2", len(all), err)
	}

	found, _ := repo.Search(ctx, "love_", repository.Page{})
	if len(found) != 1 || found[0].ID != b.ID {
		t.Fatalf("Search(love_)=%+v", found)
	}
	found, _ = repo.Search(ctx, "_", repository.Page{})
	if len(found) != 2 {
		// spread_type three_card 也含下划线
		t.Fatalf("Search(_)=%d, want 2", len(found))
	}

	if err := repo.UpdateMeta(ctx, a.ID, repository.SpreadMeta{Title: strPtr("new job")}); err != nil {
		t.Fatalf("UpdateMeta error: %v", err)
	}
	got, _ := repo.GetByID(ctx, a.ID)
	if got.Title == nil || *got.Title != "new job" {
		t.Fatalf("title=%v", got.Title)
	}
	if err := repo.UpdateMeta(ctx, "nope", repository.SpreadMeta{Title: strPtr("x")}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("UpdateMeta(missing) err=%v, want ErrNotFound", err)
	}

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	row, _ := db.QueryFirst(ctx, "SELECT COUNT(*) AS n FROM spread_cards WHERE spread_id = ?", a.ID)
	if n, _ := row["n"].(int64); n != 0 {
		t.Fatalf("spread_cards after delete=%v, want 0", row["n"])
	}
}

func TestSettingRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSettingRepository(testutil.OpenTestDB(t))

	if _, ok, err := repo.Get(ctx, "locale"); ok || err != nil {
		t.Fatalf("Get(missing) ok=%v err=%v", ok, err)
	}
	if err := repo.Set(ctx, "locale", "en"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := repo.Set(ctx, "locale", "zh"); err != nil {
		t.Fatalf("second Set error: %v", err)
	}
	if v, ok, _ := repo.Get(ctx, "locale"); !ok || v != "zh" {
		t.Fatalf("Get=%q ok=%v, want zh", v, ok)
	}

	if b, _ := repo.GetBool(ctx, "reversed", true); !b {
		t.Fatalf("GetBool(missing) should return default")
	}
	if err := repo.SetBool(ctx, "reversed", false); err != nil {
		t.Fatalf("SetBool error: %v", err)
	}
	if b, _ := repo.GetBool(ctx, "reversed", true); b {
		t.Fatalf("GetBool=true, want false")
	}

	type reminder struct {
		Enabled bool `json:"enabled"`
		Minute  int  `json:"minute"`
	}
	if err := repo.SetJSON(ctx, "reminder", reminder{Enabled: true, Minute: 15}); err != nil {
		t.Fatalf("SetJSON error: %v", err)
	}
	var r reminder
	if ok, err := repo.GetJSON(ctx, "reminder", &r); !ok || err != nil || r.Minute != 15 {
		t.Fatalf("GetJSON=%+v ok=%v err=%v", r, ok, err)
	}

	all, _ := repo.All(ctx)
	if len(all) != 3 || all[0].Key != "locale" {
		t.Fatalf("All=%+v", all)
	}
	if err := repo.Delete(ctx, "locale"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, ok, _ := repo.Get(ctx, "locale"); ok {
		t.Fatalf("locale still present after Delete")
	}
}

func TestPurchaseRepositoryUpsertKeepsID(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPurchaseRepository(testutil.OpenTestDB(t))

	p := &schema.Purchase{ProductID: "deck.golden", Platform: "ios", IsActive: true}
	if err := repo.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	firstID := p.ID

	again := &schema.Purchase{ProductID: "deck.golden", Platform: "android", IsActive: true}
	if err := repo.Upsert(ctx, again); err != nil {
		t.Fatalf("second Upsert error: %v", err)
	}
	if again.ID != firstID {
		t.Fatalf("ID=%s, want %s", again.ID, firstID)
	}

	got, _ := repo.GetByProductID(ctx, "deck.golden")
	if got == nil || got.Platform != "android" {
		t.Fatalf("got=%+v", got)
	}

	inactive := &schema.Purchase{ProductID: "theme.night", Platform: "ios", IsActive: false}
	if err := repo.Upsert(ctx, inactive); err != nil {
		t.Fatalf("Upsert inactive error: %v", err)
	}
	active, _ := repo.ListActive(ctx)
	if len(active) != 1 || active[0].ProductID != "deck.golden" {
		t.Fatalf("ListActive=%+v", active)
	}

	if err := repo.Deactivate(ctx, "deck.golden"); err != nil {
		t.Fatalf("Deactivate error: %v", err)
	}
	active, _ = repo.ListActive(ctx)
	if len(active) != 0 {
		t.Fatalf("ListActive after Deactivate=%d, want 0", len(active))
	}
	if err := repo.Deactivate(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Deactivate(missing) err=%v, want ErrNotFound", err)
	}
	all, _ := repo.List(ctx, repository.Page{})
	if len(all) != 2 {
		t.Fatalf("List=%d, want 2", len(all))
	}
}
