package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/yuqie6/Arcana/internal/repository"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *repository.Database {
	t.Helper()
	db := repository.NewDatabase(repository.Options{Path: ":memory:"})
	if _, err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func hasTable(t *testing.T, db *repository.Database, name string) bool {
	t.Helper()
	row, err := db.QueryFirst(context.Background(),
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	if err != nil {
		t.Fatalf("QueryFirst error: %v", err)
	}
	return row != nil
}

func TestMigrateAppliesAllVersions(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	r, err := NewRunner(db, All())
	if err != nil {
		t.Fatalf("NewRunner error: %v", err)
	}
	if v, err := r.CurrentVersion(ctx); err != nil || v != 0 {
		t.Fatalf("CurrentVersion=%d err=%v, want 0", v, err)
	}
	if need, _ := r.NeedsMigration(ctx); !need {
		t.Fatalf("NeedsMigration=false on empty db")
	}

	if err := r.Migrate(ctx); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	if v, _ := r.CurrentVersion(ctx); v != r.Latest() {
		t.Fatalf("CurrentVersion=%d, want %d", v, r.Latest())
	}
	for _, table := range []string{"daily_sessions", "daily_cards", "settings", "spreads", "spread_cards", "purchases"} {
		if !hasTable(t, db, table) {
			t.Fatalf("table %s missing after Migrate", table)
		}
	}

	history, err := r.History(ctx)
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(history) != r.Latest() {
		t.Fatalf("len(history)=%d, want %d", len(history), r.Latest())
	}
	for i, h := range history {
		if h.Version != i+1 || !h.Success || h.AppliedAt.IsZero() {
			t.Fatalf("history[%d]=%+v", i, h)
		}
	}

	// 再次迁移为 no-op
	if err := r.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate error: %v", err)
	}
}

func TestMigrateToRejectsDowngrade(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	r, _ := NewRunner(db, All())

	if err := r.MigrateTo(ctx, 3); err != nil {
		t.Fatalf("MigrateTo(3) error: %v", err)
	}
	err := r.MigrateTo(ctx, 1)
	if !errors.Is(err, ErrDowngrade) {
		t.Fatalf("MigrateTo(1) err=%v, want ErrDowngrade", err)
	}
	var me *MigrationError
	if !errors.As(err, &me) || me.Version != 1 {
		t.Fatalf("err=%v, want *MigrationError{Version:1}", err)
	}
	if v, _ := r.CurrentVersion(ctx); v != 3 {
		t.Fatalf("CurrentVersion=%d, want 3", v)
	}

	if err := r.MigrateTo(ctx, 99); !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("MigrateTo(99) err=%v, want ErrUnknownVersion", err)
	}
}

func TestFailedMigrationRollsBackAndBlocks(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	broken := true
	migrations := []Migration{
		{
			Version:     1,
			Description: "first",
			Up: func(ctx context.Context, tx *gorm.DB) error {
				return execAll(tx, `CREATE TABLE first_t (id INTEGER PRIMARY KEY)`)
			},
			Down: func(ctx context.Context, tx *gorm.DB) error {
				return execAll(tx, `DROP TABLE first_t`)
			},
		},
		{
			Version:     2,
			Description: "second",
			Up: func(ctx context.Context, tx *gorm.DB) error {
				if err := execAll(tx, `CREATE TABLE second_t (id INTEGER PRIMARY KEY)`); err != nil {
					return err
				}
				if broken {
					return execAll(tx, `CREATE TABLE broken syntax here`)
				}
				return nil
			},
			Down: func(ctx context.Context, tx *gorm.DB) error {
				return execAll(tx, `DROP TABLE second_t`)
			},
		},
	}
	r, err := NewRunner(db, migrations)
	if err != nil {
		t.Fatalf("NewRunner error: %v", err)
	}

	err = r.Migrate(ctx)
	var me *MigrationError
	if !errors.As(err, &me) || me.Version != 2 || me.Description != "second" {
		t.Fatalf("Migrate err=%v, want *MigrationError{Version:2}", err)
	}
	if v, _ := r.CurrentVersion(ctx); v != 1 {
		t.Fatalf("CurrentVersion=%d, want 1", v)
	}
	if hasTable(t, db, "second_t") {
		t.Fatalf("second_t exists after failed migration")
	}

	history, _ := r.History(ctx)
	if len(history) != 2 || history[1].Success {
		t.Fatalf("history=%+v, want v2 marked failed", history)
	}

	broken = false
	if err := r.Migrate(ctx); !errors.Is(err, ErrBlocked) {
		t.Fatalf("Migrate after failure err=%v, want ErrBlocked", err)
	}

	if err := r.ClearFailure(ctx, 2); err != nil {
		t.Fatalf("ClearFailure error: %v", err)
	}
	if err := r.Migrate(ctx); err != nil {
		t.Fatalf("Migrate after ClearFailure error: %v", err)
	}
	if v, _ := r.CurrentVersion(ctx); v != 2 {
		t.Fatalf("CurrentVersion=%d, want 2", v)
	}
	if !hasTable(t, db, "second_t") {
		t.Fatalf("second_t missing after retry")
	}
}

func TestRollbackRequiresDevelopmentBuild(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	locked, _ := NewRunner(db, All())
	if err := locked.Migrate(ctx); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	if err := locked.Rollback(ctx, 1); !errors.Is(err, ErrRollbackDisabled) {
		t.Fatalf("Rollback err=%v, want ErrRollbackDisabled", err)
	}

	r, _ := NewRunner(db, All(), WithRollback(true))
	if err := r.Rollback(ctx, 2); err != nil {
		t.Fatalf("Rollback(2) error: %v", err)
	}
	if v, _ := r.CurrentVersion(ctx); v != 2 {
		t.Fatalf("CurrentVersion=%d, want 2", v)
	}
	if hasTable(t, db, "purchases") {
		t.Fatalf("purchases exists after rollback to 2")
	}
	if !hasTable(t, db, "spreads") {
		t.Fatalf("spreads missing after rollback to 2")
	}
	if err := r.Rollback(ctx, 2); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("Rollback(2) at 2 err=%v, want ErrInvalidTarget", err)
	}

	// 回滚后可以重新向前迁移
	if err := r.Migrate(ctx); err != nil {
		t.Fatalf("Migrate after rollback error: %v", err)
	}
	if v, _ := r.CurrentVersion(ctx); v != r.Latest() {
		t.Fatalf("CurrentVersion=%d, want %d", v, r.Latest())
	}
}

func TestNewRunnerValidatesRegistry(t *testing.T) {
	db := openDB(t)
	noop := func(ctx context.Context, tx *gorm.DB) error { return nil }

	if _, err := NewRunner(db, []Migration{{Version: 2, Up: noop, Down: noop}}); err == nil {
		t.Fatalf("NewRunner with gap err=nil, want error")
	}
	if _, err := NewRunner(db, []Migration{{Version: 1, Up: noop}}); err == nil {
		t.Fatalf("NewRunner without Down err=nil, want error")
	}
	r, err := NewRunner(db, []Migration{{Version: 2, Up: noop, Down: noop}, {Version: 1, Up: noop, Down: noop}})
	if err != nil || r.Latest() != 2 {
		t.Fatalf("NewRunner unsorted err=%v latest=%d", err, r.Latest())
	}
}

func TestCurrentVersionRequiresReadyDatabase(t *testing.T) {
	db := repository.NewDatabase(repository.Options{Path: ":memory:"})
	r, _ := NewRunner(db, All())
	if _, err := r.CurrentVersion(context.Background()); !errors.Is(err, repository.ErrNotReady) {
		t.Fatalf("CurrentVersion err=%v, want ErrNotReady", err)
	}
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	defer db.Close()
	if v, _ := r.CurrentVersion(context.Background()); v != r.Latest() {
		t.Fatalf("CurrentVersion=%d after Initialize", v)
	}
}
