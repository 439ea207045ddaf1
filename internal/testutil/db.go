package testutil

import (
	"context"
	"testing"

	"github.com/yuqie6/Arcana/internal/migration"
	"github.com/yuqie6/Arcana/internal/repository"
)

// OpenTestDB 打开内存 SQLite 并迁移到最新版本
func OpenTestDB(t *testing.T) *repository.Database {
	t.Helper()

	db := repository.NewDatabase(repository.Options{Path: ":memory:"})
	runner, err := migration.NewRunner(db, migration.All())
	if err != nil {
		t.Fatalf("new migration runner: %v", err)
	}
	if err := runner.Initialize(context.Background()); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}
