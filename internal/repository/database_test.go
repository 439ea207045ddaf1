package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/yuqie6/Arcana/internal/repository"
)

func openRaw(t *testing.T, production bool) *repository.Database {
	t.Helper()
	db := repository.NewDatabase(repository.Options{Path: ":memory:", Production: production})
	if _, err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDatabaseInitializeIsIdempotent(t *testing.T) {
	db := openRaw(t, false)
	first, err := db.Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	second, err := db.Initialize(context.Background())
	if err != nil {
		t.Fatalf("second Initialize error: %v", err)
	}
	if first != second {
		t.Fatalf("Initialize returned a different handle")
	}
	if !db.Ready() || db.State() != "ready" {
		t.Fatalf("Ready=%v State=%s", db.Ready(), db.State())
	}

	row, err := db.QueryFirst(context.Background(), "PRAGMA foreign_keys")
	if err != nil {
		t.Fatalf("QueryFirst error: %v", err)
	}
	if fk, _ := row["foreign_keys"].(int64); fk != 1 {
		t.Fatalf("foreign_keys=%v, want 1", row["foreign_keys"])
	}
}

func TestDatabaseQuery(t *testing.T) {
	ctx := context.Background()
	db := openRaw(t, false)

	if _, err := db.Query(ctx, "CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT NOT NULL)"); err != nil {
		t.Fatalf("create error: %v", err)
	}
	res, err := db.Query(ctx, "INSERT INTO notes (body) VALUES (?)", "the fool")
	if err != nil {
		t.Fatalf("insert error: %v", err)
	}
	if !res.HasInsertID || res.InsertID != 1 || res.RowsAffected != 1 {
		t.Fatalf("insert result=%+v", res)
	}

	res, err = db.Query(ctx, "SELECT id, body FROM notes WHERE id = ?", 1)
	if err != nil {
		t.Fatalf("select error: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["body"] != "the fool" {
		t.Fatalf("rows=%v", res.Rows)
	}

	row, err := db.QueryFirst(ctx, "SELECT id FROM notes WHERE id = ?", 42)
	if err != nil || row != nil {
		t.Fatalf("QueryFirst(missing) row=%v err=%v, want nil,nil", row, err)
	}

	_, err = db.Query(ctx, "SELECT * FROM missing_table")
	var qe *repository.QueryError
	if !errors.As(err, &qe) || qe.SQL == "" {
		t.Fatalf("err=%v, want *QueryError", err)
	}
}

func TestDatabaseQueryReturningAfterNewline(t *testing.T) {
	ctx := context.Background()
	db := openRaw(t, false)

	if _, err := db.Query(ctx, "CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT NOT NULL)"); err != nil {
		t.Fatalf("create error: %v", err)
	}
	for _, q := range []string{
		"INSERT INTO notes (body) VALUES (?)\nRETURNING id",
		"INSERT INTO notes (body) VALUES (?)\treturning\tid, body",
		"INSERT INTO notes (body)\r\n  VALUES (?)\r\n  RETURNING id",
	} {
		res, err := db.Query(ctx, q, "the tower")
		if err != nil {
			t.Fatalf("%q error: %v", q, err)
		}
		if len(res.Rows) != 1 || res.Rows[0]["id"] == nil {
			t.Fatalf("%q rows=%v, want the returned id", q, res.Rows)
		}
	}

	row, _ := db.QueryFirst(ctx, "SELECT COUNT(*) AS n FROM notes")
	if n, _ := row["n"].(int64); n != 3 {
		t.Fatalf("rows=%v, want 3", row["n"])
	}
}

func TestDatabaseTransactionIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	db := openRaw(t, false)

	if _, err := db.Query(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT NOT NULL)"); err != nil {
		t.Fatalf("create error: %v", err)
	}

	_, err := db.Transaction(ctx, []repository.Statement{
		{SQL: "INSERT INTO kv (k, v) VALUES (?, ?)", Args: []any{"a", "1"}},
		{SQL: "INSERT INTO kv (k, v) VALUES (?, ?)", Args: []any{"b", "2"}},
		{SQL: "INSERT INTO kv (k, v) VALUES (?, ?)", Args: []any{"a", "dup"}},
	})
	var te *repository.TransactionError
	if !errors.As(err, &te) || te.Index != 2 {
		t.Fatalf("err=%v, want *TransactionError{Index:2}", err)
	}
	row, _ := db.QueryFirst(ctx, "SELECT COUNT(*) AS n FROM kv")
	if n, _ := row["n"].(int64); n != 0 {
		t.Fatalf("rows after rollback=%v, want 0", row["n"])
	}

	results, err := db.Transaction(ctx, []repository.Statement{
		{SQL: "INSERT INTO kv (k, v) VALUES (?, ?)", Args: []any{"a", "1"}},
		{SQL: "SELECT v FROM kv WHERE k = ?", Args: []any{"a"}},
	})
	if err != nil {
		t.Fatalf("Transaction error: %v", err)
	}
	if len(results) != 2 || len(results[1].Rows) != 1 || results[1].Rows[0]["v"] != "1" {
		t.Fatalf("results=%+v", results)
	}
}

func TestDatabaseResetRequiresDevelopmentBuild(t *testing.T) {
	ctx := context.Background()

	prod := openRaw(t, true)
	var pe *repository.PermissionError
	if err := prod.Reset(ctx); !errors.As(err, &pe) {
		t.Fatalf("Reset err=%v, want *PermissionError", err)
	}

	dev := openRaw(t, false)
	if _, err := dev.Query(ctx, "CREATE TABLE parent (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create error: %v", err)
	}
	if _, err := dev.Query(ctx, "CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER REFERENCES parent(id))"); err != nil {
		t.Fatalf("create error: %v", err)
	}
	if err := dev.Reset(ctx); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	row, _ := dev.QueryFirst(ctx, "SELECT COUNT(*) AS n FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if n, _ := row["n"].(int64); n != 0 {
		t.Fatalf("tables after Reset=%v, want 0", row["n"])
	}
}

func TestDatabaseClosedIsNotReady(t *testing.T) {
	ctx := context.Background()
	db := repository.NewDatabase(repository.Options{Path: ":memory:"})

	if _, err := db.Query(ctx, "SELECT 1"); !errors.Is(err, repository.ErrNotReady) {
		t.Fatalf("Query before Initialize err=%v, want ErrNotReady", err)
	}
	if _, err := db.Initialize(ctx); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if _, err := db.Query(ctx, "SELECT 1"); !errors.Is(err, repository.ErrNotReady) {
		t.Fatalf("Query after Close err=%v, want ErrNotReady", err)
	}
	if db.State() != "closed" {
		t.Fatalf("State=%s, want closed", db.State())
	}
}

func TestDatabaseInitializeRejectsEmptyPath(t *testing.T) {
	db := repository.NewDatabase(repository.Options{})
	_, err := db.Initialize(context.Background())
	var ce *repository.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("err=%v, want *ConnectionError", err)
	}
}
