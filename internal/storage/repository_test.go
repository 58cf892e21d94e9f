package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gagyebu/internal/core"
	"gagyebu/internal/remote/storetest"
)

func openTestSQLite(t *testing.T) (*Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "gagyebu.db")
	repo, err := OpenSQLite(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func TestSQLiteRepository(t *testing.T) {
	repo, _ := openTestSQLite(t)
	storetest.Run(t, repo)
}

func TestSQLiteReopenKeepsDataAndSeedsOnce(t *testing.T) {
	repo, path := openTestSQLite(t)
	ctx := context.Background()

	rec, err := repo.CreateRecord(ctx, core.Creation{Date: "2024-05-01", CategoryID: 1, MethodID: 1, Amount: 9000, User: "mina", Memo: "장보기"})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	repo.Close()

	again, err := OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()

	got, err := again.Get(ctx, rec.ID)
	if err != nil || got != rec {
		t.Fatalf("Get after reopen = %+v, %v; want %+v", got, err, rec)
	}
	cats, _ := again.References(ctx, core.KindCategory)
	if len(cats) != 6 {
		t.Fatalf("seeds duplicated on reopen: %d categories", len(cats))
	}
	if err := again.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestRebindDollar(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"DELETE FROM records WHERE id = ?", "DELETE FROM records WHERE id = $1"},
		{"VALUES (?, ?, ?)", "VALUES ($1, $2, $3)"},
	}
	for _, tt := range tests {
		if got := rebindDollar(tt.in); got != tt.want {
			t.Errorf("rebindDollar(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(postgresSchema)
	if len(stmts) != 6 {
		t.Fatalf("expected 6 ddl statements, got %d", len(stmts))
	}
	for _, s := range stmts {
		if s == "" {
			t.Fatalf("empty statement")
		}
	}
}

// TestPostgresRepository runs against a live database when GAGYEBU_TEST_POSTGRES_DSN is set.
func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("GAGYEBU_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GAGYEBU_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	repo, err := OpenPostgres(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer repo.Close()
	if _, err := repo.db.ExecContext(ctx, "TRUNCATE records, categories, methods RESTART IDENTITY"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if err := repo.seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	storetest.Run(t, repo)
}
