package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"chitieu/internal/core"
	"chitieu/internal/ledger"
)

// newTestRepo needs a disposable database in CHITIEU_TEST_DATABASE_URL.
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("CHITIEU_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CHITIEU_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	repo, err := New(ctx, url)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() {
		_, _ = repo.pool.Exec(ctx, `DELETE FROM transactions; DELETE FROM settings`)
		repo.Close()
	})
	return repo
}

func TestSaveAndLoadTransactions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	txs := []core.Transaction{
		{ID: "b", Date: core.NewDate(2024, 5, 2), Amount: 45000, Type: core.Expense, Category: core.CategoryFood, Description: "bún", OriginalText: "bún 45k"},
		{ID: "a", Date: core.NewDate(2024, 5, 1), Amount: 10000000, Type: core.Income, Category: core.CategoryIncome, Description: "lương"},
		{ID: "old", Date: core.NewDate(2023, 1, 1), Amount: 100, Category: core.CategoryIncome},
	}
	if err := repo.SaveTransactions(ctx, txs); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.LoadTransactions(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i := range txs {
		if got[i] != txs[i] {
			t.Fatalf("record %d mismatch:\n got %+v\nwant %+v", i, got[i], txs[i])
		}
	}

	if err := repo.SaveTransactions(ctx, nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	if got, _ := repo.LoadTransactions(ctx); len(got) != 0 {
		t.Fatalf("expected empty table, got %d", len(got))
	}
}

func TestBudget(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.LoadBudget(ctx); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, b := range []core.Money{5000000, 7000000} {
		if err := repo.SaveBudget(ctx, b); err != nil {
			t.Fatalf("save budget: %v", err)
		}
	}
	b, err := repo.LoadBudget(ctx)
	if err != nil || b != 7000000 {
		t.Fatalf("budget = %d, %v", b, err)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
