// Package storage persists the ledger in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"chitieu/internal/core"
	"chitieu/internal/ledger"

	_ "modernc.org/sqlite"
)

const budgetKey = "monthly_budget"

var _ ledger.Persistence = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LoadTransactions returns every stored record in display order.
func (r *SQLiteRepository) LoadTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		date, err := core.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", row.ID, err)
		}
		out = append(out, core.Transaction{
			ID:           row.ID,
			Date:         date,
			Amount:       core.Money(row.Amount),
			Type:         core.Type(row.Type.String),
			Category:     core.Category(row.Category),
			Description:  row.Description,
			OriginalText: row.OriginalText,
		})
	}
	return out, nil
}

// SaveTransactions replaces the stored collection with txs in one SQL
// transaction.
func (r *SQLiteRepository) SaveTransactions(ctx context.Context, txs []core.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.DeleteAllTransactions(ctx); err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	for i, t := range txs {
		err := q.InsertTransaction(ctx, TransactionRow{
			ID:           t.ID,
			Position:     int64(i),
			Date:         t.Date.Key(),
			Amount:       int64(t.Amount),
			Type:         sql.NullString{String: string(t.Type), Valid: t.Type != ""},
			Category:     string(t.Category),
			Description:  t.Description,
			OriginalText: t.OriginalText,
		})
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.DebugContext(ctx, "Transactions saved to SQLite", "count", len(txs))
	return nil
}

func (r *SQLiteRepository) LoadBudget(ctx context.Context) (core.Money, error) {
	v, err := r.queries.GetSetting(ctx, budgetKey)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get budget: %w", err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse budget %q: %w", v, err)
	}
	return core.Money(n), nil
}

func (r *SQLiteRepository) SaveBudget(ctx context.Context, budget core.Money) error {
	if err := r.queries.UpsertSetting(ctx, budgetKey, strconv.FormatInt(int64(budget), 10)); err != nil {
		return fmt.Errorf("save budget: %w", err)
	}
	return nil
}
