// Package postgres persists the ledger in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chitieu/internal/core"
	"chitieu/internal/ledger"
)

const budgetKey = "monthly_budget"

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
    id            TEXT PRIMARY KEY,
    position      INTEGER NOT NULL,
    date          DATE NOT NULL,
    amount        BIGINT NOT NULL CHECK (amount >= 0),
    type          TEXT,
    category      TEXT NOT NULL DEFAULT '',
    description   TEXT NOT NULL DEFAULT '',
    original_text TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);
CREATE INDEX IF NOT EXISTS idx_transactions_position ON transactions(position);

CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

var columns = []string{"id", "position", "date", "amount", "type", "category", "description", "original_text"}

var _ ledger.Persistence = (*Repository)(nil)

type Repository struct {
	pool *pgxpool.Pool
}

// New connects to url and creates the schema when missing.
func New(ctx context.Context, url string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 4

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(connectCtx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// LoadTransactions returns every stored record in display order.
func (r *Repository) LoadTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, date, amount, type, category, description, original_text
		FROM transactions
		ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t    core.Transaction
			date time.Time
			typ  *string
			amt  int64
			cat  string
		)
		if err := rows.Scan(&t.ID, &date, &amt, &typ, &cat, &t.Description, &t.OriginalText); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Date = core.DateOf(date)
		t.Amount = core.Money(amt)
		t.Category = core.Category(cat)
		if typ != nil {
			t.Type = core.Type(*typ)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

// SaveTransactions replaces the stored collection with txs in one
// transaction, bulk loading the rows with COPY.
func (r *Repository) SaveTransactions(ctx context.Context, txs []core.Transaction) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"transactions"}, columns,
		pgx.CopyFromSlice(len(txs), func(i int) ([]any, error) {
			t := txs[i]
			var typ *string
			if t.Type != "" {
				s := string(t.Type)
				typ = &s
			}
			return []any{t.ID, int32(i), t.Date.Time, int64(t.Amount), typ, string(t.Category), t.Description, t.OriginalText}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy transactions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.DebugContext(ctx, "Transactions saved to Postgres", "count", len(txs))
	return nil
}

func (r *Repository) LoadBudget(ctx context.Context) (core.Money, error) {
	var v int64
	err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, budgetKey).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledger.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get budget: %w", err)
	}
	return core.Money(v), nil
}

func (r *Repository) SaveBudget(ctx context.Context, budget core.Money) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		budgetKey, int64(budget))
	if err != nil {
		return fmt.Errorf("save budget: %w", err)
	}
	return nil
}
