// Package jsonfile persists the ledger as two JSON documents in a directory.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"chitieu/internal/core"
	"chitieu/internal/ledger"
)

const (
	EntriesFile = "spending_entries.json"
	BudgetFile  = "spending_monthly_budget.json"
)

var _ ledger.Persistence = (*Store)(nil)

type Store struct {
	mu  sync.Mutex
	dir string
}

// New uses dir, creating it when missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) LoadTransactions(_ context.Context) ([]core.Transaction, error) {
	var txs []core.Transaction
	if err := s.read(EntriesFile, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) SaveTransactions(_ context.Context, txs []core.Transaction) error {
	if txs == nil {
		txs = []core.Transaction{}
	}
	return s.write(EntriesFile, txs)
}

func (s *Store) LoadBudget(_ context.Context) (core.Money, error) {
	var b core.Money
	if err := s.read(BudgetFile, &b); err != nil {
		return 0, err
	}
	return b, nil
}

func (s *Store) SaveBudget(_ context.Context, budget core.Money) error {
	return s.write(BudgetFile, budget)
}

func (s *Store) read(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return ledger.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// write replaces name atomically via a temp file and rename.
func (s *Store) write(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
