// Package ledger owns the transaction collection every view is computed from.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"chitieu/internal/core"

	"github.com/google/uuid"
)

// ErrNotFound is returned by a Persistence that has nothing saved yet.
var ErrNotFound = errors.New("nothing persisted")

// Persistence is the load/save collaborator behind a Store.
type Persistence interface {
	LoadTransactions(ctx context.Context) ([]core.Transaction, error)
	SaveTransactions(ctx context.Context, txs []core.Transaction) error
	LoadBudget(ctx context.Context) (core.Money, error)
	SaveBudget(ctx context.Context, budget core.Money) error
}

// Store keeps transactions in display order (newest batch first). Nothing
// that aggregates may rely on that order.
type Store struct {
	mu       sync.RWMutex
	items    []core.Transaction
	budget   core.Money
	revision uint64
	persist  Persistence

	// saveMu orders writes to persist. A snapshot older than the last one
	// written is dropped.
	saveMu         sync.Mutex
	savedRevision  uint64
	savedBudgetRev uint64
}

// NewStore creates an empty store. persist may be nil for a purely
// in-memory store.
func NewStore(persist Persistence) *Store {
	return &Store{persist: persist}
}

// Load replaces the in-memory state with what the persistence layer holds,
// upgrading records written before transaction types existed.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}

	txs, err := s.persist.LoadTransactions(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("load transactions: %w", err)
	}
	budget, err := s.persist.LoadBudget(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("load budget: %w", err)
	}

	migrated := 0
	for i := range txs {
		var changed bool
		txs[i], changed = core.MigrateLegacy(txs[i])
		if changed {
			migrated++
		}
		if txs[i].ID == "" {
			txs[i].ID = uuid.NewString()
			migrated++
		}
	}

	s.mu.Lock()
	s.items = txs
	s.budget = budget
	s.revision++
	rev := s.revision
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	slog.InfoContext(ctx, "Ledger loaded", "transactions", len(txs), "migrated", migrated, "budget", int64(budget))
	if migrated > 0 {
		s.save(ctx, rev, snapshot)
	}
	return nil
}

// Add validates every record and prepends the batch. Either the whole batch
// is stored or none of it.
func (s *Store) Add(ctx context.Context, batch []core.Transaction) error {
	for i, t := range batch {
		if t.ID == "" {
			return &core.ValidationError{Index: i, Field: "id", Reason: "is required"}
		}
		if err := t.Validate(); err != nil {
			return &core.ValidationError{Index: i, Reason: err.Error()}
		}
	}

	s.mu.Lock()
	items := make([]core.Transaction, 0, len(batch)+len(s.items))
	items = append(items, batch...)
	items = append(items, s.items...)
	s.items = items
	s.revision++
	rev := s.revision
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, rev, snapshot)
	return nil
}

// Remove deletes the record with the given id. A missing id is not an
// error; the return value says whether anything was removed.
func (s *Store) Remove(ctx context.Context, id string) bool {
	_, ok := s.Take(ctx, id)
	return ok
}

// Take deletes the record with the given id and returns it.
func (s *Store) Take(ctx context.Context, id string) (core.Transaction, bool) {
	s.mu.Lock()
	idx := -1
	for i, t := range s.items {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return core.Transaction{}, false
	}
	removed := s.items[idx]
	items := make([]core.Transaction, 0, len(s.items)-1)
	items = append(items, s.items[:idx]...)
	items = append(items, s.items[idx+1:]...)
	s.items = items
	s.revision++
	rev := s.revision
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, rev, snapshot)
	return removed, true
}

// Clear removes every record and returns what was removed.
func (s *Store) Clear(ctx context.Context) []core.Transaction {
	s.mu.Lock()
	removed := s.items
	s.items = nil
	s.revision++
	rev := s.revision
	s.mu.Unlock()

	s.save(ctx, rev, []core.Transaction{})
	return removed
}

// ReplaceAll swaps the whole collection for records, typically a restored
// backup. Only date, amount and type are checked; a single bad record
// rejects the whole set and leaves the store untouched.
func (s *Store) ReplaceAll(ctx context.Context, records []core.Transaction) (int, error) {
	_, n, err := s.Swap(ctx, records)
	return n, err
}

// Swap is ReplaceAll that also returns the records it replaced.
func (s *Store) Swap(ctx context.Context, records []core.Transaction) (previous []core.Transaction, n int, err error) {
	incoming := make([]core.Transaction, len(records))
	copy(incoming, records)

	seen := make(map[string]struct{}, len(incoming))
	for i := range incoming {
		t := &incoming[i]
		if t.Date.IsZero() {
			return nil, 0, &core.ValidationError{Index: i, Field: "date", Reason: "is required"}
		}
		if err := t.Amount.Validate(); err != nil {
			return nil, 0, &core.ValidationError{Index: i, Field: "amount", Reason: fmt.Sprintf("must be between 0 and %d", core.MaxAmount)}
		}
		if t.Type == "" {
			return nil, 0, &core.ValidationError{Index: i, Field: "type", Reason: "is required"}
		}
		if !t.Type.Valid() {
			return nil, 0, &core.ValidationError{Index: i, Field: "type", Reason: fmt.Sprintf("unknown value %q", t.Type)}
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if _, dup := seen[t.ID]; dup {
			return nil, 0, &core.ValidationError{Index: i, Field: "id", Reason: fmt.Sprintf("duplicate %q", t.ID)}
		}
		seen[t.ID] = struct{}{}
	}

	s.mu.Lock()
	previous = s.items
	s.items = incoming
	s.revision++
	rev := s.revision
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, rev, snapshot)
	return previous, len(incoming), nil
}

// Snapshot returns a copy of every record in display order.
func (s *Store) Snapshot() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Revision changes on every mutation, including budget updates.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Store) Budget() core.Money {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.budget
}

// SetBudget stores the monthly budget.
func (s *Store) SetBudget(ctx context.Context, budget core.Money) error {
	if err := budget.Validate(); err != nil {
		return &core.ValidationError{Index: -1, Field: "budget", Reason: fmt.Sprintf("must be between 0 and %d", core.MaxAmount)}
	}
	s.mu.Lock()
	s.budget = budget
	s.revision++
	rev := s.revision
	s.mu.Unlock()

	s.saveBudget(ctx, rev, budget)
	return nil
}

func (s *Store) snapshotLocked() []core.Transaction {
	out := make([]core.Transaction, len(s.items))
	copy(out, s.items)
	return out
}

// save is fire-and-forget: the in-memory state is authoritative and a failed
// write is only logged. rev is the revision txs was taken at; a snapshot
// that lost the race to a newer one is not written.
func (s *Store) save(ctx context.Context, rev uint64, txs []core.Transaction) {
	if s.persist == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if rev <= s.savedRevision {
		slog.DebugContext(ctx, "Skipping stale ledger save", "revision", rev, "saved", s.savedRevision)
		return
	}
	if err := s.persist.SaveTransactions(ctx, txs); err != nil {
		slog.ErrorContext(ctx, "Failed to persist transactions", "error", err, "count", len(txs))
		return
	}
	s.savedRevision = rev
}

func (s *Store) saveBudget(ctx context.Context, rev uint64, budget core.Money) {
	if s.persist == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if rev <= s.savedBudgetRev {
		return
	}
	if err := s.persist.SaveBudget(ctx, budget); err != nil {
		slog.ErrorContext(ctx, "Failed to persist budget", "error", err)
		return
	}
	s.savedBudgetRev = rev
}
