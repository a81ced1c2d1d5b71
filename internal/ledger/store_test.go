package ledger

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"

	"chitieu/internal/core"
)

type fakePersistence struct {
	mu        sync.Mutex
	txs       []core.Transaction
	budget    core.Money
	loadErr   error
	saveErr   error
	saves     int
	lastSaved []core.Transaction
}

func (f *fakePersistence) LoadTransactions(context.Context) ([]core.Transaction, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make([]core.Transaction, len(f.txs))
	copy(out, f.txs)
	return out, nil
}

func (f *fakePersistence) SaveTransactions(_ context.Context, txs []core.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.lastSaved = txs
	return nil
}

func (f *fakePersistence) LoadBudget(context.Context) (core.Money, error) {
	if f.loadErr != nil {
		return 0, f.loadErr
	}
	return f.budget, nil
}

func (f *fakePersistence) SaveBudget(_ context.Context, b core.Money) error {
	f.budget = b
	return f.saveErr
}

func tx(id string, day int, amount core.Money, typ core.Type, cat core.Category) core.Transaction {
	return core.Transaction{ID: id, Date: core.NewDate(2024, 5, day), Amount: amount, Type: typ, Category: cat, Description: id}
}

func TestStoreAddPrependsBatch(t *testing.T) {
	ctx := context.Background()
	p := &fakePersistence{}
	s := NewStore(p)

	if err := s.Add(ctx, []core.Transaction{tx("a", 1, 100, core.Expense, core.CategoryFood)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	batch := []core.Transaction{
		tx("b", 2, 200, core.Expense, core.CategoryShopping),
		tx("c", 2, 300, core.Income, core.CategoryIncome),
	}
	if err := s.Add(ctx, batch); err != nil {
		t.Fatalf("add: %v", err)
	}

	got := s.Snapshot()
	want := []string{"b", "c", "a"}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
	if p.saves != 2 || len(p.lastSaved) != 3 {
		t.Fatalf("expected 2 saves of 3 records, got %d saves / %d", p.saves, len(p.lastSaved))
	}
}

func TestStoreAddIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	bad := []core.Transaction{
		tx("a", 1, 100, core.Expense, core.CategoryFood),
		tx("b", 1, 100, core.Saving, core.CategoryFood),
	}
	err := s.Add(ctx, bad)
	var ve *core.ValidationError
	if !errors.As(err, &ve) || ve.Index != 1 {
		t.Fatalf("expected validation error at index 1, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("store must be unchanged, has %d records", s.Len())
	}
	if rev := s.Revision(); rev != 0 {
		t.Fatalf("revision must not move on rejected batch, got %d", rev)
	}
}

func TestStoreRemove(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	_ = s.Add(ctx, []core.Transaction{
		tx("a", 1, 100, core.Expense, core.CategoryFood),
		tx("b", 1, 200, core.Expense, core.CategoryFood),
	})

	if !s.Remove(ctx, "a") {
		t.Fatalf("expected a to be removed")
	}
	rev := s.Revision()
	if s.Remove(ctx, "missing") {
		t.Fatalf("removing an unknown id must report false")
	}
	if s.Revision() != rev {
		t.Fatalf("no-op remove must not bump revision")
	}
	if got := s.Snapshot(); len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("unexpected contents %+v", got)
	}
}

func TestStoreTakeAndSwapReturnRemoved(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	_ = s.Add(ctx, []core.Transaction{
		tx("a", 1, 100, core.Expense, core.CategoryFood),
		tx("b", 2, 200, core.Expense, core.CategoryFood),
	})

	got, ok := s.Take(ctx, "a")
	if !ok || got.ID != "a" || got.Amount != 100 {
		t.Fatalf("Take = %+v %v", got, ok)
	}
	if _, ok := s.Take(ctx, "a"); ok {
		t.Fatalf("second Take of the same id must report false")
	}

	previous, n, err := s.Swap(ctx, []core.Transaction{tx("c", 3, 300, core.Income, core.CategoryIncome)})
	if err != nil || n != 1 {
		t.Fatalf("Swap: n=%d err=%v", n, err)
	}
	if len(previous) != 1 || previous[0].ID != "b" {
		t.Fatalf("Swap should return the replaced records, got %+v", previous)
	}
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	_ = s.Add(ctx, []core.Transaction{tx("a", 1, 100, core.Expense, core.CategoryFood)})

	snap := s.Snapshot()
	snap[0].Amount = 999
	if s.Snapshot()[0].Amount != 100 {
		t.Fatalf("mutating a snapshot leaked into the store")
	}
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	p := &fakePersistence{}
	s := NewStore(p)
	_ = s.Add(ctx, []core.Transaction{tx("a", 1, 100, core.Expense, core.CategoryFood)})
	if removed := s.Clear(ctx); len(removed) != 1 || removed[0].ID != "a" {
		t.Fatalf("clear should return the removed records, got %+v", removed)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store")
	}
	if p.lastSaved == nil || len(p.lastSaved) != 0 {
		t.Fatalf("expected an empty list to be persisted, got %v", p.lastSaved)
	}
}

func TestStoreReplaceAll(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	_ = s.Add(ctx, []core.Transaction{tx("old", 1, 1, core.Expense, core.CategoryFood)})

	n, err := s.ReplaceAll(ctx, []core.Transaction{
		tx("x", 3, 500, core.Income, core.CategoryIncome),
		{Date: core.NewDate(2024, 5, 4), Amount: 10, Type: core.Expense, Category: "Du lịch"},
	})
	if err != nil || n != 2 {
		t.Fatalf("replace: n=%d err=%v", n, err)
	}
	got := s.Snapshot()
	if got[0].ID != "x" || got[1].ID == "" {
		t.Fatalf("unexpected ids %q %q", got[0].ID, got[1].ID)
	}
}

func TestStoreReplaceAllRejects(t *testing.T) {
	ctx := context.Background()
	good := tx("a", 1, 100, core.Expense, core.CategoryFood)
	cases := []struct {
		name  string
		rec   core.Transaction
		field string
	}{
		{"missing date", core.Transaction{ID: "z", Amount: 1, Type: core.Expense}, "date"},
		{"negative amount", core.Transaction{ID: "z", Date: core.NewDate(2024, 1, 1), Amount: -1, Type: core.Expense}, "amount"},
		{"missing type", core.Transaction{ID: "z", Date: core.NewDate(2024, 1, 1), Amount: 1}, "type"},
		{"bad type", core.Transaction{ID: "z", Date: core.NewDate(2024, 1, 1), Amount: 1, Type: "gift"}, "type"},
		{"duplicate id", good, "id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore(nil)
			_ = s.Add(ctx, []core.Transaction{tx("keep", 1, 1, core.Expense, core.CategoryFood)})
			_, err := s.ReplaceAll(ctx, []core.Transaction{good, tc.rec})
			var ve *core.ValidationError
			if !errors.As(err, &ve) || ve.Index != 1 || ve.Field != tc.field {
				t.Fatalf("expected validation error on %s at index 1, got %v", tc.field, err)
			}
			if got := s.Snapshot(); len(got) != 1 || got[0].ID != "keep" {
				t.Fatalf("store must be unchanged, got %+v", got)
			}
		})
	}
}

func TestStoreLoadMigratesLegacy(t *testing.T) {
	ctx := context.Background()
	p := &fakePersistence{
		txs: []core.Transaction{
			{ID: "1", Date: core.NewDate(2023, 1, 1), Amount: 100, Category: "Thu nhập"},
			{ID: "2", Date: core.NewDate(2023, 1, 2), Amount: 50, Category: core.CategoryFood},
		},
		budget: 5000000,
	}
	s := NewStore(p)
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := s.Snapshot()
	if got[0].Type != core.Income || got[1].Type != core.Expense {
		t.Fatalf("unexpected migrated types %q %q", got[0].Type, got[1].Type)
	}
	if s.Budget() != 5000000 {
		t.Fatalf("unexpected budget %d", s.Budget())
	}
	if p.saves != 1 {
		t.Fatalf("migrated data should be written back once, got %d saves", p.saves)
	}
}

func TestStoreLoadFirstRun(t *testing.T) {
	s := NewStore(&fakePersistence{loadErr: ErrNotFound})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("first run must not fail: %v", err)
	}
	if s.Len() != 0 || s.Budget() != 0 {
		t.Fatalf("expected empty state")
	}
}

func TestStoreLoadError(t *testing.T) {
	s := NewStore(&fakePersistence{loadErr: errors.New("disk gone")})
	if err := s.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
}

func TestStoreSaveFailureIsNotReturned(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&fakePersistence{saveErr: errors.New("read-only")})
	if err := s.Add(ctx, []core.Transaction{tx("a", 1, 100, core.Expense, core.CategoryFood)}); err != nil {
		t.Fatalf("save failures must not surface: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("in-memory state must keep the record")
	}
}

func TestStoreBudget(t *testing.T) {
	ctx := context.Background()
	p := &fakePersistence{}
	s := NewStore(p)
	if err := s.SetBudget(ctx, -1); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := s.SetBudget(ctx, 3000000); err != nil {
		t.Fatalf("set budget: %v", err)
	}
	if s.Budget() != 3000000 || p.budget != 3000000 {
		t.Fatalf("budget not stored: %d / %d", s.Budget(), p.budget)
	}
}

// gatedPersistence blocks the first SaveTransactions until release closes.
type gatedPersistence struct {
	fakePersistence
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedPersistence) SaveTransactions(ctx context.Context, txs []core.Transaction) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.fakePersistence.SaveTransactions(ctx, txs)
}

func TestStoreConcurrentSavesKeepNewestSnapshot(t *testing.T) {
	ctx := context.Background()
	p := &gatedPersistence{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewStore(p)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- s.Add(ctx, []core.Transaction{tx("a", 1, 100, core.Expense, core.CategoryFood)})
	}()
	<-p.entered

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- s.Add(ctx, []core.Transaction{tx("b", 2, 200, core.Expense, core.CategoryShopping)})
	}()
	for s.Len() != 2 {
		runtime.Gosched()
	}

	close(p.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := <-secondDone; err != nil {
		t.Fatalf("second add: %v", err)
	}

	p.mu.Lock()
	persisted := len(p.lastSaved)
	p.mu.Unlock()
	if persisted != 2 {
		t.Fatalf("persisted %d records, want 2", persisted)
	}

	restarted := NewStore(&fakePersistence{txs: p.lastSaved})
	if err := restarted.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if restarted.Len() != 2 {
		t.Fatalf("after reload got %d records, want 2", restarted.Len())
	}
}

func TestStoreSkipsStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	p := &fakePersistence{}
	s := NewStore(p)

	newer := []core.Transaction{tx("a", 1, 100, core.Expense, core.CategoryFood), tx("b", 2, 200, core.Expense, core.CategoryFood)}
	older := newer[:1]

	s.save(ctx, 2, newer)
	s.save(ctx, 1, older)

	if p.saves != 1 {
		t.Fatalf("saves = %d, want 1", p.saves)
	}
	if len(p.lastSaved) != 2 {
		t.Fatalf("persisted %d records, want the newer snapshot of 2", len(p.lastSaved))
	}

	s.saveBudget(ctx, 5, 900)
	s.saveBudget(ctx, 4, 100)
	if p.budget != 900 {
		t.Fatalf("budget = %d, want 900", p.budget)
	}
}
