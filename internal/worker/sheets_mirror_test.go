package worker

import (
	"context"
	"testing"

	"chitieu/internal/amqp"
	"chitieu/internal/core"
	"chitieu/internal/ledger"
	"chitieu/internal/services"
	"chitieu/internal/sheets/memory"
	"chitieu/internal/storage/jsonfile"
)

var testToday = core.NewDate(2024, 5, 15)

func tx(id string, date core.Date, amount core.Money) core.Transaction {
	return core.Transaction{
		ID:          id,
		Date:        date,
		Amount:      amount,
		Type:        core.Expense,
		Category:    core.CategoryFood,
		Description: "pho",
	}
}

// setup returns a writer store and a mirror sharing one data directory.
func setup(t *testing.T) (*ledger.Store, *SheetsMirror, *memory.Store) {
	t.Helper()
	dir := t.TempDir()

	writerFiles, err := jsonfile.New(dir)
	if err != nil {
		t.Fatalf("jsonfile.New: %v", err)
	}
	readerFiles, err := jsonfile.New(dir)
	if err != nil {
		t.Fatalf("jsonfile.New: %v", err)
	}

	writer := ledger.NewStore(writerFiles)
	svc := services.NewLedgerService(ledger.NewStore(readerFiles), services.Options{
		Today: func() core.Date { return testToday },
	})
	sink := memory.New()
	return writer, NewSheetsMirror(svc, sink), sink
}

func reportNames(s *memory.Store) []string {
	var names []string
	for _, r := range s.Reports() {
		names = append(names, r.Name)
	}
	return names
}

func TestSheetsMirror_AddedMirrorsTouchedMonths(t *testing.T) {
	ctx := context.Background()
	writer, mirror, sink := setup(t)

	batch := []core.Transaction{
		tx("a", core.NewDate(2024, 3, 10), 10000),
		tx("b", core.NewDate(2024, 5, 2), 20000),
	}
	if err := writer.Add(ctx, batch); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := mirror.HandleEvent(ctx, amqp.NewLedgerEvent(amqp.TransactionsAdded, writer.Revision(), "a", "b")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	got := reportNames(sink)
	want := []string{"Report_month_3_2024", "Report_month_5_2024"}
	if len(got) != len(want) {
		t.Fatalf("reports = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reports = %v, want %v", got, want)
		}
	}
}

func TestSheetsMirror_DeleteRefreshesCurrentMonth(t *testing.T) {
	ctx := context.Background()
	writer, mirror, sink := setup(t)

	if err := writer.Add(ctx, []core.Transaction{
		tx("a", core.NewDate(2024, 5, 1), 10000),
		tx("b", core.NewDate(2024, 5, 2), 20000),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	writer.Remove(ctx, "a")

	if err := mirror.HandleEvent(ctx, amqp.NewLedgerEvent(amqp.TransactionDeleted, writer.Revision(), "a")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	reports := sink.Reports()
	if len(reports) != 1 || len(reports[0].Rows) != 1 || reports[0].Rows[0].ID != "b" {
		t.Fatalf("unexpected mirror after delete: %+v", reports)
	}
}

func TestSheetsMirror_EmptyMonthAndBudget(t *testing.T) {
	ctx := context.Background()
	writer, mirror, sink := setup(t)

	writer.Clear(ctx)
	if err := mirror.HandleEvent(ctx, amqp.NewLedgerEvent(amqp.TransactionsCleared, writer.Revision())); err != nil {
		t.Fatalf("empty month should not fail: %v", err)
	}
	if err := mirror.HandleEvent(ctx, amqp.NewLedgerEvent(amqp.BudgetUpdated, writer.Revision()).WithBudget(5)); err != nil {
		t.Fatalf("budget event: %v", err)
	}
	if n := len(sink.Reports()); n != 0 {
		t.Fatalf("expected no reports, got %d", n)
	}
}

func TestSheetsMirror_StartupSync(t *testing.T) {
	ctx := context.Background()
	writer, mirror, sink := setup(t)

	if err := writer.Add(ctx, []core.Transaction{tx("a", core.NewDate(2024, 5, 3), 5000)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := mirror.StartupSync(ctx); err != nil {
		t.Fatalf("StartupSync: %v", err)
	}
	if got := reportNames(sink); len(got) != 1 || got[0] != "Report_month_5_2024" {
		t.Fatalf("reports = %v", got)
	}
}

func TestSheetsMirror_EmptiedMonthsAreOverwritten(t *testing.T) {
	march := core.NewDate(2024, 3, 10)
	may := core.NewDate(2024, 5, 2)

	tests := []struct {
		name   string
		mutate func(t *testing.T, ctx context.Context, s *ledger.Store) *amqp.LedgerEvent
		want   map[string]int
	}{
		{
			name: "delete last record of an old month",
			mutate: func(t *testing.T, ctx context.Context, s *ledger.Store) *amqp.LedgerEvent {
				removed, _ := s.Take(ctx, "a")
				return amqp.NewLedgerEvent(amqp.TransactionDeleted, s.Revision(), "a").WithMonths(removed.Date.MonthKey())
			},
			want: map[string]int{"Report_month_3_2024": 0, "Report_month_5_2024": 1},
		},
		{
			name: "clear",
			mutate: func(t *testing.T, ctx context.Context, s *ledger.Store) *amqp.LedgerEvent {
				removed := s.Clear(ctx)
				months := make([]string, len(removed))
				for i, r := range removed {
					months[i] = r.Date.MonthKey()
				}
				return amqp.NewLedgerEvent(amqp.TransactionsCleared, s.Revision()).WithMonths(months...)
			},
			want: map[string]int{"Report_month_3_2024": 0, "Report_month_5_2024": 0},
		},
		{
			name: "replace moves records out of march",
			mutate: func(t *testing.T, ctx context.Context, s *ledger.Store) *amqp.LedgerEvent {
				if _, _, err := s.Swap(ctx, []core.Transaction{tx("c", may, 7000)}); err != nil {
					t.Fatalf("Swap: %v", err)
				}
				return amqp.NewLedgerEvent(amqp.TransactionsReplaced, s.Revision()).WithMonths("2024-03", "2024-05")
			},
			want: map[string]int{"Report_month_3_2024": 0, "Report_month_5_2024": 1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			writer, mirror, sink := setup(t)
			if err := writer.Add(ctx, []core.Transaction{tx("a", march, 10000), tx("b", may, 20000)}); err != nil {
				t.Fatalf("Add: %v", err)
			}

			if err := mirror.HandleEvent(ctx, tc.mutate(t, ctx, writer)); err != nil {
				t.Fatalf("HandleEvent: %v", err)
			}

			reports := sink.Reports()
			if len(reports) != len(tc.want) {
				t.Fatalf("reports = %v, want %v", reportNames(sink), tc.want)
			}
			for _, r := range reports {
				rows, ok := tc.want[r.Name]
				if !ok || len(r.Rows) != rows {
					t.Fatalf("report %s has %d rows, want %v", r.Name, len(r.Rows), tc.want)
				}
				if rows == 0 && r.Total.Expense != 0 {
					t.Fatalf("empty report %s has totals %+v", r.Name, r.Total)
				}
			}
		})
	}
}

func TestSheetsMirror_IgnoresMalformedMonths(t *testing.T) {
	ctx := context.Background()
	_, mirror, sink := setup(t)

	ev := amqp.NewLedgerEvent(amqp.TransactionsCleared, 1)
	ev.Months = []string{"2024-13", "garbage"}
	if err := mirror.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if n := len(sink.Reports()); n != 0 {
		t.Fatalf("expected no reports, got %d", n)
	}
}
