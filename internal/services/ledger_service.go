package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"chitieu/internal/amqp"
	"chitieu/internal/cache"
	"chitieu/internal/classify"
	"chitieu/internal/core"
	"chitieu/internal/ledger"
	applog "chitieu/internal/log"
	"chitieu/internal/report"
	"chitieu/internal/sheets"

	"github.com/google/uuid"
)

// EventPublisher receives ledger change notifications. *amqp.Client
// implements it.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.LedgerEvent) error
}

// Options configures a LedgerService. Zero values are usable: no
// classifier, no events, a small cache and a concurrency of 4.
type Options struct {
	Classifier  classify.Classifier
	Publisher   EventPublisher
	Concurrency int
	Cache       cache.Cache[any]
	Today       func() core.Date
}

// LedgerService orchestrates the store, classification, views and export.
type LedgerService struct {
	store       *ledger.Store
	classifier  classify.Classifier
	publisher   EventPublisher
	concurrency int
	views       cache.Cache[any]
	today       func() core.Date
}

func NewLedgerService(store *ledger.Store, opts Options) *LedgerService {
	s := &LedgerService{
		store:       store,
		classifier:  opts.Classifier,
		publisher:   opts.Publisher,
		concurrency: opts.Concurrency,
		views:       opts.Cache,
		today:       opts.Today,
	}
	if s.concurrency < 1 {
		s.concurrency = 4
	}
	if s.views == nil {
		s.views = cache.NewLRUCache[any](128, 10*time.Minute)
	}
	if s.today == nil {
		s.today = core.Today
	}
	return s
}

// Today returns the service's notion of the current date.
func (s *LedgerService) Today() core.Date {
	return s.today()
}

// Store exposes the underlying ledger store.
func (s *LedgerService) Store() *ledger.Store {
	return s.store
}

// Submit classifies every comma separated fragment of text and commits the
// resulting batch dated on date. Results keep the fragment order whatever
// order the classifications finish in. If any fragment fails nothing is
// stored and the returned error is a *core.ClassificationError.
func (s *LedgerService) Submit(ctx context.Context, text string, date core.Date) ([]core.Transaction, error) {
	if s.classifier == nil {
		return nil, classify.ErrUnavailable
	}
	fragments := classify.SplitFragments(text)
	if len(fragments) == 0 {
		return nil, &core.ValidationError{Index: -1, Field: "text", Reason: "no fragments to classify"}
	}
	if date.IsZero() {
		date = s.today()
	}

	drafts := make([]core.Draft, len(fragments))
	errs := make([]error, len(fragments))

	// No derived context: a failing fragment does not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, fragment := range fragments {
		g.Go(func() error {
			d, err := s.classifier.Classify(ctx, fragment)
			if err != nil {
				errs[i] = err
				return err
			}
			drafts[i] = d
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		slog.WarnContext(ctx, "Classification failed, batch discarded",
			"fragment_index", i, "fragments", len(fragments), "error", err)
		var cerr *core.ClassificationError
		if errors.As(err, &cerr) {
			return nil, cerr
		}
		return nil, &core.ClassificationError{Fragment: fragments[i], Err: err}
	}

	batch := make([]core.Transaction, len(drafts))
	for i, d := range drafts {
		batch[i] = core.Transaction{
			ID:           uuid.NewString(),
			Date:         date,
			Amount:       d.Amount,
			Type:         d.Type,
			Category:     d.Category,
			Description:  d.Description,
			OriginalText: fragments[i],
		}
	}
	if err := s.store.Add(ctx, batch); err != nil {
		return nil, err
	}

	ids := make([]string, len(batch))
	for i, t := range batch {
		ids[i] = t.ID
	}
	slog.InfoContext(ctx, "Transactions added", "count", len(batch), "date", date.Key())
	logMutation(ctx, applog.OpSubmit, len(batch), s.store.Revision())
	s.publish(ctx, amqp.NewLedgerEvent(amqp.TransactionsAdded, s.store.Revision(), ids...).WithMonths(monthsOf(batch)...))
	return batch, nil
}

// Delete removes one transaction. A missing id reports false.
func (s *LedgerService) Delete(ctx context.Context, id string) bool {
	removed, ok := s.store.Take(ctx, id)
	if !ok {
		return false
	}
	slog.DebugContext(ctx, "Transaction deleted", "id", id)
	logMutation(ctx, applog.OpDelete, 1, s.store.Revision())
	s.publish(ctx, amqp.NewLedgerEvent(amqp.TransactionDeleted, s.store.Revision(), id).WithMonths(removed.Date.MonthKey()))
	return true
}

// Clear removes every transaction.
func (s *LedgerService) Clear(ctx context.Context) {
	removed := s.store.Clear(ctx)
	logMutation(ctx, applog.OpClear, len(removed), s.store.Revision())
	ev := amqp.NewLedgerEvent(amqp.TransactionsCleared, s.store.Revision()).WithMonths(monthsOf(removed)...)
	ev.Count = len(removed)
	s.publish(ctx, ev)
}

// Import replaces the whole ledger with a JSON backup and returns how many
// records it now holds. Invalid input leaves the ledger untouched.
func (s *LedgerService) Import(ctx context.Context, data []byte) (int, error) {
	records, err := ledger.DecodeImport(data)
	if err != nil {
		return 0, err
	}
	previous, n, err := s.store.Swap(ctx, records)
	if err != nil {
		return 0, err
	}
	logMutation(ctx, applog.OpImport, n, s.store.Revision())
	months := append(monthsOf(previous), monthsOf(records)...)
	ev := amqp.NewLedgerEvent(amqp.TransactionsReplaced, s.store.Revision()).WithMonths(months...)
	ev.Count = n
	s.publish(ctx, ev)
	return n, nil
}

// Backup returns the suggested file name and the JSON backup of the ledger.
func (s *LedgerService) Backup() (string, []byte, error) {
	data, err := ledger.EncodeBackup(s.store.Snapshot())
	if err != nil {
		return "", nil, fmt.Errorf("encode backup: %w", err)
	}
	return ledger.BackupFileName(s.today()), data, nil
}

func (s *LedgerService) Budget() core.Money {
	return s.store.Budget()
}

func (s *LedgerService) SetBudget(ctx context.Context, budget core.Money) error {
	if err := s.store.SetBudget(ctx, budget); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Budget updated", "budget", int64(budget))
	logMutation(ctx, applog.OpBudget, 0, s.store.Revision())
	s.publish(ctx, amqp.NewLedgerEvent(amqp.BudgetUpdated, s.store.Revision()).WithBudget(int64(budget)))
	return nil
}

// Summary computes the dashboard for [from, to]. Zero bounds default to the
// current calendar month.
func (s *LedgerService) Summary(from, to core.Date) core.Summary {
	today := s.today()
	from, to = s.defaultRange(from, to)
	key := fmt.Sprintf("summary|%s|%s|%s", from.Key(), to.Key(), today.Key())
	return view(s, key, func(txs []core.Transaction) core.Summary {
		return core.ComputeSummary(txs, from, to, s.store.Budget(), today)
	})
}

// Calendar returns the per day totals of one month.
func (s *LedgerService) Calendar(year, month int) []core.CalendarDay {
	key := fmt.Sprintf("calendar|%04d-%02d", year, month)
	return view(s, key, func(txs []core.Transaction) []core.CalendarDay {
		return core.CalendarMonth(txs, year, month)
	})
}

// Day returns the totals of one calendar day.
func (s *LedgerService) Day(year, month, day int) core.DayTotals {
	key := fmt.Sprintf("day|%04d-%02d-%02d", year, month, day)
	return view(s, key, func(txs []core.Transaction) core.DayTotals {
		return core.DailyRollup(txs, year, month, day)
	})
}

// MonthlyReport lists per month totals, newest month first.
func (s *LedgerService) MonthlyReport() []core.MonthTotals {
	return view(s, "monthly", core.MonthlyReport)
}

// Timeline buckets [from, to] by day or month. Zero bounds default to the
// current calendar month.
func (s *LedgerService) Timeline(from, to core.Date) core.Timeline {
	from, to = s.defaultRange(from, to)
	key := fmt.Sprintf("timeline|%s|%s", from.Key(), to.Key())
	return view(s, key, func(txs []core.Transaction) core.Timeline {
		return core.BuildTimeline(core.FilterRange(txs, from, to))
	})
}

// Categories returns expense totals per category for [from, to].
func (s *LedgerService) Categories(from, to core.Date) []core.CategoryAmount {
	from, to = s.defaultRange(from, to)
	key := fmt.Sprintf("categories|%s|%s", from.Key(), to.Key())
	return view(s, key, func(txs []core.Transaction) []core.CategoryAmount {
		return core.CategoryBreakdown(core.FilterRange(txs, from, to))
	})
}

// History lists one month's transactions, newest first.
func (s *LedgerService) History(year, month int) []core.Transaction {
	key := fmt.Sprintf("history|%04d-%02d", year, month)
	return view(s, key, func(txs []core.Transaction) []core.Transaction {
		return core.History(txs, year, month)
	})
}

// Exported is an encoded report ready to download.
type Exported struct {
	FileName    string
	ContentType string
	Data        []byte
	Rows        int
}

// Export builds the report for p and encodes it. An empty period fails with
// core.ErrEmptyResult.
func (s *LedgerService) Export(ctx context.Context, p report.Period, format report.Format) (*Exported, error) {
	r, err := report.BuildPeriod(s.store.Snapshot(), p)
	if err != nil {
		return nil, err
	}
	data, err := r.Encode(format)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	slog.InfoContext(ctx, "Report exported", "name", r.Name, "format", string(format), "rows", len(r.Rows))
	return &Exported{
		FileName:    r.Name + format.Extension(),
		ContentType: format.ContentType(),
		Data:        data,
		Rows:        len(r.Rows),
	}, nil
}

// ExportTo delivers the report for p to sink and returns the sink reference.
func (s *LedgerService) ExportTo(ctx context.Context, p report.Period, sink sheets.ReportWriter) (string, error) {
	if sink == nil {
		return "", sheets.ErrNotConfigured
	}
	r, err := report.BuildPeriod(s.store.Snapshot(), p)
	if err != nil {
		return "", err
	}
	ref, err := sink.WriteReport(ctx, r)
	if err != nil {
		return "", fmt.Errorf("write report %s: %w", r.Name, err)
	}
	slog.InfoContext(ctx, "Report delivered", "name", r.Name, "ref", ref, "rows", len(r.Rows))
	return ref, nil
}

// MirrorTo is ExportTo for sinks that keep one copy per period: an empty
// period overwrites the copy with an empty report instead of failing.
func (s *LedgerService) MirrorTo(ctx context.Context, p report.Period, sink sheets.ReportWriter) (string, error) {
	ref, err := s.ExportTo(ctx, p, sink)
	if !errors.Is(err, core.ErrEmptyResult) {
		return ref, err
	}
	r := report.Empty(p)
	ref, err = sink.WriteReport(ctx, r)
	if err != nil {
		return "", fmt.Errorf("write report %s: %w", r.Name, err)
	}
	slog.InfoContext(ctx, "Empty report delivered", "name", r.Name, "ref", ref)
	return ref, nil
}

func monthsOf(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.Date.MonthKey()
	}
	return out
}

// defaultRange fills zero bounds with the first and last day of the
// current month.
func (s *LedgerService) defaultRange(from, to core.Date) (core.Date, core.Date) {
	today := s.today()
	if from.IsZero() {
		from = core.NewDate(today.Year(), today.Month(), 1)
	}
	if to.IsZero() {
		to = core.NewDate(today.Year(), today.Month()+1, 0)
	}
	return from, to
}

// view memoizes compute under key for the current store revision.
func view[T any](s *LedgerService, key string, compute func([]core.Transaction) T) T {
	rev := s.store.Revision()
	full := fmt.Sprintf("r%d|%s", rev, key)
	v, _ := cache.GetOrLoad(s.views, full, func() (any, error) {
		return compute(s.store.Snapshot()), nil
	})
	out, ok := v.(T)
	if !ok {
		out = compute(s.store.Snapshot())
	}
	return out
}

// publish is best effort: no publisher skips, a failure is only logged.
func (s *LedgerService) publish(ctx context.Context, event *amqp.LedgerEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher, skipping", "kind", string(event.Kind))
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event", "kind", string(event.Kind), "error", err)
	}
}

// logMutation logs through the request scoped logger when there is one.
func logMutation(ctx context.Context, op string, count int, revision uint64) {
	applog.NewStructuredLogger(applog.FromContext(ctx)).LogMutation(ctx, op, count, revision)
}
