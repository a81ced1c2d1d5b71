// Package worker mirrors ledger changes announced on the message broker
// into an export sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"chitieu/internal/amqp"
	"chitieu/internal/core"
	"chitieu/internal/report"
	"chitieu/internal/services"
	"chitieu/internal/sheets"
)

type month struct {
	year, month int
}

// SheetsMirror rewrites the month reports touched by a ledger event. The
// ledger it reads from is reloaded from persistence before every sync, so it
// sees what the server process wrote.
type SheetsMirror struct {
	ledger *services.LedgerService
	sink   sheets.ReportWriter
}

func NewSheetsMirror(ledger *services.LedgerService, sink sheets.ReportWriter) *SheetsMirror {
	return &SheetsMirror{ledger: ledger, sink: sink}
}

// HandleEvent processes one ledger event. Budget changes do not appear in
// reports and are skipped.
func (w *SheetsMirror) HandleEvent(ctx context.Context, e *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"kind", string(e.Kind),
		"revision", e.Revision,
		"count", e.Count)

	if e.Kind == amqp.BudgetUpdated {
		return nil
	}
	if err := w.ledger.Store().Load(ctx); err != nil {
		return fmt.Errorf("reload ledger: %w", err)
	}

	changed := eventMonths(e)
	var failed error
	for _, m := range w.affectedMonths(e, changed) {
		if err := w.syncMonth(ctx, m, changed[m]); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror month",
				"year", m.year, "month", m.month, "error", err)
			failed = errors.Join(failed, err)
		}
	}
	return failed
}

// StartupSync mirrors the current month once, covering events missed while
// the worker was down.
func (w *SheetsMirror) StartupSync(ctx context.Context) error {
	if err := w.ledger.Store().Load(ctx); err != nil {
		return fmt.Errorf("reload ledger: %w", err)
	}
	today := w.ledger.Today()
	return w.syncMonth(ctx, month{today.Year(), today.Month()}, false)
}

// eventMonths parses the months an event says it changed. Malformed keys
// are ignored.
func eventMonths(e *amqp.LedgerEvent) map[month]bool {
	out := make(map[month]bool, len(e.Months))
	for _, key := range e.Months {
		var m month
		if _, err := fmt.Sscanf(key, "%04d-%02d", &m.year, &m.month); err != nil || m.month < 1 || m.month > 12 {
			slog.Warn("Ignoring malformed event month", "month", key)
			continue
		}
		out[m] = true
	}
	return out
}

// affectedMonths lists the current month, the months the event names and,
// for events from older producers without months, the months of the added
// records.
func (w *SheetsMirror) affectedMonths(e *amqp.LedgerEvent, changed map[month]bool) []month {
	today := w.ledger.Today()
	seen := map[month]bool{{today.Year(), today.Month()}: true}
	for m := range changed {
		seen[m] = true
	}

	if e.Kind == amqp.TransactionsAdded && len(e.IDs) > 0 && len(changed) == 0 {
		wanted := make(map[string]bool, len(e.IDs))
		for _, id := range e.IDs {
			wanted[id] = true
		}
		for _, t := range w.ledger.Store().Snapshot() {
			if wanted[t.ID] {
				seen[month{t.Date.Year(), t.Date.Month()}] = true
			}
		}
	}

	out := make([]month, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].year != out[j].year {
			return out[i].year < out[j].year
		}
		return out[i].month < out[j].month
	})
	return out
}

// syncMonth rewrites the report of m. A month the event changed is written
// even when empty so that its stale rows are replaced; any other empty month
// is left alone.
func (w *SheetsMirror) syncMonth(ctx context.Context, m month, changed bool) error {
	p := report.MonthPeriod(m.year, m.month)
	var (
		ref string
		err error
	)
	if changed {
		ref, err = w.ledger.MirrorTo(ctx, p, w.sink)
	} else {
		ref, err = w.ledger.ExportTo(ctx, p, w.sink)
	}
	if errors.Is(err, core.ErrEmptyResult) {
		slog.InfoContext(ctx, "Month is empty, nothing to mirror", "year", m.year, "month", m.month)
		return nil
	}
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Month mirrored", "year", m.year, "month", m.month, "ref", ref)
	return nil
}
