package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chitieu/internal/core"
	"chitieu/internal/report"
	"chitieu/internal/sheets"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often the ledger revision is checked (default: 1m)
	PollInterval time.Duration

	// MaxRetries is how many failed writes of one revision are attempted
	// before waiting for the next change (default: 3)
	MaxRetries int
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: time.Minute,
		MaxRetries:   3,
	}
}

// SyncProcessor mirrors the current month report to a ReportWriter every
// time the ledger changes.
type SyncProcessor struct {
	ledger *LedgerService
	sink   sheets.ReportWriter
	config SyncProcessorConfig

	lastSynced uint64
	attempts   int
	// filled names the period whose last written report had rows.
	filled string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(ledger *LedgerService, sink sheets.ReportWriter, config SyncProcessorConfig) *SyncProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSyncProcessorConfig().PollInterval
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = DefaultSyncProcessorConfig().MaxRetries
	}
	return &SyncProcessor{
		ledger: ledger,
		sink:   sink,
		config: config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	if p.ledger == nil || p.sink == nil {
		p.mu.Unlock()
		return sheets.ErrNotConfigured
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started", "poll_interval", p.config.PollInterval)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.SyncOnce(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.SyncOnce(ctx)
		}
	}
}

// SyncOnce writes the current month report if the ledger changed since the
// last successful write. It reports whether a write happened.
func (p *SyncProcessor) SyncOnce(ctx context.Context) bool {
	rev := p.ledger.Store().Revision()
	if rev == p.lastSynced {
		return false
	}

	today := p.ledger.today()
	period := report.MonthPeriod(today.Year(), today.Month())
	ref, err := p.ledger.ExportTo(ctx, period, p.sink)
	if errors.Is(err, core.ErrEmptyResult) {
		if p.filled != period.FileName() {
			p.lastSynced, p.attempts = rev, 0
			return false
		}
		// The month emptied since the last write; blank the stale copy.
		ref, err = p.ledger.MirrorTo(ctx, period, p.sink)
		if err == nil {
			p.filled = ""
			slog.InfoContext(ctx, "Month report cleared", "ref", ref, "revision", rev)
			p.lastSynced, p.attempts = rev, 0
			return true
		}
	} else if err == nil {
		p.filled = period.FileName()
		slog.InfoContext(ctx, "Month report synced", "ref", ref, "revision", rev)
		p.lastSynced, p.attempts = rev, 0
		return true
	}

	p.attempts++
	if p.attempts >= p.config.MaxRetries {
		slog.ErrorContext(ctx, "Month report sync failed, giving up on revision",
			"revision", rev, "attempts", p.attempts, "error", err)
		p.lastSynced, p.attempts = rev, 0
		return false
	}
	slog.WarnContext(ctx, "Month report sync failed, will retry",
		"revision", rev, "attempt", p.attempts, "error", err)
	return false
}
