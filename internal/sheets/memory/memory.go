// Package memory keeps written reports in process, for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sync"

	"chitieu/internal/report"
	ports "chitieu/internal/sheets"
)

var _ ports.ReportWriter = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	reports []*report.Report
}

func New() *Store {
	return &Store{}
}

// WriteReport stores r and returns a synthetic reference.
func (s *Store) WriteReport(_ context.Context, r *report.Report) (string, error) {
	if r == nil {
		return "", fmt.Errorf("nil report")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return fmt.Sprintf("mem:%d:%s", len(s.reports), r.Name), nil
}

// Reports returns the written reports in write order.
func (s *Store) Reports() []*report.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*report.Report(nil), s.reports...)
}
