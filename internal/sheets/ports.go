// Package sheets defines where rendered reports are delivered.
package sheets

import (
	"context"
	"errors"

	"chitieu/internal/report"
)

// ErrNotConfigured is returned when a requested sink has no backing target.
var ErrNotConfigured = errors.New("report sink not configured")

// Ports for outbound adapters.
type (
	// ReportWriter stores one report and returns a reference to where it
	// landed (a path, a sheet URL, ...).
	ReportWriter interface {
		WriteReport(ctx context.Context, r *report.Report) (ref string, err error)
	}
)
