// Package csvfile writes reports as files into a directory.
package csvfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"chitieu/internal/report"
	ports "chitieu/internal/sheets"
)

var _ ports.ReportWriter = (*Writer)(nil)

type Writer struct {
	dir    string
	format report.Format
}

// New creates a writer for dir, creating it when missing.
func New(dir string, format report.Format) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("csvfile: %w: empty directory", ports.ErrNotConfigured)
	}
	if format == "" {
		format = report.FormatCSV
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &Writer{dir: dir, format: format}, nil
}

// WriteReport writes {name}.csv or {name}.xlsx and returns its path. The
// file is replaced atomically when it already exists.
func (w *Writer) WriteReport(ctx context.Context, r *report.Report) (string, error) {
	data, err := r.Encode(w.format)
	if err != nil {
		return "", err
	}

	path := filepath.Join(w.dir, r.Name+w.format.Extension())
	tmp, err := os.CreateTemp(w.dir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename export: %w", err)
	}

	slog.InfoContext(ctx, "Report written", "path", path, "rows", len(r.Rows), "bytes", len(data))
	return path, nil
}
