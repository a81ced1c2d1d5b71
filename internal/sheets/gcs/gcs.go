// Package gcs uploads reports to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"chitieu/internal/report"
	ports "chitieu/internal/sheets"
)

var _ ports.ReportWriter = (*Writer)(nil)

// Config selects the bucket and the object prefix reports land under.
// Credentials come from Application Default Credentials.
type Config struct {
	Bucket string
	Prefix string
	Format report.Format
}

// putFunc stores data as object name in the bucket.
type putFunc func(ctx context.Context, name, contentType string, data []byte) error

type Writer struct {
	bucket string
	prefix string
	format report.Format
	put    putFunc
	close  func() error
}

func New(ctx context.Context, cfg Config) (*Writer, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("gcs: %w: missing bucket", ports.ErrNotConfigured)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	bkt := client.Bucket(bucket)

	put := func(ctx context.Context, name, contentType string, data []byte) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		w := bkt.Object(name).NewWriter(ctx)
		w.ContentType = contentType
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return fmt.Errorf("write object %s: %w", name, err)
		}
		// Close finalizes the upload.
		if err := w.Close(); err != nil {
			return fmt.Errorf("finalize upload %s: %w", name, err)
		}
		return nil
	}
	wr := newWriter(bucket, cfg.Prefix, cfg.Format, put)
	wr.close = client.Close
	return wr, nil
}

func newWriter(bucket, prefix string, format report.Format, put putFunc) *Writer {
	if format == "" {
		format = report.FormatCSV
	}
	return &Writer{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		format: format,
		put:    put,
	}
}

// WriteReport uploads {prefix}/{name}.{ext}, replacing any previous object,
// and returns its gs:// URI.
func (w *Writer) WriteReport(ctx context.Context, r *report.Report) (string, error) {
	if r == nil {
		return "", fmt.Errorf("nil report")
	}
	data, err := r.Encode(w.format)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	name := r.Name + w.format.Extension()
	if w.prefix != "" {
		name = path.Join(w.prefix, name)
	}
	if err := w.put(ctx, name, w.format.ContentType(), data); err != nil {
		return "", err
	}

	uri := "gs://" + w.bucket + "/" + name
	slog.InfoContext(ctx, "Report uploaded", "uri", uri, "bytes", len(data))
	return uri, nil
}

// Close releases the storage client.
func (w *Writer) Close() error {
	if w.close == nil {
		return nil
	}
	return w.close()
}
