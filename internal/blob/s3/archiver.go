package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

// BlobWriter uploads one object. *Writer satisfies it.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves cold ledger records out of the primary store: records older
// than the retention window are serialized to JSONL, uploaded under
// <prefix>/transactions/YYYY-MM.jsonl, and only then deleted from the store.
// A failed upload leaves the primary store untouched.
type Archiver struct {
	writer    BlobWriter
	ledger    domain.ArchivableLedger
	prefix    string
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver retaining retentionDays of records in the
// primary store.
func NewArchiver(writer BlobWriter, ledger domain.ArchivableLedger, prefix string, retentionDays int, logger *slog.Logger) *Archiver {
	if retentionDays < 1 {
		retentionDays = 90
	}
	return &Archiver{
		writer:    writer,
		ledger:    ledger,
		prefix:    strings.Trim(prefix, "/"),
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger.With(slog.String("component", "ledger_archiver")),
	}
}

// Run archives everything older than the retention window, measured from now.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	return a.ArchiveBefore(ctx, time.Now().UTC().Add(-a.retention))
}

// ArchiveBefore uploads and prunes all records created strictly before the
// cutoff, returning the number of records moved.
func (a *Archiver) ArchiveBefore(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.ledger.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := a.archivePath(before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	deleted, err := a.ledger.DeleteBefore(ctx, before)
	if err != nil {
		// Upload succeeded, so nothing is lost; the next run re-uploads the
		// same records and retries the prune.
		return 0, fmt.Errorf("s3blob: archive prune: %w", err)
	}

	a.logger.Info("archived ledger records",
		slog.String("path", path),
		slog.Int("uploaded", len(recs)),
		slog.Int64("pruned", deleted),
		slog.Time("before", before))
	return deleted, nil
}

// archivePath partitions archive files by the cutoff's year-month, e.g.
// archive/transactions/2026-09.jsonl.
func (a *Archiver) archivePath(before time.Time) string {
	name := fmt.Sprintf("transactions/%s.jsonl", before.Format("2006-01"))
	if a.prefix == "" {
		return name
	}
	return a.prefix + "/" + name
}

// marshalJSONL serializes records as newline-delimited JSON.
func marshalJSONL(recs []domain.TransactionRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
