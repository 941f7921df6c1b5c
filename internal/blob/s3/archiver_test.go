package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

type fakeWriter struct {
	path string
	body []byte
	err  error
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	w.path = path
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.body = b
	return nil
}

type fakeArchiveLedger struct {
	records []domain.TransactionRecord
	deleted *time.Time
}

func (l *fakeArchiveLedger) AddTransaction(context.Context, domain.TransactionRecord) error {
	return nil
}

func (l *fakeArchiveLedger) AddTransactionBatch(context.Context, []domain.TransactionRecord) error {
	return nil
}

func (l *fakeArchiveLedger) ListBefore(_ context.Context, before time.Time) ([]domain.TransactionRecord, error) {
	var out []domain.TransactionRecord
	for _, r := range l.records {
		if r.CreatedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *fakeArchiveLedger) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	l.deleted = &before
	var kept []domain.TransactionRecord
	var n int64
	for _, r := range l.records {
		if r.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	l.records = kept
	return n, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveBefore_UploadsThenPrunes(t *testing.T) {
	cutoff := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	ledger := &fakeArchiveLedger{records: []domain.TransactionRecord{
		{ID: "a", ChainID: "alpha-1", TxHash: "h1", Type: domain.TxTypeBridge, CreatedAt: cutoff.Add(-48 * time.Hour)},
		{ID: "b", ChainID: "alpha-1", TxHash: "h2", Type: domain.TxTypeSwap, CreatedAt: cutoff.Add(-24 * time.Hour)},
		{ID: "c", ChainID: "alpha-1", TxHash: "h3", Type: domain.TxTypeSwap, CreatedAt: cutoff.Add(time.Hour)},
	}}
	writer := &fakeWriter{}

	arch := NewArchiver(writer, ledger, "archive", 90, discardLogger())
	moved, err := arch.ArchiveBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(2), moved)

	require.Equal(t, "archive/transactions/2026-09.jsonl", writer.path)
	lines := strings.Split(strings.TrimSpace(string(writer.body)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"h1"`)

	// Only the recent record survives in the primary store.
	require.Len(t, ledger.records, 1)
	require.Equal(t, "c", ledger.records[0].ID)
}

func TestArchiveBefore_NothingToArchive(t *testing.T) {
	ledger := &fakeArchiveLedger{}
	writer := &fakeWriter{}

	arch := NewArchiver(writer, ledger, "", 90, discardLogger())
	moved, err := arch.ArchiveBefore(context.Background(), time.Now())
	require.NoError(t, err)
	require.Zero(t, moved)
	require.Empty(t, writer.path)
	require.Nil(t, ledger.deleted)
}

func TestArchiveBefore_UploadFailureLeavesStore(t *testing.T) {
	cutoff := time.Now().UTC()
	ledger := &fakeArchiveLedger{records: []domain.TransactionRecord{
		{ID: "a", CreatedAt: cutoff.Add(-time.Hour)},
	}}
	writer := &fakeWriter{err: bytes.ErrTooLarge}

	arch := NewArchiver(writer, ledger, "archive", 90, discardLogger())
	_, err := arch.ArchiveBefore(context.Background(), cutoff)
	require.Error(t, err)
	require.Len(t, ledger.records, 1)
	require.Nil(t, ledger.deleted)
}
