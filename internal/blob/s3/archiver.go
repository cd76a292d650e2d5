package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// TradeArchiveStore is the slice of the trade store the archiver needs.
// The Postgres TradeStore satisfies it implicitly.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// TradeArchiver rotates cold trades out of the primary store into monthly
// JSONL files in blob storage. Deletion of the archived rows is a
// separate, explicit step executed after the archive has been verified.
type TradeArchiver struct {
	writer *Writer
	reader *Reader
	trades TradeArchiveStore
	logger *slog.Logger
}

// NewTradeArchiver creates a TradeArchiver.
func NewTradeArchiver(writer *Writer, reader *Reader, trades TradeArchiveStore, logger *slog.Logger) *TradeArchiver {
	return &TradeArchiver{
		writer: writer,
		reader: reader,
		trades: trades,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// archivePath builds the blob key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// ArchiveTrades queries all trades executed before the cutoff, serializes
// them to JSONL, and uploads the file to archive/trades/YYYY-MM.jsonl. It
// is idempotent per month: if the month's file already exists, nothing is
// uploaded and the count is zero.
func (a *TradeArchiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	path := archivePath("trades", before)
	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades check %s: %w", path, err)
	}
	if exists {
		a.logger.Info("archive already present, skipping", slog.String("path", path))
		return 0, nil
	}

	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))
	a.logger.Info("archived trades",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.String("before", before.Format(time.RFC3339)))
	return count, nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
