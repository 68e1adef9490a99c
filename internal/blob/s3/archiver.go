package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/arbalest/skinsniper/internal/domain"
)

// archivePageSize bounds one archive cycle. Older rows left behind are picked
// up by the next cycle once the archived ones have been pruned.
const archivePageSize = 5000

// ArchiveWriter is the upload surface the archiver needs. Implemented by
// Writer.
type ArchiveWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver uploads aged purchase audit records to object storage as JSONL.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here. That is a separate, explicit step to be executed after
// the archive has been verified.
type Archiver struct {
	writer    ArchiveWriter
	purchases domain.PurchaseStore
}

// NewArchiver creates an Archiver over the given writer and purchase store.
func NewArchiver(writer ArchiveWriter, purchases domain.PurchaseStore) *Archiver {
	return &Archiver{writer: writer, purchases: purchases}
}

// ArchivePurchases queries purchases created before the cutoff, serializes
// them to JSONL, and uploads the batch to archive/purchases/YYYY-MM.jsonl.
// It returns the count of archived records.
func (a *Archiver) ArchivePurchases(ctx context.Context, before time.Time) (int64, error) {
	batch, err := a.purchases.ListBefore(ctx, before, archivePageSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive purchases query: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(batch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive purchases marshal: %w", err)
	}

	path := archivePath("purchases", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive purchases upload: %w", err)
	}

	return int64(len(batch)), nil
}

// upload picks single-shot or multipart based on payload size.
func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if int64(len(buf)) >= minPartSize {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/purchases/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
