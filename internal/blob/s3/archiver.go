package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ExecutionArchiveStore is the slice of the execution store the archiver
// needs: a time-ranged read plus the post-upload delete.
type ExecutionArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionResult, error)
	DeleteBefore(ctx context.Context, before time.Time) (int, error)
}

// ArchiveImpl implements domain.Archiver by querying settled executions
// older than the cutoff, serializing them to JSONL, uploading the batch to
// object storage, and then deleting the archived rows. The delete only runs
// after a successful upload, so a failed upload leaves the rows in place for
// the next pass.
type ArchiveImpl struct {
	writer domain.BlobWriter
	store  ExecutionArchiveStore
	logger *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, store ExecutionArchiveStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		store:  store,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Archive moves executions completed before the cutoff into object storage
// and returns the number of archived records. Each batch gets its own
// object key derived from the cutoff, so successive passes append to the
// archive instead of overwriting earlier batches; rows are only deleted
// from the primary store after their batch uploaded.
func (a *ArchiveImpl) Archive(ctx context.Context, before time.Time) (int, error) {
	execs, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(execs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(execs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	key := archiveKey(before)
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		// Upload succeeded but cleanup failed; the next pass re-archives
		// the same rows under a new key. Duplicate rows across batches are
		// harmless, missing rows would not be.
		return len(execs), fmt.Errorf("s3blob: archive cleanup: %w", err)
	}

	a.logger.Info("executions archived",
		slog.String("key", key),
		slog.Int("archived", len(execs)),
		slog.Int("deleted", deleted),
	)
	return len(execs), nil
}

// RunPeriodic archives on a fixed interval until ctx is cancelled, keeping
// retention days of history in the primary store.
func (a *ArchiveImpl) RunPeriodic(ctx context.Context, interval time.Duration, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			if _, err := a.Archive(ctx, cutoff); err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// archiveKey builds the object key for one archive batch: a year-month
// prefix for browsing plus the full cutoff timestamp, unique per pass.
func archiveKey(before time.Time) string {
	before = before.UTC()
	return fmt.Sprintf("archive/executions/%s/%s.jsonl",
		before.Format("2006-01"), before.Format("20060102T150405Z"))
}

// marshalJSONL serialises records as newline-delimited JSON.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
