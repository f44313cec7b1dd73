package s3blob

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory execution store for archiver tests.
type memStore struct {
	rows []domain.ExecutionResult
}

func (s *memStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionResult, error) {
	var out []domain.ExecutionResult
	for _, r := range s.rows {
		if r.CompletedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) DeleteBefore(ctx context.Context, before time.Time) (int, error) {
	kept := s.rows[:0]
	deleted := 0
	for _, r := range s.rows {
		if r.CompletedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return deleted, nil
}

// memWriter records every uploaded object by key.
type memWriter struct {
	objects map[string][]byte
	err     error
}

func (w *memWriter) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if w.err != nil {
		return w.err
	}
	if w.objects == nil {
		w.objects = make(map[string][]byte)
	}
	w.objects[key] = data
	return nil
}

func execAt(id string, completed time.Time) domain.ExecutionResult {
	return domain.ExecutionResult{
		OpportunityID: id,
		Symbol:        "BTC-USD",
		Outcome:       domain.OutcomeBothFilled,
		StartedAt:     completed.Add(-time.Second),
		CompletedAt:   completed,
	}
}

func (w *memWriter) archiveContains(id string) bool {
	for _, data := range w.objects {
		if strings.Contains(string(data), id) {
			return true
		}
	}
	return false
}

func TestArchiveMovesOldRows(t *testing.T) {
	jan1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{rows: []domain.ExecutionResult{
		execAt("opp-old", jan1),
		execAt("opp-new", jan1.AddDate(0, 0, 10)),
	}}
	writer := &memWriter{}
	a := NewArchiver(writer, store, testLogger())

	n, err := a.Archive(context.Background(), jan1.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.True(t, writer.archiveContains("opp-old"))
	require.Len(t, store.rows, 1, "only archived rows are deleted")
	assert.Equal(t, "opp-new", store.rows[0].OpportunityID)
}

func TestArchiveBatchesInSameMonthDoNotOverwrite(t *testing.T) {
	// Two passes within one month, each archiving and deleting its own rows.
	// The first batch must still be readable after the second pass.
	jan1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{rows: []domain.ExecutionResult{
		execAt("opp-a", jan1),
		execAt("opp-b", jan1.AddDate(0, 0, 10)),
	}}
	writer := &memWriter{}
	a := NewArchiver(writer, store, testLogger())

	_, err := a.Archive(context.Background(), jan1.AddDate(0, 0, 5))
	require.NoError(t, err)
	_, err = a.Archive(context.Background(), jan1.AddDate(0, 0, 15))
	require.NoError(t, err)

	assert.Len(t, writer.objects, 2, "each pass writes its own object")
	assert.True(t, writer.archiveContains("opp-a"),
		"rows archived by an earlier pass must survive later passes")
	assert.True(t, writer.archiveContains("opp-b"))
	assert.Empty(t, store.rows)
}

func TestArchiveFailedUploadKeepsRows(t *testing.T) {
	jan1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{rows: []domain.ExecutionResult{execAt("opp-a", jan1)}}
	writer := &memWriter{err: assert.AnError}
	a := NewArchiver(writer, store, testLogger())

	_, err := a.Archive(context.Background(), jan1.AddDate(0, 0, 5))
	require.Error(t, err)
	assert.Len(t, store.rows, 1, "rows must survive a failed upload")
}

func TestArchiveNothingToDo(t *testing.T) {
	store := &memStore{}
	writer := &memWriter{}
	a := NewArchiver(writer, store, testLogger())

	n, err := a.Archive(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.objects, "no empty objects")
}

func TestArchiveKeyUniquePerCutoff(t *testing.T) {
	c1 := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
	c2 := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	assert.NotEqual(t, archiveKey(c1), archiveKey(c2))
	assert.Equal(t, "archive/executions/2026-01/20260105T060000Z.jsonl", archiveKey(c1))
}
