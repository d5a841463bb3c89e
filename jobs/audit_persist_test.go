package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/vantage-bm/vantage/internal/audit"
)

type fakeAuditWriter struct {
	entries []audit.Entry
	err     error
}

func (w *fakeAuditWriter) InsertEntries(ctx context.Context, entries []audit.Entry) error {
	if w.err != nil {
		return w.err
	}
	w.entries = append(w.entries, entries...)
	return nil
}

func TestAuditPersistHandler(t *testing.T) {
	writer := &fakeAuditWriter{}
	handler := NewAuditPersistHandler(writer, slog.Default())

	task, err := NewAuditPersistTask([]audit.Entry{
		audit.NewEntry(7, 1, audit.ActionDecision),
		audit.NewEntry(7, 1, audit.ActionOverrideSet),
	})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Len(t, writer.entries, 2)
}

func TestAuditPersistHandlerRetriesOnWriteFailure(t *testing.T) {
	writer := &fakeAuditWriter{err: errors.New("still down")}
	handler := NewAuditPersistHandler(writer, slog.Default())

	task, err := NewAuditPersistTask([]audit.Entry{audit.NewEntry(7, 1, audit.ActionDecision)})
	require.NoError(t, err)

	require.Error(t, handler(context.Background(), task))
}

func TestAuditPersistHandlerSkipsBadPayload(t *testing.T) {
	handler := NewAuditPersistHandler(&fakeAuditWriter{}, slog.Default())

	err := handler(context.Background(), asynq.NewTask(TaskAuditPersist, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeSweeper struct {
	swept int64
	err   error
	asOf  time.Time
}

func (s *fakeSweeper) SweepExpired(ctx context.Context, asOf time.Time) (int64, error) {
	s.asOf = asOf
	return s.swept, s.err
}

func TestOverrideSweepHandler(t *testing.T) {
	sweeper := &fakeSweeper{swept: 3}
	handler := NewOverrideSweepHandler(sweeper, slog.Default())

	task, err := NewOverrideSweepTask(time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.False(t, sweeper.asOf.IsZero())
}
