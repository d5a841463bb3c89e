package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/vantage-bm/vantage/internal/audit"
)

// AuditWriter persists audit batches.
type AuditWriter interface {
	InsertEntries(ctx context.Context, entries []audit.Entry) error
}

// NewAuditPersistHandler returns the handler for TaskAuditPersist. Insert is
// idempotent on entry ID, so Asynq retries never duplicate rows.
func NewAuditPersistHandler(writer AuditWriter, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditPersistPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if len(payload.Entries) == 0 {
			return nil
		}
		if err := writer.InsertEntries(ctx, payload.Entries); err != nil {
			logger.Warn("audit persist retry",
				slog.Int("entries", len(payload.Entries)),
				slog.Any("error", err))
			return err
		}
		logger.Info("audit batch persisted", slog.Int("entries", len(payload.Entries)))
		return nil
	}
}
