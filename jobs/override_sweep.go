package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// OverrideSweeper deactivates overrides whose expiry has passed.
type OverrideSweeper interface {
	SweepExpired(ctx context.Context, asOf time.Time) (int64, error)
}

// NewOverrideSweepHandler returns the handler for TaskOverrideSweep. The
// sweep is a hygiene pass only; resolution already ignores expired overrides.
func NewOverrideSweepHandler(sweeper OverrideSweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload OverrideSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		swept, err := sweeper.SweepExpired(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("override sweep", slog.Any("error", err))
			return err
		}
		if swept > 0 {
			logger.Info("expired overrides deactivated", slog.Int64("count", swept))
		}
		return nil
	}
}
