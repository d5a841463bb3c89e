package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vantage-bm/vantage/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditPersist retries audit batches that could not be written inline.
	TaskAuditPersist = "audit:persist"
	// TaskOverrideSweep deactivates expired permission overrides.
	TaskOverrideSweep = "overrides:sweep"
)

// AuditPersistPayload carries a batch of entries for delayed persistence.
type AuditPersistPayload struct {
	Entries []audit.Entry `json:"entries"`
}

// NewAuditPersistTask constructs an Asynq task for an audit batch. Entry IDs
// are unique, so re-delivery after a partial write is harmless.
func NewAuditPersistTask(entries []audit.Entry) (*asynq.Task, error) {
	body, err := json.Marshal(AuditPersistPayload{Entries: entries})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPersist, body, asynq.Queue(QueueDefault), asynq.MaxRetry(10)), nil
}

// OverrideSweepPayload carries scheduling metadata.
type OverrideSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewOverrideSweepTask constructs an Asynq task for the override sweep.
func NewOverrideSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OverrideSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverrideSweep, body, asynq.Queue(QueueDefault)), nil
}
