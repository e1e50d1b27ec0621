package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityCheck verifies ranks, stock conservation and ledger chains.
	TaskIntegrityCheck = "integrity:check"
	// TaskIdempotencyPurge drops idempotency keys past their retention.
	TaskIdempotencyPurge = "idempotency:purge"
)

// IntegrityCheckPayload scopes an integrity run. A zero TenantID checks
// every tenant.
type IntegrityCheckPayload struct {
	TenantID int64 `json:"tenant_id,omitempty"`
}

// NewIntegrityCheckTask constructs the Asynq task.
func NewIntegrityCheckTask(tenantID int64) (*asynq.Task, error) {
	data, err := json.Marshal(IntegrityCheckPayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityCheck, data), nil
}

// NewIdempotencyPurgeTask constructs the Asynq task.
func NewIdempotencyPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyPurge, nil)
}
