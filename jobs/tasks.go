// Package jobs holds the background task definitions and the Asynq
// worker that runs them.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDashboardWarmup pre-populates dashboard summary caches.
	TaskDashboardWarmup = "dashboard:warmup"
)

// DashboardWarmupPayload narrows a warmup run. Empty means all owners.
type DashboardWarmupPayload struct {
	OwnerID int64 `json:"ownerId,omitempty"`
}

// NewDashboardWarmupTask constructs an Asynq task.
func NewDashboardWarmupTask(payload DashboardWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, data), nil
}
