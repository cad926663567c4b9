package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// SweepOrphansTask removes blobs that no note references.
	SweepOrphansTask = "blob:sweep"
)

// SweepPayload is serialized into the task payload. A zero Grace means the
// worker's configured default.
type SweepPayload struct {
	Grace time.Duration `json:"grace"`
}

// NewSweepTask builds the sweep task. The scheduler and EnqueueSweep share it.
func NewSweepTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	// Unique keeps overlapping sweeps from piling up behind a slow one.
	return asynq.NewTask(SweepOrphansTask, data, asynq.MaxRetry(3), asynq.Unique(10*time.Minute)), nil
}

// ParseSweepPayload decodes a sweep task payload.
func ParseSweepPayload(task *asynq.Task) (SweepPayload, error) {
	var payload SweepPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// EnqueueSweep enqueues a one-off orphan sweep and returns the task id.
func EnqueueSweep(ctx context.Context, client *asynq.Client, payload SweepPayload) (string, error) {
	task, err := NewSweepTask(payload)
	if err != nil {
		return "", err
	}
	info, err := client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue sweep task: %w", err)
	}
	return info.ID, nil
}

// RedisOpt builds the asynq connection options shared by the API, worker and
// CLI.
func RedisOpt(addr, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}
}
