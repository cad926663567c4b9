package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

func TestSweepTaskRoundTrip(t *testing.T) {
	task, err := NewSweepTask(SweepPayload{Grace: 90 * time.Minute})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != SweepOrphansTask {
		t.Fatalf("unexpected type %q", task.Type())
	}
	payload, err := ParseSweepPayload(task)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if payload.Grace != 90*time.Minute {
		t.Fatalf("unexpected grace %v", payload.Grace)
	}
}

func TestParseEmptyPayload(t *testing.T) {
	payload, err := ParseSweepPayload(asynq.NewTask(SweepOrphansTask, nil))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if payload.Grace != 0 {
		t.Fatalf("expected zero grace, got %v", payload.Grace)
	}
}
