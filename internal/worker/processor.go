package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/NoteDrop/internal/notes"
	"github.com/dharsanguruparan/NoteDrop/internal/queue"
)

// Sweeper is the part of the notes service the worker drives.
type Sweeper interface {
	Sweep(ctx context.Context, grace time.Duration) (notes.SweepReport, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	sweeper Sweeper
	grace   time.Duration
	logger  *slog.Logger
}

// NewProcessor constructs a worker processor. grace applies to tasks that do
// not carry their own.
func NewProcessor(sweeper Sweeper, grace time.Duration, logger *slog.Logger) *Processor {
	return &Processor{sweeper: sweeper, grace: grace, logger: logger.With(slog.String("component", "worker"))}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.SweepOrphansTask, p.handleSweep)
	return mux
}

func (p *Processor) handleSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseSweepPayload(task)
	if err != nil {
		// A malformed payload will never succeed.
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	grace := payload.Grace
	if grace <= 0 {
		grace = p.grace
	}
	report, err := p.sweeper.Sweep(ctx, grace)
	if errors.Is(err, notes.ErrLocalStore) {
		p.logger.Error("sweep refused", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err != nil {
		p.logger.Error("sweep failed", slog.String("error", err.Error()))
		return err
	}
	if report.Failed > 0 {
		p.logger.Warn("sweep left orphans behind", slog.Int("failed", report.Failed))
	}
	return nil
}
