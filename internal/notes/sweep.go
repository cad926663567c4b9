package notes

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SweepReport summarises one orphan sweep.
type SweepReport struct {
	Scanned int `json:"scanned"`
	Orphans int `json:"orphans"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Sweep deletes blobs that no note references and that are older than grace.
// The grace period covers uploads whose record has not been written yet.
// It returns ErrLocalStore without touching any blob when the store is
// process-local.
func (s *Service) Sweep(ctx context.Context, grace time.Duration) (SweepReport, error) {
	var report SweepReport
	if s.opts.LocalStore {
		return report, ErrLocalStore
	}
	// Blobs are listed before keys so a note created in between is never
	// mistaken for an orphan.
	objects, err := s.blobs.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list blobs: %w", err)
	}
	keys, err := s.store.StorageKeys(ctx)
	if err != nil {
		return report, fmt.Errorf("list storage keys: %w", err)
	}
	cutoff := s.now().Add(-grace)
	for _, obj := range objects {
		report.Scanned++
		if _, referenced := keys[obj.Key]; referenced || obj.ModTime.After(cutoff) {
			continue
		}
		report.Orphans++
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.blobs.Delete(ctx, obj.Key); err != nil {
			report.Failed++
			s.logger.Warn("orphan delete failed",
				slog.String("key", obj.Key),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Deleted++
	}
	sweepDeletedTotal.Add(float64(report.Deleted))
	s.logger.Info("orphan sweep finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("orphans", report.Orphans),
		slog.Int("deleted", report.Deleted),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}
