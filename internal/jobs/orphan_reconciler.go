// Package jobs holds the background jobs started by the server.
//
// orphan_reconciler.go removes placeholder packages: rows inserted by a create whose archive
// was never recorded because the process died between the insert and the compensating
// delete.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/addonhub/addonhub/internal/db/models"
	"github.com/addonhub/addonhub/internal/db/repositories"
	"github.com/addonhub/addonhub/internal/telemetry"
)

const defaultBatchSize = 100

// PlaceholderStore lists and removes placeholder package rows.
type PlaceholderStore interface {
	ListPlaceholdersOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.Package, error)
	Delete(ctx context.Context, id int64) error
}

// ArtifactRemover deletes every stored file of a package.
type ArtifactRemover interface {
	DeleteAll(ctx context.Context, id int64, name string) error
}

// OrphanReconciler periodically deletes placeholder packages older than a grace period,
// together with any files written for their id.
type OrphanReconciler struct {
	packages  PlaceholderStore
	files     ArtifactRemover
	interval  time.Duration
	grace     time.Duration
	batchSize int
	now       func() time.Time
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewOrphanReconciler creates the job. Non-positive values default to a 15 minute interval
// and a 60 minute grace period.
func NewOrphanReconciler(packages PlaceholderStore, files ArtifactRemover, intervalMinutes, graceMinutes int) *OrphanReconciler {
	if intervalMinutes <= 0 {
		intervalMinutes = 15
	}
	if graceMinutes <= 0 {
		graceMinutes = 60
	}

	return &OrphanReconciler{
		packages:  packages,
		files:     files,
		interval:  time.Duration(intervalMinutes) * time.Minute,
		grace:     time.Duration(graceMinutes) * time.Minute,
		batchSize: defaultBatchSize,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start runs a pass immediately and then on every tick until ctx is done or Stop is called.
func (r *OrphanReconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("orphan reconciler started", "interval", r.interval, "grace", r.grace)

	r.run(ctx)

	for {
		select {
		case <-ticker.C:
			r.run(ctx)
		case <-r.stopChan:
			slog.Info("orphan reconciler stopped")
			return
		case <-ctx.Done():
			slog.Info("orphan reconciler context cancelled")
			return
		}
	}
}

// Stop ends Start. It is safe to call more than once.
func (r *OrphanReconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

func (r *OrphanReconciler) run(ctx context.Context) {
	removed, err := r.RunOnce(ctx)
	if err != nil {
		slog.Error("orphan reconciliation failed", "removed", removed, "error", err)
		return
	}
	if removed > 0 {
		slog.Info("orphan reconciliation completed", "removed", removed)
	}
}

// RunOnce removes every placeholder older than the grace period and returns how many were
// removed. Files go first so that a failed file delete leaves the row for the next pass.
func (r *OrphanReconciler) RunOnce(ctx context.Context) (int, error) {
	if r.packages == nil || r.files == nil {
		return 0, nil
	}

	cutoff := r.now().Add(-r.grace)
	removed := 0
	for {
		batch, err := r.packages.ListPlaceholdersOlderThan(ctx, cutoff, r.batchSize)
		if err != nil {
			return removed, fmt.Errorf("failed to list placeholders: %w", err)
		}

		progressed := false
		for _, p := range batch {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			if err := r.files.DeleteAll(ctx, p.ID, p.Name); err != nil {
				slog.Warn("failed to delete orphan files", "package_id", p.ID, "name", p.Name, "error", err)
				continue
			}
			if err := r.packages.Delete(ctx, p.ID); err != nil && !errors.Is(err, repositories.ErrPackageNotFound) {
				slog.Warn("failed to delete orphan package", "package_id", p.ID, "name", p.Name, "error", err)
				continue
			}
			progressed = true
			removed++
			telemetry.OrphanPackagesReconciledTotal.Inc()
			slog.Info("removed orphan package", "package_id", p.ID, "name", p.Name, "created_at", p.CreatedAt)
		}

		if len(batch) < r.batchSize || !progressed {
			return removed, nil
		}
	}
}
