// Package progress persists job progress as the capture loop advances.
package progress

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snapvault/snapvault/internal/capture"
	"github.com/snapvault/snapvault/internal/jobstore"
)

// Reporter patches the job record while a job runs. Per-capture progress
// writes are advisory: a failed write is logged and the run continues.
// Terminal writes are not; their errors go back to the caller.
type Reporter struct {
	jobs   jobstore.Store
	clock  capture.Clock
	logger *zap.Logger
}

// NewReporter constructs a Reporter writing through jobs.
func NewReporter(jobs jobstore.Store, clock capture.Clock, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{jobs: jobs, clock: clock, logger: logger}
}

// OnStart marks the job as processing and records how many URLs it carries.
func (r *Reporter) OnStart(ctx context.Context, jobID string, total int) error {
	status := jobstore.StatusProcessing
	patch := jobstore.Update{Status: &status, URLsCount: &total}
	if err := r.jobs.Update(ctx, jobID, patch); err != nil {
		return fmt.Errorf("mark job %s processing: %w", jobID, err)
	}
	return nil
}

// OnProgress records how many captures have completed so far.
func (r *Reporter) OnProgress(ctx context.Context, jobID string, completed int) {
	patch := jobstore.Update{Completed: &completed}
	if err := r.jobs.Update(ctx, jobID, patch); err != nil {
		r.logger.Warn("progress write failed",
			zap.String("job_id", jobID),
			zap.Int("completed", completed),
			zap.Error(err),
		)
	}
}

// OnTerminal stamps the job's final status, archive key and processing time.
// Called exactly once per job, after the run and bundle phases settle.
func (r *Reporter) OnTerminal(ctx context.Context, jobID string, status jobstore.Status, archiveKey string) error {
	at := r.clock.Now()
	patch := jobstore.Update{Status: &status, ProcessedAt: &at}
	if archiveKey != "" {
		patch.ArchiveKey = &archiveKey
	}
	if err := r.jobs.Update(ctx, jobID, patch); err != nil {
		return fmt.Errorf("mark job %s %s: %w", jobID, status, err)
	}
	return nil
}
