// Package worker executes submitted jobs end to end: capture, bundle, record.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/snapvault/snapvault/internal/capture"
	"github.com/snapvault/snapvault/internal/jobstore"
	"github.com/snapvault/snapvault/internal/metrics"
	"github.com/snapvault/snapvault/internal/notify"
	"github.com/snapvault/snapvault/internal/storage"
)

// ErrQueueClosed is returned by Dequeue once a queue has shut down.
var ErrQueueClosed = errors.New("queue closed")

// JobRequest is one submitted job waiting for a worker.
type JobRequest struct {
	JobID string
	URLs  []string
}

// Queue hands out submitted jobs.
type Queue interface {
	Dequeue(ctx context.Context) (JobRequest, error)
}

// Session is the worker's view of a live render session.
type Session interface {
	capture.Renderer
	Close() error
}

// SessionFactory opens a fresh render session for each job.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Bundler archives a finished job's artifacts.
type Bundler interface {
	Bundle(ctx context.Context, jobID string, artifacts []capture.Artifact) (capture.Artifact, error)
}

// Reporter persists job state transitions.
type Reporter interface {
	OnStart(ctx context.Context, jobID string, total int) error
	OnProgress(ctx context.Context, jobID string, completed int)
	OnTerminal(ctx context.Context, jobID string, status jobstore.Status, archiveKey string) error
}

// Worker consumes jobs from the queue and runs them one at a time. Each job
// gets a fresh session and a fresh orchestrator, so breaker state and session
// faults never leak between jobs.
type Worker struct {
	queue     Queue
	store     storage.Store
	sessions  SessionFactory
	bundler   Bundler
	reporter  Reporter
	publisher notify.Publisher
	clock     capture.Clock
	opts      capture.Options
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue Queue,
	store storage.Store,
	sessions SessionFactory,
	bundler Bundler,
	reporter Reporter,
	publisher notify.Publisher,
	clock capture.Clock,
	opts capture.Options,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		store:     store,
		sessions:  sessions,
		bundler:   bundler,
		reporter:  reporter,
		publisher: publisher,
		clock:     clock,
		opts:      opts,
		logger:    logger,
	}
}

// Run blocks, consuming jobs until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", req.JobID))
		w.processJob(ctx, req)
	}
}

func (w *Worker) processJob(ctx context.Context, req JobRequest) {
	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()
	start := w.clock.Now()

	if err := w.reporter.OnStart(ctx, req.JobID, len(req.URLs)); err != nil {
		w.logger.Error("start job failed", zap.String("job_id", req.JobID), zap.Error(err))
		return
	}

	summary, archiveKey, runErr := w.runJob(ctx, req)

	status := jobstore.StatusCompleted
	if runErr != nil {
		status = jobstore.StatusFailed
		w.logger.Error("job failed",
			zap.String("job_id", req.JobID),
			zap.Int("completed", summary.Completed),
			zap.Error(runErr),
		)
	}

	if err := w.reporter.OnTerminal(ctx, req.JobID, status, archiveKey); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", req.JobID), zap.Error(err))
	}

	w.publishEvent(ctx, req.JobID, status, archiveKey, summary)
	metrics.ObserveJob(string(status), w.clock.Now().Sub(start))

	w.logger.Info("job finished",
		zap.String("job_id", req.JobID),
		zap.String("status", string(status)),
		zap.Int("completed", summary.Completed),
		zap.Int("abandoned", summary.Abandoned),
		zap.Int("total", summary.Total),
	)
}

// runJob owns the session lifecycle: the session is closed on every path,
// success or not.
func (w *Worker) runJob(ctx context.Context, req JobRequest) (capture.Summary, string, error) {
	summary := capture.Summary{Total: len(req.URLs)}

	session, err := w.sessions.NewSession(ctx)
	if err != nil {
		return summary, "", fmt.Errorf("launch session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			w.logger.Warn("session close failed", zap.String("job_id", req.JobID), zap.Error(cerr))
		}
	}()

	orch, err := capture.NewOrchestrator(session, w.store, w.clock, w.opts, w.logger)
	if err != nil {
		return summary, "", fmt.Errorf("build orchestrator: %w", err)
	}

	summary, err = orch.Run(ctx, req.JobID, req.URLs, func(ctx context.Context, completed int) {
		w.reporter.OnProgress(ctx, req.JobID, completed)
	})
	if err != nil {
		return summary, "", fmt.Errorf("run job: %w", err)
	}

	archive, err := w.bundler.Bundle(ctx, req.JobID, summary.Artifacts)
	if err != nil {
		return summary, "", fmt.Errorf("bundle job: %w", err)
	}
	metrics.ObserveArchiveBytes(archive.Size)

	return summary, archive.Key, nil
}

func (w *Worker) publishEvent(ctx context.Context, jobID string, status jobstore.Status, archiveKey string, summary capture.Summary) {
	if w.publisher == nil {
		return
	}
	event := notify.Event{
		JobID:      jobID,
		Status:     string(status),
		ArchiveKey: archiveKey,
		Completed:  summary.Completed,
		Total:      summary.Total,
	}
	if err := w.publisher.Publish(ctx, event); err != nil {
		w.logger.Warn("publish event failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
