package capture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/snapvault/snapvault/internal/metrics"
)

// Orchestrator walks a batch of URLs through one shared render session,
// retrying failures with growing timeouts, pausing politely between captures,
// and tripping a circuit breaker when the session fails repeatedly.
type Orchestrator struct {
	renderer Renderer
	store    ObjectStore
	clock    Clock
	opts     Options
	breaker  *breaker
	pauser   pauser
	logger   *zap.Logger
}

// NewOrchestrator constructs an Orchestrator. Unset options fall back to the
// package defaults.
func NewOrchestrator(renderer Renderer, store ObjectStore, clock Clock, opts Options, logger *zap.Logger) (*Orchestrator, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("capture options: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		renderer: renderer,
		store:    store,
		clock:    clock,
		opts:     opts,
		breaker:  newBreaker(opts.FailureThreshold, opts.ResetTimeout, clock),
		pauser:   &timerPauser{},
		logger:   logger,
	}, nil
}

// Run captures every URL in submission order. Failed items are requeued at
// the back with a longer timeout until their attempt budget runs out, then
// abandoned. Run returns ErrServiceUnavailable as soon as the breaker opens;
// a storage write failure aborts the run as well. The returned Summary is
// valid even when err is non-nil and covers everything done up to the abort.
func (o *Orchestrator) Run(ctx context.Context, jobID string, urls []string, onProgress ProgressFunc) (Summary, error) {
	summary := Summary{Total: len(urls)}
	queue := newWorkQueue(urls, o.opts.InitialTimeout)

	for queue.len() > 0 {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if o.breaker.Blocked() {
			o.logger.Error("circuit breaker open, aborting run",
				zap.String("job_id", jobID),
				zap.Int("pending", queue.len()),
			)
			return summary, ErrServiceUnavailable
		}

		item, _ := queue.pop()
		shot, err := o.renderer.Capture(ctx, item.URL, item.Timeout)
		if err != nil {
			o.handleFailure(ctx, jobID, item, err, queue, &summary)
			continue
		}

		artifact, err := o.persist(ctx, jobID, item, shot)
		if err != nil {
			o.logger.Error("artifact store failed",
				zap.String("job_id", jobID),
				zap.String("url", item.URL),
				zap.Error(err),
			)
			return summary, err
		}

		o.breaker.RecordSuccess()
		metrics.ObserveCapture(item.URL, metrics.OutcomeSuccess)
		summary.Artifacts = append(summary.Artifacts, artifact)
		summary.Completed++
		if onProgress != nil {
			onProgress(ctx, summary.Completed)
		}
		o.logger.Info("captured page",
			zap.String("job_id", jobID),
			zap.String("url", item.URL),
			zap.Int("status", shot.StatusCode),
			zap.Int("attempt", item.Attempts+1),
			zap.Int64("bytes", artifact.Size),
		)

		// No pause after the final item.
		if queue.len() > 0 {
			o.pauser.Pause(ctx, o.opts.BaseDelay+randomJitter(o.opts.Jitter))
		}
	}

	return summary, nil
}

func (o *Orchestrator) handleFailure(ctx context.Context, jobID string, item Item, err error, queue *workQueue, summary *Summary) {
	if o.breaker.RecordFailure() {
		metrics.ObserveBreakerTrip()
		o.logger.Warn("circuit breaker tripped",
			zap.String("job_id", jobID),
			zap.Duration("reset_timeout", o.opts.ResetTimeout),
		)
	}

	if IsFatalFault(err) {
		o.logger.Warn("render session fault, recycling",
			zap.String("job_id", jobID),
			zap.String("url", item.URL),
			zap.Error(err),
		)
		if rerr := o.renderer.Recycle(ctx); rerr != nil {
			o.logger.Error("session recycle failed",
				zap.String("job_id", jobID),
				zap.Error(rerr),
			)
		} else {
			metrics.ObserveSessionRecycle()
		}
	}

	item.Attempts++
	if item.Attempts >= o.opts.MaxAttempts {
		summary.Abandoned++
		metrics.ObserveCapture(item.URL, metrics.OutcomeAbandoned)
		o.logger.Error("abandoning url",
			zap.String("job_id", jobID),
			zap.String("url", item.URL),
			zap.Int("attempts", item.Attempts),
			zap.Error(err),
		)
		return
	}

	item.Timeout = time.Duration(float64(item.Timeout) * o.opts.TimeoutMultiplier)
	queue.push(item)
	metrics.ObserveRetry()
	o.logger.Warn("capture failed, requeued",
		zap.String("job_id", jobID),
		zap.String("url", item.URL),
		zap.Int("attempt", item.Attempts),
		zap.Duration("next_timeout", item.Timeout),
		zap.Error(err),
	)
}

func (o *Orchestrator) persist(ctx context.Context, jobID string, item Item, shot Shot) (Artifact, error) {
	name := ArtifactName(item.Index, item.URL, o.clock.Now())
	key := ObjectKey(jobID, name)
	if err := o.store.Put(ctx, key, PNGContentType, shot.Bytes); err != nil {
		return Artifact{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return Artifact{Key: key, ContentType: PNGContentType, Size: int64(len(shot.Bytes))}, nil
}
