package screening

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/screening-orchestrator/internal/errors"
	"github.com/screening-orchestrator/internal/logging"
	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/retry"
	"github.com/screening-orchestrator/internal/types"
)

// RunnerConfig configures the scheduled-call sweep
type RunnerConfig struct {
	// Interval between sweeps
	Interval time.Duration
	// PageSize bounds how many due calls one sweep processes
	PageSize int
	// Policy is the bounded backoff applied to transient dispatch failures
	Policy retry.Policy
}

// ScheduledCallRunner sweeps due scheduled calls and dispatches them. Retry
// state lives on the scheduled call row, so overlapping or restarted runners
// converge on the same bounded attempt sequence.
type ScheduledCallRunner struct {
	calls      ScheduledCallStore
	screenings ScreeningStore
	caller     *callDispatcher
	lifecycle  *lifecycle
	config     RunnerConfig
	logger     *logging.Logger
	now        func() time.Time
}

// NewScheduledCallRunner creates a new scheduled call runner
func NewScheduledCallRunner(
	calls ScheduledCallStore,
	screenings ScreeningStore,
	directory DirectoryStore,
	callProvider CallProvider,
	lc *lifecycle,
	config RunnerConfig,
	logger *logging.Logger,
) *ScheduledCallRunner {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.PageSize <= 0 {
		config.PageSize = 10
	}
	if config.Policy.MaxRetries == 0 {
		config.Policy = retry.DefaultPolicy()
	}

	return &ScheduledCallRunner{
		calls:      calls,
		screenings: screenings,
		caller: &callDispatcher{
			screenings: screenings,
			directory:  directory,
			provider:   callProvider,
			lifecycle:  lc,
			logger:     logger,
			now:        time.Now,
		},
		lifecycle: lc,
		config:    config,
		logger:    logger.WithField("component", "scheduled_call_runner"),
		now:       time.Now,
	}
}

// Start runs periodic sweeps until the context is cancelled
func (r *ScheduledCallRunner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.WithField("interval", r.config.Interval.String()).Info("Scheduled call runner started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Scheduled call runner stopped")
			return
		case <-ticker.C:
			if _, err := r.RunSweep(ctx); err != nil {
				r.logger.WithError(err).Error("Scheduled call sweep failed")
			}
		}
	}
}

// RunSweep processes one page of due scheduled calls and returns how many
// rows it handled
func (r *ScheduledCallRunner) RunSweep(ctx context.Context) (int, error) {
	due, err := r.calls.ListDue(ctx, r.now(), r.config.PageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due scheduled calls: %w", err)
	}

	for _, sc := range due {
		if err := r.processDue(ctx, sc); err != nil {
			r.logger.WithError(err).WithField("scheduled_call_id", sc.ID).
				Error("Failed to process scheduled call")
		}
	}

	return len(due), nil
}

// processDue attempts one due scheduled call. The eligibility check runs
// before any provider traffic: a row whose retry budget is already spent is
// failed permanently without placing another call.
func (r *ScheduledCallRunner) processDue(ctx context.Context, sc *models.ScheduledCall) error {
	logger := r.logger.WithFields(map[string]interface{}{
		"scheduled_call_id": sc.ID,
		"screening_id":      sc.ScreeningID,
		"retry_count":       sc.RetryCount,
	})
	attemptAt := r.now()

	s, err := r.screenings.GetByID(ctx, sc.ScreeningID)
	if err != nil {
		logger.WithError(err).Warn("Scheduled call references missing screening")
		return r.calls.MarkFailed(ctx, sc.ID, attemptAt, "screening not found")
	}

	if s.Status.IsTerminal() || s.Status == types.ScreeningInProgress {
		// Cancelled, finalized, or already dialed. An in_progress screening
		// with a live trigger means a previous sweep crashed between placing
		// the call and retiring the trigger; placing again would dial the
		// candidate twice.
		logger.WithField("screening_status", s.Status).Debug("Screening already handled, retiring scheduled call")
		return r.calls.MarkCompleted(ctx, sc.ID, attemptAt)
	}

	if r.config.Policy.Exhausted(sc.RetryCount) {
		logger.Warn("Scheduled call retry budget exhausted")
		if err := r.calls.MarkFailed(ctx, sc.ID, attemptAt, "retry attempts exhausted"); err != nil {
			return err
		}
		_, err := r.lifecycle.dispatchFailed(ctx, s, "retry attempts exhausted", sourceScheduler)
		return err
	}

	candidate, role, err := r.caller.resolve(ctx, s)
	if err != nil {
		// Missing configuration never heals on retry.
		summary := apperrors.Categorize(err).Message
		if mfErr := r.calls.MarkFailed(ctx, sc.ID, attemptAt, summary); mfErr != nil {
			return mfErr
		}
		_, dfErr := r.lifecycle.dispatchFailed(ctx, s, summary, sourceScheduler)
		return dfErr
	}

	if _, err := r.caller.place(ctx, s, candidate, role, sourceScheduler); err != nil {
		return r.handleDispatchError(ctx, sc, s, attemptAt, err)
	}

	return r.calls.MarkCompleted(ctx, sc.ID, attemptAt)
}

// handleDispatchError applies the retry policy to a failed call attempt
func (r *ScheduledCallRunner) handleDispatchError(ctx context.Context, sc *models.ScheduledCall, s *models.Screening, attemptAt time.Time, cause error) error {
	summary := apperrors.Categorize(cause).Message

	if apperrors.IsPermanent(cause) {
		if err := r.calls.MarkFailed(ctx, sc.ID, attemptAt, summary); err != nil {
			return err
		}
		_, err := r.lifecycle.dispatchFailed(ctx, s, summary, sourceScheduler)
		return err
	}

	nextRetryAt := r.config.Policy.NextRetryAt(attemptAt, sc.RetryCount)
	r.logger.WithFields(map[string]interface{}{
		"scheduled_call_id": sc.ID,
		"retry_count":       sc.RetryCount + 1,
		"next_retry_at":     nextRetryAt.UTC().Format(time.RFC3339),
	}).Warn("Call attempt failed, scheduling retry")

	return r.calls.RecordRetry(ctx, sc.ID, nextRetryAt, attemptAt, summary)
}
