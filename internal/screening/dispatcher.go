package screening

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/screening-orchestrator/internal/errors"
	"github.com/screening-orchestrator/internal/logging"
	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/types"
)

// DispatcherConfig configures batch dispatch behavior
type DispatcherConfig struct {
	// BatchSize bounds how many screenings are loaded per chunk
	BatchSize int
	// PacingDelay is the wait between consecutive dispatches in a chunk
	PacingDelay time.Duration
	// ChunkDelay is the wait between chunks
	ChunkDelay time.Duration
	// ResumeInterval is how often the supervisor re-scans for operations
	// left in flight, e.g. after a process restart
	ResumeInterval time.Duration
}

// BatchDispatcher drains a bulk operation's pending screenings in bounded
// chunks. All progress state lives in the database: each chunk re-queries
// pending rows and each dispatch re-checks the operation status, so a
// restart or an operator pause takes effect at the next screening boundary.
type BatchDispatcher struct {
	screenings ScreeningStore
	bulkOps    BulkOperationStore
	caller     *callDispatcher
	lifecycle  *lifecycle
	config     DispatcherConfig
	logger     *logging.Logger
	trigger    chan string
	now        func() time.Time
}

// NewBatchDispatcher creates a new batch dispatcher
func NewBatchDispatcher(
	screenings ScreeningStore,
	bulkOps BulkOperationStore,
	directory DirectoryStore,
	callProvider CallProvider,
	lc *lifecycle,
	config DispatcherConfig,
	logger *logging.Logger,
) *BatchDispatcher {
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}
	if config.ResumeInterval <= 0 {
		config.ResumeInterval = time.Minute
	}

	return &BatchDispatcher{
		screenings: screenings,
		bulkOps:    bulkOps,
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
		logger:    logger.WithField("component", "batch_dispatcher"),
		trigger:   make(chan string, 64),
		now:       time.Now,
	}
}

// Enqueue requests a dispatch run for a bulk operation. Non-blocking; if the
// queue is full the supervisor scan picks the operation up instead.
func (d *BatchDispatcher) Enqueue(bulkOperationID string) {
	select {
	case d.trigger <- bulkOperationID:
	default:
		d.logger.WithField("bulk_operation_id", bulkOperationID).
			Warn("Dispatch queue full, deferring to supervisor scan")
	}
}

// Start runs the dispatch loop until the context is cancelled. Triggered
// operations run immediately; a periodic scan resumes any operation left
// pending or in progress, which is the crash-recovery path.
func (d *BatchDispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.config.ResumeInterval)
	defer ticker.Stop()

	d.logger.Info("Batch dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Batch dispatcher stopped")
			return
		case id := <-d.trigger:
			if err := d.Run(ctx, id); err != nil {
				d.logger.WithError(err).WithField("bulk_operation_id", id).
					Error("Dispatch run failed")
			}
		case <-ticker.C:
			d.resumeInFlight(ctx)
		}
	}
}

// resumeInFlight re-runs dispatch for operations that still have work
func (d *BatchDispatcher) resumeInFlight(ctx context.Context) {
	for _, status := range []types.BulkOperationStatus{types.BulkPending, types.BulkInProgress} {
		ops, err := d.bulkOps.ListByStatus(ctx, status, 20)
		if err != nil {
			d.logger.WithError(err).Error("Failed to list operations for resume scan")
			return
		}
		for _, op := range ops {
			if err := d.Run(ctx, op.ID); err != nil {
				d.logger.WithError(err).WithField("bulk_operation_id", op.ID).
					Error("Resume dispatch failed")
			}
		}
	}
}

// Run drains one bulk operation. It returns once the operation has no
// pending screenings left, or as soon as a status checkpoint shows the
// operation is no longer in progress.
func (d *BatchDispatcher) Run(ctx context.Context, bulkOperationID string) error {
	logger := d.logger.WithField("bulk_operation_id", bulkOperationID)

	op, err := d.bulkOps.GetByID(ctx, bulkOperationID)
	if err != nil {
		return apperrors.NewNotFoundError("bulk operation", bulkOperationID)
	}

	started, err := d.bulkOps.TransitionStatus(ctx, bulkOperationID,
		[]types.BulkOperationStatus{types.BulkPending, types.BulkInProgress},
		types.BulkInProgress)
	if err != nil {
		return fmt.Errorf("failed to start bulk operation: %w", err)
	}
	if !started {
		logger.WithField("status", op.Status).Info("Bulk operation not dispatchable, skipping run")
		return nil
	}
	d.lifecycle.invalidateProgress(ctx, bulkOperationID)

	for {
		batch, err := d.screenings.ListPendingByBulkOperation(ctx, bulkOperationID, d.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to load pending screenings: %w", err)
		}
		if len(batch) == 0 {
			d.lifecycle.maybeCompleteOperation(ctx, bulkOperationID)
			return nil
		}

		logger.WithField("chunk_size", len(batch)).Debug("Dispatching chunk")

		for i, s := range batch {
			// Checkpoint before every dispatch so pause and cancel
			// take effect mid-chunk, never mid-call.
			status, err := d.bulkOps.GetStatus(ctx, bulkOperationID)
			if err != nil {
				return fmt.Errorf("failed to check bulk operation status: %w", err)
			}
			if status != types.BulkInProgress {
				logger.WithField("status", status).Info("Dispatch halted by status change")
				return nil
			}

			d.dispatchOne(ctx, s)

			if i < len(batch)-1 {
				if err := sleepCtx(ctx, d.config.PacingDelay); err != nil {
					return err
				}
			}
		}

		if err := sleepCtx(ctx, d.config.ChunkDelay); err != nil {
			return err
		}
	}
}

// dispatchOne places the call for a single screening. Any failure here fails
// the screening immediately; the batch path has no per-call retry, failed
// rows are re-queued explicitly by the retry-failed command.
func (d *BatchDispatcher) dispatchOne(ctx context.Context, s *models.Screening) {
	candidate, role, err := d.caller.resolve(ctx, s)
	if err != nil {
		d.failDispatch(ctx, s, err)
		return
	}

	if _, err := d.caller.place(ctx, s, candidate, role, sourceDispatcher); err != nil {
		d.failDispatch(ctx, s, err)
	}
}

func (d *BatchDispatcher) failDispatch(ctx context.Context, s *models.Screening, cause error) {
	summary := apperrors.Categorize(cause).Message
	if _, err := d.lifecycle.dispatchFailed(ctx, s, summary, sourceDispatcher); err != nil {
		d.logger.WithError(err).WithField("screening_id", s.ID).
			Error("Failed to record dispatch failure")
	}
}

// sleepCtx waits for the given duration or until the context is cancelled
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
