package screening

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/screening-orchestrator/internal/errors"
	"github.com/screening-orchestrator/internal/logging"
	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/types"
)

// CreateBulkOperationInput is the intake request for a bulk screening campaign
type CreateBulkOperationInput struct {
	RoleID        string
	CandidateIDs  []string
	BatchSize     int
	Mode          types.SchedulingMode
	ScheduledTime *time.Time
}

// CreateScreeningInput is the intake request for a single screening
type CreateScreeningInput struct {
	RoleID        string
	CandidateID   string
	ScheduledTime *time.Time
}

// Controller implements intake and the operator commands: create, progress,
// pause, resume, cancel, and retry-failed. Commands mutate only the
// operation status row through guarded transitions; the dispatcher and
// engine observe the new status at their next checkpoint.
type Controller struct {
	screenings       ScreeningStore
	bulkOps          BulkOperationStore
	calls            ScheduledCallStore
	directory        DirectoryStore
	caller           *callDispatcher
	lifecycle        *lifecycle
	dispatch         DispatchQueue
	progress         ProgressCacheStore
	defaultBatchSize int
	logger           *logging.Logger
	now              func() time.Time
}

// NewController creates a new controller
func NewController(
	screenings ScreeningStore,
	bulkOps BulkOperationStore,
	calls ScheduledCallStore,
	directory DirectoryStore,
	callProvider CallProvider,
	lc *lifecycle,
	dispatch DispatchQueue,
	progress ProgressCacheStore,
	defaultBatchSize int,
	logger *logging.Logger,
) *Controller {
	if defaultBatchSize <= 0 {
		defaultBatchSize = 5
	}

	return &Controller{
		screenings: screenings,
		bulkOps:    bulkOps,
		calls:      calls,
		directory:  directory,
		caller: &callDispatcher{
			screenings: screenings,
			directory:  directory,
			provider:   callProvider,
			lifecycle:  lc,
			logger:     logger,
			now:        time.Now,
		},
		lifecycle:        lc,
		dispatch:         dispatch,
		progress:         progress,
		defaultBatchSize: defaultBatchSize,
		logger:           logger.WithField("component", "controller"),
		now:              time.Now,
	}
}

// CreateBulkOperation creates an operation and its child screenings in one
// transaction, then hands the operation to the dispatcher (immediate mode)
// or materializes scheduled-call triggers (scheduled mode).
func (c *Controller) CreateBulkOperation(ctx context.Context, input *CreateBulkOperationInput) (*models.BulkOperation, error) {
	if len(input.CandidateIDs) == 0 {
		return nil, apperrors.NewInvalidParameterError("candidateIds", "at least one candidate is required")
	}
	if input.Mode == "" {
		input.Mode = types.ModeImmediate
	}
	if input.Mode == types.ModeScheduled && input.ScheduledTime == nil {
		return nil, apperrors.NewInvalidParameterError("scheduledTime", "required for scheduled mode")
	}

	// Role must exist at intake; per-candidate validation happens at
	// dispatch so one bad candidate cannot block the campaign.
	if _, err := c.directory.GetRole(ctx, input.RoleID); err != nil {
		return nil, apperrors.NewNotFoundError("role", input.RoleID)
	}

	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = c.defaultBatchSize
	}

	now := c.now()
	op := &models.BulkOperation{
		ID:             uuid.New().String(),
		RoleID:         input.RoleID,
		SchedulingMode: input.Mode,
		BatchSize:      batchSize,
		Status:         types.BulkPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	screenings := make([]*models.Screening, 0, len(input.CandidateIDs))
	for _, candidateID := range input.CandidateIDs {
		s := &models.Screening{
			ID:              uuid.New().String(),
			RoleID:          input.RoleID,
			CandidateID:     candidateID,
			BulkOperationID: &op.ID,
			Status:          types.ScreeningPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if input.Mode == types.ModeScheduled {
			s.Status = types.ScreeningScheduled
			s.ScheduledAt = input.ScheduledTime
		}
		screenings = append(screenings, s)
	}

	if err := c.bulkOps.CreateWithScreenings(ctx, op, screenings); err != nil {
		return nil, apperrors.NewDatabaseError("bulk operation creation", err)
	}

	logger := c.logger.WithFields(map[string]interface{}{
		"bulk_operation_id": op.ID,
		"role_id":           op.RoleID,
		"total_count":       op.TotalCount,
		"mode":              op.SchedulingMode,
	})

	if input.Mode == types.ModeScheduled {
		for _, s := range screenings {
			sc := &models.ScheduledCall{
				ID:            uuid.New().String(),
				ScreeningID:   s.ID,
				ScheduledTime: *input.ScheduledTime,
				Status:        types.ScheduledCallPending,
				CreatedAt:     now,
			}
			if err := c.calls.Create(ctx, sc); err != nil {
				return nil, apperrors.NewDatabaseError("scheduled call creation", err)
			}
		}
		logger.Info("Bulk operation created, awaiting scheduled time")
		return op, nil
	}

	c.dispatch.Enqueue(op.ID)
	logger.Info("Bulk operation created and queued for dispatch")
	return op, nil
}

// CreateScreening creates one standalone screening. Immediate screenings are
// dispatched inline; scheduled ones get a scheduled-call trigger.
func (c *Controller) CreateScreening(ctx context.Context, input *CreateScreeningInput) (*models.Screening, error) {
	now := c.now()
	s := &models.Screening{
		ID:          uuid.New().String(),
		RoleID:      input.RoleID,
		CandidateID: input.CandidateID,
		Status:      types.ScreeningPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if input.ScheduledTime != nil {
		s.Status = types.ScreeningScheduled
		s.ScheduledAt = input.ScheduledTime
	}

	if err := c.screenings.Create(ctx, s); err != nil {
		return nil, apperrors.NewDatabaseError("screening creation", err)
	}

	if input.ScheduledTime != nil {
		sc := &models.ScheduledCall{
			ID:            uuid.New().String(),
			ScreeningID:   s.ID,
			ScheduledTime: *input.ScheduledTime,
			Status:        types.ScheduledCallPending,
			CreatedAt:     now,
		}
		if err := c.calls.Create(ctx, sc); err != nil {
			return nil, apperrors.NewDatabaseError("scheduled call creation", err)
		}
		return s, nil
	}

	candidate, role, err := c.caller.resolve(ctx, s)
	if err != nil {
		summary := apperrors.Categorize(err).Message
		if _, dfErr := c.lifecycle.dispatchFailed(ctx, s, summary, sourceOperator); dfErr != nil {
			c.logger.WithError(dfErr).WithField("screening_id", s.ID).
				Error("Failed to record dispatch failure")
		}
		return nil, err
	}

	if _, err := c.caller.place(ctx, s, candidate, role, sourceOperator); err != nil {
		summary := apperrors.Categorize(err).Message
		if _, dfErr := c.lifecycle.dispatchFailed(ctx, s, summary, sourceOperator); dfErr != nil {
			c.logger.WithError(dfErr).WithField("screening_id", s.ID).
				Error("Failed to record dispatch failure")
		}
		return nil, err
	}

	return c.screenings.GetByID(ctx, s.ID)
}

// GetScreening retrieves one screening
func (c *Controller) GetScreening(ctx context.Context, id string) (*models.Screening, error) {
	s, err := c.screenings.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.NewNotFoundError("screening", id)
	}
	return s, nil
}

// Progress returns the operation read model, served from cache when fresh.
// With recount set, counters are recomputed from child rows first; this is
// the repair path for any drift between counters and ground truth.
func (c *Controller) Progress(ctx context.Context, bulkOperationID string, recount bool) (*models.BulkOperationProgress, error) {
	if recount {
		if err := c.bulkOps.Recount(ctx, bulkOperationID); err != nil {
			return nil, apperrors.NewDatabaseError("counter recount", err)
		}
		c.lifecycle.invalidateProgress(ctx, bulkOperationID)
	} else if c.progress != nil {
		cached, err := c.progress.Get(ctx, bulkOperationID)
		if err != nil {
			c.logger.WithError(err).Warn("Progress cache read failed, falling back to database")
		} else if cached != nil {
			return cached, nil
		}
	}

	op, err := c.bulkOps.GetByID(ctx, bulkOperationID)
	if err != nil {
		return nil, apperrors.NewNotFoundError("bulk operation", bulkOperationID)
	}

	counts, err := c.screenings.CountByStatus(ctx, bulkOperationID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("screening status counts", err)
	}

	children, err := c.screenings.ListByBulkOperation(ctx, bulkOperationID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("screening listing", err)
	}

	progress := &models.BulkOperationProgress{
		Operation:       op,
		InProgressCount: counts[types.ScreeningInProgress],
		PendingCount:    counts[types.ScreeningPending] + counts[types.ScreeningScheduled],
		StatusCounts:    counts,
		Screenings:      make([]*models.ScreeningProgress, 0, len(children)),
	}
	for _, s := range children {
		progress.Screenings = append(progress.Screenings, &models.ScreeningProgress{
			ID:          s.ID,
			CandidateID: s.CandidateID,
			Status:      s.Status,
			Outcome:     s.Outcome,
			Score:       s.Score,
		})
	}

	if c.progress != nil {
		if err := c.progress.Put(ctx, bulkOperationID, progress); err != nil {
			c.logger.WithError(err).Warn("Failed to cache progress read model")
		}
	}

	return progress, nil
}

// Pause suspends dispatch for an operation. In-flight provider calls are not
// torn down; their completions still land and count.
func (c *Controller) Pause(ctx context.Context, bulkOperationID string) error {
	return c.transition(ctx, bulkOperationID,
		[]types.BulkOperationStatus{types.BulkPending, types.BulkInProgress},
		types.BulkPaused)
}

// Resume restarts dispatch for a paused operation
func (c *Controller) Resume(ctx context.Context, bulkOperationID string) error {
	err := c.transition(ctx, bulkOperationID,
		[]types.BulkOperationStatus{types.BulkPaused},
		types.BulkInProgress)
	if err != nil {
		return err
	}

	c.dispatch.Enqueue(bulkOperationID)
	return nil
}

// Cancel stops an operation permanently and cancels its undispatched
// screenings. Screenings already on a call finalize normally.
func (c *Controller) Cancel(ctx context.Context, bulkOperationID string) error {
	err := c.transition(ctx, bulkOperationID,
		[]types.BulkOperationStatus{types.BulkPending, types.BulkInProgress, types.BulkPaused},
		types.BulkCancelled)
	if err != nil {
		return err
	}

	cancelled, err := c.screenings.CancelPendingByBulkOperation(ctx, bulkOperationID)
	if err != nil {
		return apperrors.NewDatabaseError("screening cancellation", err)
	}

	c.lifecycle.recordEvent(ctx, &models.CallEvent{
		BulkOperationID: bulkOperationID,
		EventType:       models.EventCancelled,
		Source:          sourceOperator,
		Detail:          fmt.Sprintf("cancelled %d pending screenings", cancelled),
	})
	c.lifecycle.invalidateProgress(ctx, bulkOperationID)

	c.logger.WithFields(map[string]interface{}{
		"bulk_operation_id":    bulkOperationID,
		"cancelled_screenings": cancelled,
	}).Info("Bulk operation cancelled")

	return nil
}

// RetryFailed re-queues an operation's failed screenings and returns how
// many were reset. Counters are recomputed so the retried rows are no
// longer counted as failures.
func (c *Controller) RetryFailed(ctx context.Context, bulkOperationID string) (int, error) {
	reset, err := c.screenings.ResetFailedByBulkOperation(ctx, bulkOperationID)
	if err != nil {
		return 0, apperrors.NewDatabaseError("failed screening reset", err)
	}
	if reset == 0 {
		return 0, nil
	}

	if err := c.bulkOps.Recount(ctx, bulkOperationID); err != nil {
		return reset, apperrors.NewDatabaseError("counter recount", err)
	}

	if err := c.transition(ctx, bulkOperationID,
		[]types.BulkOperationStatus{types.BulkCompleted, types.BulkInProgress, types.BulkPaused, types.BulkPending},
		types.BulkInProgress); err != nil {
		return reset, err
	}

	c.dispatch.Enqueue(bulkOperationID)

	c.logger.WithFields(map[string]interface{}{
		"bulk_operation_id": bulkOperationID,
		"reset_count":       reset,
	}).Info("Failed screenings queued for retry")

	return reset, nil
}

// transition applies one guarded status change and maps a rejected guard to
// an invalid-transition error carrying the operation's actual status
func (c *Controller) transition(ctx context.Context, bulkOperationID string, from []types.BulkOperationStatus, to types.BulkOperationStatus) error {
	ok, err := c.bulkOps.TransitionStatus(ctx, bulkOperationID, from, to)
	if err != nil {
		return apperrors.NewDatabaseError("status transition", err)
	}
	if !ok {
		op, getErr := c.bulkOps.GetByID(ctx, bulkOperationID)
		if getErr != nil {
			return apperrors.NewNotFoundError("bulk operation", bulkOperationID)
		}
		return apperrors.NewInvalidTransitionError(string(op.Status), string(to))
	}

	c.lifecycle.invalidateProgress(ctx, bulkOperationID)
	return nil
}
