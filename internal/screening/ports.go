// Package screening implements the bulk call orchestration engine: batch
// dispatch, scheduled-call sweeps, webhook ingestion, and reconciliation of
// screenings whose completion webhook never arrived.
package screening

import (
	"context"
	"time"

	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/provider"
	"github.com/screening-orchestrator/internal/types"
)

// Store interfaces for dependency injection and testing

// ScreeningStore defines the screening persistence operations the engine uses
type ScreeningStore interface {
	Create(ctx context.Context, s *models.Screening) error
	GetByID(ctx context.Context, id string) (*models.Screening, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Screening, error)
	ListPendingByBulkOperation(ctx context.Context, bulkOperationID string, limit int) ([]*models.Screening, error)
	ListByBulkOperation(ctx context.Context, bulkOperationID string) ([]*models.Screening, error)
	ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*models.Screening, error)
	CountRemaining(ctx context.Context, bulkOperationID string) (int, error)
	CountByStatus(ctx context.Context, bulkOperationID string) (map[types.ScreeningStatus]int, error)
	MarkDispatched(ctx context.Context, id, sessionID string, startedAt time.Time) (bool, error)
	MarkDispatchFailed(ctx context.Context, id, summary string) (bool, error)
	FinalizeCompleted(ctx context.Context, id string, result *models.ScreeningResult, completedAt time.Time) (bool, error)
	FinalizeFailed(ctx context.Context, id, summary string) (bool, error)
	ResetFailedByBulkOperation(ctx context.Context, bulkOperationID string) (int, error)
	CancelPendingByBulkOperation(ctx context.Context, bulkOperationID string) (int, error)
}

// BulkOperationStore defines the bulk operation persistence operations the
// engine uses. Counter increments must be atomic at the store level.
type BulkOperationStore interface {
	CreateWithScreenings(ctx context.Context, op *models.BulkOperation, screenings []*models.Screening) error
	GetByID(ctx context.Context, id string) (*models.BulkOperation, error)
	GetStatus(ctx context.Context, id string) (types.BulkOperationStatus, error)
	TransitionStatus(ctx context.Context, id string, from []types.BulkOperationStatus, to types.BulkOperationStatus) (bool, error)
	MarkCompleted(ctx context.Context, id string, completedAt time.Time) (bool, error)
	IncrementCompleted(ctx context.Context, id string) error
	IncrementFailed(ctx context.Context, id string) error
	Recount(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status types.BulkOperationStatus, limit int) ([]*models.BulkOperation, error)
}

// ScheduledCallStore defines the scheduled call persistence operations
type ScheduledCallStore interface {
	Create(ctx context.Context, sc *models.ScheduledCall) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledCall, error)
	MarkCompleted(ctx context.Context, id string, attemptAt time.Time) error
	MarkFailed(ctx context.Context, id string, attemptAt time.Time, errMsg string) error
	RecordRetry(ctx context.Context, id string, nextRetryAt, attemptAt time.Time, errMsg string) error
}

// DirectoryStore provides read-only candidate and role lookups
type DirectoryStore interface {
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	GetRole(ctx context.Context, id string) (*models.Role, error)
}

// CallProvider is the narrow interface to the external voice provider
type CallProvider interface {
	InitiateCall(ctx context.Context, req *provider.InitiateCallRequest) (string, error)
	GetConversation(ctx context.Context, sessionID string) (*provider.Conversation, error)
}

// EventSink receives append-only call lifecycle events. Writes are
// best-effort; the engine logs and continues on sink errors.
type EventSink interface {
	Append(ctx context.Context, events []*models.CallEvent) error
}

// ProgressInvalidator drops cached read models after state changes
type ProgressInvalidator interface {
	Invalidate(ctx context.Context, bulkOperationID string) error
}

// ProgressCacheStore is the full read-model cache used by the controller.
// Get returns nil with no error on a miss.
type ProgressCacheStore interface {
	ProgressInvalidator
	Get(ctx context.Context, bulkOperationID string) (*models.BulkOperationProgress, error)
	Put(ctx context.Context, bulkOperationID string, progress *models.BulkOperationProgress) error
}

// DispatchQueue accepts requests to run dispatch for a bulk operation
type DispatchQueue interface {
	Enqueue(bulkOperationID string)
}
