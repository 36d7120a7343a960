package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/types"
)

// ScreeningRepository handles screening persistence
type ScreeningRepository struct {
	db *PostgresDB
}

// NewScreeningRepository creates a new screening repository
func NewScreeningRepository(db *PostgresDB) *ScreeningRepository {
	return &ScreeningRepository{db: db}
}

const screeningColumns = `
	id, role_id, candidate_id, bulk_operation_id, status, attempts,
	scheduled_at, started_at, completed_at, session_id,
	transcript, score, outcome, reasons,
	conversation_turns, candidate_responded, call_connected,
	first_response_time_seconds, duration_seconds, recording_url, ai_summary,
	created_at, updated_at
`

// Create creates a new screening record
func (r *ScreeningRepository) Create(ctx context.Context, s *models.Screening) error {
	query := `
		INSERT INTO screenings (id, role_id, candidate_id, bulk_operation_id, status, attempts, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		s.ID,
		s.RoleID,
		s.CandidateID,
		s.BulkOperationID,
		s.Status,
		s.Attempts,
		s.ScheduledAt,
		s.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create screening: %w", err)
	}

	return nil
}

// GetByID retrieves a screening by ID
func (r *ScreeningRepository) GetByID(ctx context.Context, id string) (*models.Screening, error) {
	query := `SELECT ` + screeningColumns + ` FROM screenings WHERE id = $1`

	s, err := r.scanOne(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("screening not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get screening: %w", err)
	}

	return s, nil
}

// GetBySessionID retrieves a screening by its provider session id.
// The session id is the reconciliation key between webhook events and
// screenings; a nil result with nil error means no screening matched.
func (r *ScreeningRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Screening, error) {
	query := `SELECT ` + screeningColumns + ` FROM screenings WHERE session_id = $1`

	s, err := r.scanOne(r.db.Pool().QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get screening by session: %w", err)
	}

	return s, nil
}

// ListPendingByBulkOperation retrieves up to limit pending screenings for a
// bulk operation in stable creation order
func (r *ScreeningRepository) ListPendingByBulkOperation(ctx context.Context, bulkOperationID string, limit int) ([]*models.Screening, error) {
	query := `
		SELECT ` + screeningColumns + `
		FROM screenings
		WHERE bulk_operation_id = $1 AND status = $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`

	return r.list(ctx, query, bulkOperationID, types.ScreeningPending, limit)
}

// CountRemaining counts screenings in a bulk operation that have not yet
// reached a terminal state
func (r *ScreeningRepository) CountRemaining(ctx context.Context, bulkOperationID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM screenings
		WHERE bulk_operation_id = $1 AND status IN ($2, $3, $4)
	`

	var count int
	err := r.db.Pool().QueryRow(ctx, query, bulkOperationID, types.ScreeningPending, types.ScreeningScheduled, types.ScreeningInProgress).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count remaining screenings: %w", err)
	}

	return count, nil
}

// CountByStatus returns per-status counts for a bulk operation's screenings
func (r *ScreeningRepository) CountByStatus(ctx context.Context, bulkOperationID string) (map[types.ScreeningStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM screenings
		WHERE bulk_operation_id = $1
		GROUP BY status
	`

	rows, err := r.db.Pool().Query(ctx, query, bulkOperationID)
	if err != nil {
		return nil, fmt.Errorf("failed to count screenings by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.ScreeningStatus]int)
	for rows.Next() {
		var status types.ScreeningStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// ListByBulkOperation retrieves all screenings for a bulk operation
func (r *ScreeningRepository) ListByBulkOperation(ctx context.Context, bulkOperationID string) ([]*models.Screening, error) {
	query := `
		SELECT ` + screeningColumns + `
		FROM screenings
		WHERE bulk_operation_id = $1
		ORDER BY created_at ASC, id ASC
	`

	return r.list(ctx, query, bulkOperationID)
}

// ListStuck retrieves in-progress screenings with a session id whose call
// started before the staleness cutoff, bounded to limit rows
func (r *ScreeningRepository) ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*models.Screening, error) {
	query := `
		SELECT ` + screeningColumns + `
		FROM screenings
		WHERE status = $1 AND session_id IS NOT NULL AND started_at < $2
		ORDER BY started_at ASC
		LIMIT $3
	`

	return r.list(ctx, query, types.ScreeningInProgress, olderThan, limit)
}

// MarkDispatched transitions a screening to in_progress after a successful
// provider call, recording the session id and incrementing attempts. The
// update is guarded on a dispatchable status so concurrent runners cannot
// double-dispatch. Returns false if the guard did not match.
func (r *ScreeningRepository) MarkDispatched(ctx context.Context, id, sessionID string, startedAt time.Time) (bool, error) {
	query := `
		UPDATE screenings
		SET status = $2, session_id = $3, started_at = $4, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status IN ($5, $6)
	`

	result, err := r.db.Pool().Exec(ctx, query,
		id,
		types.ScreeningInProgress,
		sessionID,
		startedAt,
		types.ScreeningPending,
		types.ScreeningScheduled,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark screening dispatched: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// MarkDispatchFailed transitions a screening to failed after a dispatch
// attempt that never produced a session, incrementing attempts
func (r *ScreeningRepository) MarkDispatchFailed(ctx context.Context, id, summary string) (bool, error) {
	query := `
		UPDATE screenings
		SET status = $2, ai_summary = $3, attempts = attempts + 1, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
	`

	result, err := r.db.Pool().Exec(ctx, query,
		id,
		types.ScreeningFailed,
		summary,
		types.ScreeningPending,
		types.ScreeningScheduled,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark screening dispatch-failed: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// FinalizeCompleted persists a completion result with a guarded transition
// from in_progress. Finalization is idempotent: when the webhook and the
// reconciliation poll race, whichever runs second matches zero rows and
// returns false.
func (r *ScreeningRepository) FinalizeCompleted(ctx context.Context, id string, result *models.ScreeningResult, completedAt time.Time) (bool, error) {
	transcriptJSON, err := json.Marshal(result.Transcript)
	if err != nil {
		return false, fmt.Errorf("failed to encode transcript: %w", err)
	}

	query := `
		UPDATE screenings
		SET status = $2,
			completed_at = $3,
			transcript = $4,
			score = $5,
			outcome = $6,
			reasons = $7,
			conversation_turns = $8,
			candidate_responded = $9,
			call_connected = $10,
			first_response_time_seconds = $11,
			duration_seconds = $12,
			recording_url = $13,
			ai_summary = $14,
			updated_at = NOW()
		WHERE id = $1 AND status = $15
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		id,
		types.ScreeningCompleted,
		completedAt,
		transcriptJSON,
		result.Score,
		result.Outcome,
		result.Reasons,
		result.ConversationTurns,
		result.CandidateResponded,
		result.CallConnected,
		result.FirstResponseTimeSeconds,
		result.DurationSeconds,
		result.RecordingURL,
		result.AISummary,
		types.ScreeningInProgress,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finalize screening: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// FinalizeFailed transitions an in-progress screening to failed with an
// explanatory summary. Guarded the same way as FinalizeCompleted.
func (r *ScreeningRepository) FinalizeFailed(ctx context.Context, id, summary string) (bool, error) {
	query := `
		UPDATE screenings
		SET status = $2, ai_summary = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		id,
		types.ScreeningFailed,
		summary,
		types.ScreeningInProgress,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark screening failed: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ResetFailedByBulkOperation requeues all failed screenings of a bulk
// operation back to pending with attempts reset, returning how many rows
// were reset. Used by the operator retry-failed command.
func (r *ScreeningRepository) ResetFailedByBulkOperation(ctx context.Context, bulkOperationID string) (int, error) {
	query := `
		UPDATE screenings
		SET status = $2, attempts = 0, session_id = NULL, started_at = NULL,
			completed_at = NULL, ai_summary = NULL, updated_at = NOW()
		WHERE bulk_operation_id = $1 AND status = $3
	`

	tag, err := r.db.Pool().Exec(ctx, query, bulkOperationID, types.ScreeningPending, types.ScreeningFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed screenings: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// CancelPendingByBulkOperation cancels all not-yet-dispatched screenings of
// a bulk operation. In-flight screenings are left to finish naturally.
func (r *ScreeningRepository) CancelPendingByBulkOperation(ctx context.Context, bulkOperationID string) (int, error) {
	query := `
		UPDATE screenings
		SET status = $2, updated_at = NOW()
		WHERE bulk_operation_id = $1 AND status IN ($3, $4)
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		bulkOperationID,
		types.ScreeningCancelled,
		types.ScreeningPending,
		types.ScreeningScheduled,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending screenings: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// list runs a query returning screening rows
func (r *ScreeningRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Screening, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list screenings: %w", err)
	}
	defer rows.Close()

	var screenings []*models.Screening
	for rows.Next() {
		s, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan screening: %w", err)
		}
		screenings = append(screenings, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating screenings: %w", err)
	}

	return screenings, nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for scanOne
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanOne scans a full screening row
func (r *ScreeningRepository) scanOne(row rowScanner) (*models.Screening, error) {
	var s models.Screening
	var transcriptJSON []byte

	err := row.Scan(
		&s.ID,
		&s.RoleID,
		&s.CandidateID,
		&s.BulkOperationID,
		&s.Status,
		&s.Attempts,
		&s.ScheduledAt,
		&s.StartedAt,
		&s.CompletedAt,
		&s.SessionID,
		&transcriptJSON,
		&s.Score,
		&s.Outcome,
		&s.Reasons,
		&s.ConversationTurns,
		&s.CandidateResponded,
		&s.CallConnected,
		&s.FirstResponseTimeSeconds,
		&s.DurationSeconds,
		&s.RecordingURL,
		&s.AISummary,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(transcriptJSON) > 0 {
		if err := json.Unmarshal(transcriptJSON, &s.Transcript); err != nil {
			return nil, fmt.Errorf("failed to decode transcript: %w", err)
		}
	}

	return &s, nil
}
