package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/types"
)

// ScheduledCallRepository handles scheduled call persistence
type ScheduledCallRepository struct {
	db *PostgresDB
}

// NewScheduledCallRepository creates a new scheduled call repository
func NewScheduledCallRepository(db *PostgresDB) *ScheduledCallRepository {
	return &ScheduledCallRepository{db: db}
}

const scheduledCallColumns = `
	id, screening_id, scheduled_time, status, retry_count,
	next_retry_at, last_attempt_at, last_error, created_at
`

// Create creates a new scheduled call record
func (r *ScheduledCallRepository) Create(ctx context.Context, sc *models.ScheduledCall) error {
	query := `
		INSERT INTO scheduled_calls (id, screening_id, scheduled_time, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		sc.ID,
		sc.ScreeningID,
		sc.ScheduledTime,
		sc.Status,
		sc.RetryCount,
		sc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduled call: %w", err)
	}

	return nil
}

// GetByID retrieves a scheduled call by ID
func (r *ScheduledCallRepository) GetByID(ctx context.Context, id string) (*models.ScheduledCall, error) {
	query := `SELECT ` + scheduledCallColumns + ` FROM scheduled_calls WHERE id = $1`

	var sc models.ScheduledCall
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&sc.ID,
		&sc.ScreeningID,
		&sc.ScheduledTime,
		&sc.Status,
		&sc.RetryCount,
		&sc.NextRetryAt,
		&sc.LastAttemptAt,
		&sc.LastError,
		&sc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("scheduled call not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get scheduled call: %w", err)
	}

	return &sc, nil
}

// ListDue retrieves pending scheduled calls whose time has arrived and
// whose backoff window, if any, has elapsed. Bounded to limit rows.
func (r *ScheduledCallRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledCall, error) {
	query := `
		SELECT ` + scheduledCallColumns + `
		FROM scheduled_calls
		WHERE status = $1
		  AND scheduled_time <= $2
		  AND (next_retry_at IS NULL OR next_retry_at <= $2)
		ORDER BY scheduled_time ASC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, types.ScheduledCallPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due scheduled calls: %w", err)
	}
	defer rows.Close()

	var calls []*models.ScheduledCall
	for rows.Next() {
		var sc models.ScheduledCall
		err := rows.Scan(
			&sc.ID,
			&sc.ScreeningID,
			&sc.ScheduledTime,
			&sc.Status,
			&sc.RetryCount,
			&sc.NextRetryAt,
			&sc.LastAttemptAt,
			&sc.LastError,
			&sc.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled call: %w", err)
		}
		calls = append(calls, &sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled calls: %w", err)
	}

	return calls, nil
}

// MarkCompleted marks a scheduled call completed after a successful dispatch
func (r *ScheduledCallRepository) MarkCompleted(ctx context.Context, id string, attemptAt time.Time) error {
	query := `
		UPDATE scheduled_calls
		SET status = $2, last_attempt_at = $3, last_error = NULL
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, id, types.ScheduledCallCompleted, attemptAt)
	if err != nil {
		return fmt.Errorf("failed to mark scheduled call completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scheduled call not found: %s", id)
	}

	return nil
}

// MarkFailed marks a scheduled call permanently failed
func (r *ScheduledCallRepository) MarkFailed(ctx context.Context, id string, attemptAt time.Time, errMsg string) error {
	query := `
		UPDATE scheduled_calls
		SET status = $2, last_attempt_at = $3, last_error = $4
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, id, types.ScheduledCallFailed, attemptAt, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark scheduled call failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scheduled call not found: %s", id)
	}

	return nil
}

// RecordRetry persists a transient failure: increments retry_count and sets
// the backoff window, leaving the row pending for a later sweep
func (r *ScheduledCallRepository) RecordRetry(ctx context.Context, id string, nextRetryAt, attemptAt time.Time, errMsg string) error {
	query := `
		UPDATE scheduled_calls
		SET retry_count = retry_count + 1, next_retry_at = $2, last_attempt_at = $3, last_error = $4
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, id, nextRetryAt, attemptAt, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record scheduled call retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scheduled call not found: %s", id)
	}

	return nil
}
