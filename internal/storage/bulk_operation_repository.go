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

// BulkOperationRepository handles bulk operation persistence.
// Counter mutations are atomic SQL increments; application code never
// read-modify-writes a counter.
type BulkOperationRepository struct {
	db *PostgresDB
}

// NewBulkOperationRepository creates a new bulk operation repository
func NewBulkOperationRepository(db *PostgresDB) *BulkOperationRepository {
	return &BulkOperationRepository{db: db}
}

const bulkOperationColumns = `
	id, role_id, scheduling_mode, batch_size, status,
	total_count, completed_count, failed_count,
	completed_at, created_at, updated_at
`

// CreateWithScreenings creates a bulk operation and its child screenings in
// one transaction, with total_count equal to the number of screenings.
func (r *BulkOperationRepository) CreateWithScreenings(ctx context.Context, op *models.BulkOperation, screenings []*models.Screening) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	op.TotalCount = len(screenings)

	opQuery := `
		INSERT INTO bulk_operations (id, role_id, scheduling_mode, batch_size, status, total_count, completed_count, failed_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $7)
	`
	if _, err := tx.Exec(ctx, opQuery,
		op.ID,
		op.RoleID,
		op.SchedulingMode,
		op.BatchSize,
		op.Status,
		op.TotalCount,
		op.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create bulk operation: %w", err)
	}

	screeningQuery := `
		INSERT INTO screenings (id, role_id, candidate_id, bulk_operation_id, status, attempts, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	for _, s := range screenings {
		if _, err := tx.Exec(ctx, screeningQuery,
			s.ID,
			s.RoleID,
			s.CandidateID,
			s.BulkOperationID,
			s.Status,
			s.Attempts,
			s.ScheduledAt,
			s.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create screening %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit bulk operation: %w", err)
	}

	return nil
}

// GetByID retrieves a bulk operation by ID
func (r *BulkOperationRepository) GetByID(ctx context.Context, id string) (*models.BulkOperation, error) {
	query := `SELECT ` + bulkOperationColumns + ` FROM bulk_operations WHERE id = $1`

	var op models.BulkOperation
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&op.ID,
		&op.RoleID,
		&op.SchedulingMode,
		&op.BatchSize,
		&op.Status,
		&op.TotalCount,
		&op.CompletedCount,
		&op.FailedCount,
		&op.CompletedAt,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bulk operation not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get bulk operation: %w", err)
	}

	return &op, nil
}

// GetStatus fetches only the control status. The dispatcher calls this
// between individual dispatches as its pause/cancel checkpoint.
func (r *BulkOperationRepository) GetStatus(ctx context.Context, id string) (types.BulkOperationStatus, error) {
	query := `SELECT status FROM bulk_operations WHERE id = $1`

	var status types.BulkOperationStatus
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("bulk operation not found: %s", id)
		}
		return "", fmt.Errorf("failed to get bulk operation status: %w", err)
	}

	return status, nil
}

// TransitionStatus updates the control status only when the current status
// is one of the allowed source states. Returns false when the guard did not
// match, so concurrent operator commands cannot clobber each other.
func (r *BulkOperationRepository) TransitionStatus(ctx context.Context, id string, from []types.BulkOperationStatus, to types.BulkOperationStatus) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition requires at least one source status")
	}

	query := `
		UPDATE bulk_operations
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`

	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	tag, err := r.db.Pool().Exec(ctx, query, id, to, fromStrs)
	if err != nil {
		return false, fmt.Errorf("failed to transition bulk operation status: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// MarkCompleted transitions an in-progress operation to completed with the
// completion timestamp
func (r *BulkOperationRepository) MarkCompleted(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	query := `
		UPDATE bulk_operations
		SET status = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`

	tag, err := r.db.Pool().Exec(ctx, query, id, types.BulkCompleted, completedAt, types.BulkInProgress)
	if err != nil {
		return false, fmt.Errorf("failed to mark bulk operation completed: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// IncrementCompleted atomically increments the completed counter
func (r *BulkOperationRepository) IncrementCompleted(ctx context.Context, id string) error {
	query := `
		UPDATE bulk_operations
		SET completed_count = completed_count + 1, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment completed count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bulk operation not found: %s", id)
	}

	return nil
}

// IncrementFailed atomically increments the failed counter
func (r *BulkOperationRepository) IncrementFailed(ctx context.Context, id string) error {
	query := `
		UPDATE bulk_operations
		SET failed_count = failed_count + 1, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment failed count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bulk operation not found: %s", id)
	}

	return nil
}

// Recount recomputes the aggregate counters from child screenings. Counters
// are best-effort projections; this repairs drift after partial failures.
func (r *BulkOperationRepository) Recount(ctx context.Context, id string) error {
	query := `
		UPDATE bulk_operations
		SET completed_count = (
				SELECT COUNT(*) FROM screenings
				WHERE bulk_operation_id = $1 AND status = $2
			),
			failed_count = (
				SELECT COUNT(*) FROM screenings
				WHERE bulk_operation_id = $1 AND status = $3
			),
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, id, types.ScreeningCompleted, types.ScreeningFailed)
	if err != nil {
		return fmt.Errorf("failed to recount bulk operation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bulk operation not found: %s", id)
	}

	return nil
}

// ListByStatus retrieves bulk operations by status
func (r *BulkOperationRepository) ListByStatus(ctx context.Context, status types.BulkOperationStatus, limit int) ([]*models.BulkOperation, error) {
	query := `
		SELECT ` + bulkOperationColumns + `
		FROM bulk_operations
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bulk operations: %w", err)
	}
	defer rows.Close()

	var ops []*models.BulkOperation
	for rows.Next() {
		var op models.BulkOperation
		err := rows.Scan(
			&op.ID,
			&op.RoleID,
			&op.SchedulingMode,
			&op.BatchSize,
			&op.Status,
			&op.TotalCount,
			&op.CompletedCount,
			&op.FailedCount,
			&op.CompletedAt,
			&op.CreatedAt,
			&op.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bulk operation: %w", err)
		}
		ops = append(ops, &op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bulk operations: %w", err)
	}

	return ops, nil
}
