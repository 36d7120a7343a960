package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/screening-orchestrator/internal/models"
)

// CallEventRepository appends call lifecycle events to ClickHouse. The log
// is audit-only: writes are best-effort and never block a state transition.
type CallEventRepository struct {
	db *ClickHouseDB
}

// NewCallEventRepository creates a new call event repository
func NewCallEventRepository(db *ClickHouseDB) *CallEventRepository {
	return &CallEventRepository{db: db}
}

// Append inserts a batch of call events
func (r *CallEventRepository) Append(ctx context.Context, events []*models.CallEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO call_events (id, screening_id, bulk_operation_id, session_id, event_type, source, detail, occurred_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare call event batch: %w", err)
	}

	for _, e := range events {
		if err := batch.Append(
			e.ID,
			e.ScreeningID,
			e.BulkOperationID,
			e.SessionID,
			e.EventType,
			e.Source,
			e.Detail,
			e.OccurredAt,
		); err != nil {
			return fmt.Errorf("failed to append call event: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send call event batch: %w", err)
	}

	return nil
}

// ListBySession retrieves the event history of one provider session
func (r *CallEventRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.CallEvent, error) {
	query := `
		SELECT id, screening_id, bulk_operation_id, session_id, event_type, source, detail, occurred_at
		FROM call_events
		WHERE session_id = ?
		ORDER BY occurred_at ASC
		LIMIT ?
	`

	rows, err := r.db.Conn().Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list call events: %w", err)
	}
	defer rows.Close()

	var events []*models.CallEvent
	for rows.Next() {
		var e models.CallEvent
		var occurredAt time.Time
		if err := rows.Scan(
			&e.ID,
			&e.ScreeningID,
			&e.BulkOperationID,
			&e.SessionID,
			&e.EventType,
			&e.Source,
			&e.Detail,
			&occurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call event: %w", err)
		}
		e.OccurredAt = occurredAt
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call events: %w", err)
	}

	return events, nil
}
