package models

import (
	"time"

	"github.com/screening-orchestrator/internal/types"
)

// BulkOperation represents a campaign grouping of screenings issued together.
// The status field is the only field an operator command mutates directly;
// counters are derived projections maintained with atomic increments.
type BulkOperation struct {
	ID             string                    `json:"id" db:"id"`
	RoleID         string                    `json:"roleId" db:"role_id"`
	SchedulingMode types.SchedulingMode      `json:"schedulingMode" db:"scheduling_mode"`
	BatchSize      int                       `json:"batchSize" db:"batch_size"`
	Status         types.BulkOperationStatus `json:"status" db:"status"`
	TotalCount     int                       `json:"totalCount" db:"total_count"`
	CompletedCount int                       `json:"completedCount" db:"completed_count"`
	FailedCount    int                       `json:"failedCount" db:"failed_count"`
	CompletedAt    *time.Time                `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt      time.Time                 `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time                 `json:"updatedAt" db:"updated_at"`
}

// BulkOperationProgress is the read model served to progress dashboards.
// InProgressCount is derived live from child screenings.
type BulkOperationProgress struct {
	Operation       *BulkOperation                     `json:"operation"`
	InProgressCount int                                `json:"inProgressCount"`
	PendingCount    int                                `json:"pendingCount"`
	StatusCounts    map[types.ScreeningStatus]int      `json:"statusCounts"`
	Screenings      []*ScreeningProgress               `json:"screenings,omitempty"`
}

// ScreeningProgress is the per-screening slice of the read model.
type ScreeningProgress struct {
	ID          string                `json:"id"`
	CandidateID string                `json:"candidateId"`
	Status      types.ScreeningStatus `json:"status"`
	Outcome     *types.Outcome        `json:"outcome,omitempty"`
	Score       *float64              `json:"score,omitempty"`
}
