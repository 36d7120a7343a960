package screening

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/provider"
	"github.com/screening-orchestrator/internal/types"
)

// In-memory stores mirroring the SQL semantics of the real repositories,
// including the status guards the engine's idempotence depends on.

type fakeScreeningStore struct {
	mu    sync.Mutex
	rows  map[string]*models.Screening
	order []string
}

func newFakeScreeningStore() *fakeScreeningStore {
	return &fakeScreeningStore{rows: make(map[string]*models.Screening)}
}

func (f *fakeScreeningStore) Create(_ context.Context, s *models.Screening) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *s
	f.rows[s.ID] = &copied
	f.order = append(f.order, s.ID)
	return nil
}

func (f *fakeScreeningStore) GetByID(_ context.Context, id string) (*models.Screening, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil, fmt.Errorf("screening not found: %s", id)
	}
	copied := *s
	return &copied, nil
}

func (f *fakeScreeningStore) GetBySessionID(_ context.Context, sessionID string) (*models.Screening, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.rows {
		if s.SessionID != nil && *s.SessionID == sessionID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeScreeningStore) ListPendingByBulkOperation(_ context.Context, bulkOperationID string, limit int) ([]*models.Screening, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Screening
	for _, id := range f.order {
		s := f.rows[id]
		if s.BulkOperationID == nil || *s.BulkOperationID != bulkOperationID {
			continue
		}
		if s.Status != types.ScreeningPending {
			continue
		}
		copied := *s
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeScreeningStore) ListByBulkOperation(_ context.Context, bulkOperationID string) ([]*models.Screening, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Screening
	for _, id := range f.order {
		s := f.rows[id]
		if s.BulkOperationID != nil && *s.BulkOperationID == bulkOperationID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeScreeningStore) ListStuck(_ context.Context, olderThan time.Time, limit int) ([]*models.Screening, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Screening
	for _, id := range f.order {
		s := f.rows[id]
		if s.Status != types.ScreeningInProgress || s.SessionID == nil {
			continue
		}
		if s.StartedAt == nil || !s.StartedAt.Before(olderThan) {
			continue
		}
		copied := *s
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeScreeningStore) CountRemaining(_ context.Context, bulkOperationID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.rows {
		if s.BulkOperationID == nil || *s.BulkOperationID != bulkOperationID {
			continue
		}
		switch s.Status {
		case types.ScreeningPending, types.ScreeningScheduled, types.ScreeningInProgress:
			count++
		}
	}
	return count, nil
}

func (f *fakeScreeningStore) CountByStatus(_ context.Context, bulkOperationID string) (map[types.ScreeningStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[types.ScreeningStatus]int)
	for _, s := range f.rows {
		if s.BulkOperationID != nil && *s.BulkOperationID == bulkOperationID {
			counts[s.Status]++
		}
	}
	return counts, nil
}

func (f *fakeScreeningStore) MarkDispatched(_ context.Context, id, sessionID string, startedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	if s.Status != types.ScreeningPending && s.Status != types.ScreeningScheduled {
		return false, nil
	}
	s.Status = types.ScreeningInProgress
	s.SessionID = &sessionID
	s.StartedAt = &startedAt
	s.Attempts++
	return true, nil
}

func (f *fakeScreeningStore) MarkDispatchFailed(_ context.Context, id, summary string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	if s.Status != types.ScreeningPending && s.Status != types.ScreeningScheduled {
		return false, nil
	}
	s.Status = types.ScreeningFailed
	s.AISummary = &summary
	s.Attempts++
	return true, nil
}

func (f *fakeScreeningStore) FinalizeCompleted(_ context.Context, id string, result *models.ScreeningResult, completedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok || s.Status != types.ScreeningInProgress {
		return false, nil
	}
	s.Status = types.ScreeningCompleted
	s.CompletedAt = &completedAt
	s.Transcript = result.Transcript
	score := result.Score
	s.Score = &score
	outcome := result.Outcome
	s.Outcome = &outcome
	s.Reasons = result.Reasons
	turns := result.ConversationTurns
	s.ConversationTurns = &turns
	responded := result.CandidateResponded
	s.CandidateResponded = &responded
	connected := result.CallConnected
	s.CallConnected = &connected
	s.FirstResponseTimeSeconds = result.FirstResponseTimeSeconds
	s.DurationSeconds = result.DurationSeconds
	s.RecordingURL = result.RecordingURL
	s.AISummary = result.AISummary
	return true, nil
}

func (f *fakeScreeningStore) FinalizeFailed(_ context.Context, id, summary string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok || s.Status != types.ScreeningInProgress {
		return false, nil
	}
	s.Status = types.ScreeningFailed
	s.AISummary = &summary
	return true, nil
}

func (f *fakeScreeningStore) ResetFailedByBulkOperation(_ context.Context, bulkOperationID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.rows {
		if s.BulkOperationID != nil && *s.BulkOperationID == bulkOperationID && s.Status == types.ScreeningFailed {
			s.Status = types.ScreeningPending
			s.Attempts = 0
			s.SessionID = nil
			s.StartedAt = nil
			count++
		}
	}
	return count, nil
}

func (f *fakeScreeningStore) CancelPendingByBulkOperation(_ context.Context, bulkOperationID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.rows {
		if s.BulkOperationID != nil && *s.BulkOperationID == bulkOperationID &&
			(s.Status == types.ScreeningPending || s.Status == types.ScreeningScheduled) {
			s.Status = types.ScreeningCancelled
			count++
		}
	}
	return count, nil
}

type fakeBulkOperationStore struct {
	mu   sync.Mutex
	rows map[string]*models.BulkOperation

	// screenings receives the child rows created by CreateWithScreenings,
	// mirroring the real repository's single transaction
	screenings *fakeScreeningStore

	// pauseAfterChecks lets tests flip the status after N GetStatus calls
	// to exercise mid-chunk pause behavior
	statusChecks     int
	pauseAfterChecks int

	recountFn func(id string) error
}

func newFakeBulkOperationStore() *fakeBulkOperationStore {
	return &fakeBulkOperationStore{rows: make(map[string]*models.BulkOperation)}
}

func (f *fakeBulkOperationStore) CreateWithScreenings(ctx context.Context, op *models.BulkOperation, screenings []*models.Screening) error {
	f.mu.Lock()
	copied := *op
	copied.TotalCount = len(screenings)
	f.rows[op.ID] = &copied
	op.TotalCount = copied.TotalCount
	f.mu.Unlock()
	for _, s := range screenings {
		if err := f.screenings.Create(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBulkOperationStore) GetByID(_ context.Context, id string) (*models.BulkOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.rows[id]
	if !ok {
		return nil, fmt.Errorf("bulk operation not found: %s", id)
	}
	copied := *op
	return &copied, nil
}

func (f *fakeBulkOperationStore) GetStatus(_ context.Context, id string) (types.BulkOperationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.rows[id]
	if !ok {
		return "", fmt.Errorf("bulk operation not found: %s", id)
	}
	f.statusChecks++
	if f.pauseAfterChecks > 0 && f.statusChecks > f.pauseAfterChecks {
		op.Status = types.BulkPaused
	}
	return op.Status, nil
}

func (f *fakeBulkOperationStore) TransitionStatus(_ context.Context, id string, from []types.BulkOperationStatus, to types.BulkOperationStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if op.Status == s {
			op.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBulkOperationStore) MarkCompleted(_ context.Context, id string, completedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.rows[id]
	if !ok || op.Status != types.BulkInProgress {
		return false, nil
	}
	op.Status = types.BulkCompleted
	op.CompletedAt = &completedAt
	return true, nil
}

func (f *fakeBulkOperationStore) IncrementCompleted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.rows[id]
	if !ok {
		return fmt.Errorf("bulk operation not found: %s", id)
	}
	op.CompletedCount++
	return nil
}

func (f *fakeBulkOperationStore) IncrementFailed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.rows[id]
	if !ok {
		return fmt.Errorf("bulk operation not found: %s", id)
	}
	op.FailedCount++
	return nil
}

func (f *fakeBulkOperationStore) Recount(_ context.Context, id string) error {
	// Recount needs the screening rows; tests wire it through recountFn
	// when they exercise the repair path.
	if f.recountFn != nil {
		return f.recountFn(id)
	}
	return nil
}

func (f *fakeBulkOperationStore) ListByStatus(_ context.Context, status types.BulkOperationStatus, limit int) ([]*models.BulkOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.BulkOperation
	for _, op := range f.rows {
		if op.Status == status {
			copied := *op
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeScheduledCallStore struct {
	mu   sync.Mutex
	rows map[string]*models.ScheduledCall
}

func newFakeScheduledCallStore() *fakeScheduledCallStore {
	return &fakeScheduledCallStore{rows: make(map[string]*models.ScheduledCall)}
}

func (f *fakeScheduledCallStore) Create(_ context.Context, sc *models.ScheduledCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *sc
	f.rows[sc.ID] = &copied
	return nil
}

func (f *fakeScheduledCallStore) ListDue(_ context.Context, now time.Time, limit int) ([]*models.ScheduledCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ScheduledCall
	for _, sc := range f.rows {
		if sc.Status != types.ScheduledCallPending {
			continue
		}
		if sc.ScheduledTime.After(now) {
			continue
		}
		if sc.NextRetryAt != nil && sc.NextRetryAt.After(now) {
			continue
		}
		copied := *sc
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeScheduledCallStore) MarkCompleted(_ context.Context, id string, attemptAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.rows[id]
	if !ok {
		return fmt.Errorf("scheduled call not found: %s", id)
	}
	sc.Status = types.ScheduledCallCompleted
	sc.LastAttemptAt = &attemptAt
	return nil
}

func (f *fakeScheduledCallStore) MarkFailed(_ context.Context, id string, attemptAt time.Time, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.rows[id]
	if !ok {
		return fmt.Errorf("scheduled call not found: %s", id)
	}
	sc.Status = types.ScheduledCallFailed
	sc.LastAttemptAt = &attemptAt
	sc.LastError = &errMsg
	return nil
}

func (f *fakeScheduledCallStore) RecordRetry(_ context.Context, id string, nextRetryAt, attemptAt time.Time, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.rows[id]
	if !ok {
		return fmt.Errorf("scheduled call not found: %s", id)
	}
	sc.RetryCount++
	sc.NextRetryAt = &nextRetryAt
	sc.LastAttemptAt = &attemptAt
	sc.LastError = &errMsg
	return nil
}

type fakeDirectory struct {
	candidates map[string]*models.Candidate
	roles      map[string]*models.Role
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		candidates: make(map[string]*models.Candidate),
		roles:      make(map[string]*models.Role),
	}
}

func (f *fakeDirectory) GetCandidate(_ context.Context, id string) (*models.Candidate, error) {
	c, ok := f.candidates[id]
	if !ok {
		return nil, fmt.Errorf("candidate not found: %s", id)
	}
	return c, nil
}

func (f *fakeDirectory) GetRole(_ context.Context, id string) (*models.Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return nil, fmt.Errorf("role not found: %s", id)
	}
	return r, nil
}

type initiatedCall struct {
	req       *provider.InitiateCallRequest
	sessionID string
}

type fakeProvider struct {
	mu sync.Mutex

	calls        []initiatedCall
	initiateErr  error
	initiateErrs []error // consumed one per call when set

	conversations map[string]*provider.Conversation
	getErr        map[string]error
	getCalls      int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		conversations: make(map[string]*provider.Conversation),
		getErr:        make(map[string]error),
	}
}

func (f *fakeProvider) InitiateCall(_ context.Context, req *provider.InitiateCallRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.initiateErrs) > 0 {
		err := f.initiateErrs[0]
		f.initiateErrs = f.initiateErrs[1:]
		if err != nil {
			return "", err
		}
	} else if f.initiateErr != nil {
		return "", f.initiateErr
	}
	sessionID := fmt.Sprintf("session-%d", len(f.calls)+1)
	f.calls = append(f.calls, initiatedCall{req: req, sessionID: sessionID})
	return sessionID, nil
}

func (f *fakeProvider) GetConversation(_ context.Context, sessionID string) (*provider.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if err, ok := f.getErr[sessionID]; ok {
		return nil, err
	}
	conv, ok := f.conversations[sessionID]
	if !ok {
		return nil, provider.ErrNotFound
	}
	return conv, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeEventSink struct {
	mu     sync.Mutex
	events []*models.CallEvent
}

func (f *fakeEventSink) Append(_ context.Context, events []*models.CallEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeEventSink) byType(eventType string) []*models.CallEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CallEvent
	for _, e := range f.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

var (
	_ ScreeningStore     = (*fakeScreeningStore)(nil)
	_ BulkOperationStore = (*fakeBulkOperationStore)(nil)
	_ ScheduledCallStore = (*fakeScheduledCallStore)(nil)
	_ DirectoryStore     = (*fakeDirectory)(nil)
	_ CallProvider       = (*fakeProvider)(nil)
	_ EventSink          = (*fakeEventSink)(nil)
)
