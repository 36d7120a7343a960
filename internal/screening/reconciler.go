package screening

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/screening-orchestrator/internal/logging"
	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/provider"
)

// ReconcilerConfig configures the stuck-screening sweep
type ReconcilerConfig struct {
	// Interval between sweeps
	Interval time.Duration
	// StalenessThreshold is how long a screening may sit in progress
	// before it is considered potentially stuck
	StalenessThreshold time.Duration
	// PageSize bounds how many stuck rows one sweep examines
	PageSize int
}

// StuckScreeningReconciler is the safety net for lost webhooks. It polls the
// provider for screenings that have been in progress past the staleness
// threshold and finalizes them from the provider's record, through the same
// guarded path the webhook uses.
type StuckScreeningReconciler struct {
	screenings ScreeningStore
	provider   CallProvider
	lifecycle  *lifecycle
	config     ReconcilerConfig
	logger     *logging.Logger
	now        func() time.Time
}

// NewStuckScreeningReconciler creates a new reconciler
func NewStuckScreeningReconciler(
	screenings ScreeningStore,
	callProvider CallProvider,
	lc *lifecycle,
	config ReconcilerConfig,
	logger *logging.Logger,
) *StuckScreeningReconciler {
	if config.Interval <= 0 {
		config.Interval = 2 * time.Minute
	}
	if config.StalenessThreshold <= 0 {
		config.StalenessThreshold = 5 * time.Minute
	}
	if config.PageSize <= 0 {
		config.PageSize = 10
	}

	return &StuckScreeningReconciler{
		screenings: screenings,
		provider:   callProvider,
		lifecycle:  lc,
		config:     config,
		logger:     logger.WithField("component", "stuck_screening_reconciler"),
		now:        time.Now,
	}
}

// Start runs periodic sweeps until the context is cancelled
func (r *StuckScreeningReconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.WithFields(map[string]interface{}{
		"interval":            r.config.Interval.String(),
		"staleness_threshold": r.config.StalenessThreshold.String(),
	}).Info("Stuck screening reconciler started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stuck screening reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.RunSweep(ctx); err != nil {
				r.logger.WithError(err).Error("Reconciliation sweep failed")
			}
		}
	}
}

// RunSweep examines one page of stale in-progress screenings and returns how
// many rows it examined
func (r *StuckScreeningReconciler) RunSweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.config.StalenessThreshold)

	stuck, err := r.screenings.ListStuck(ctx, cutoff, r.config.PageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stuck screenings: %w", err)
	}

	for _, s := range stuck {
		r.reconcileOne(ctx, s)
	}

	return len(stuck), nil
}

// reconcileOne resolves one stale screening against the provider's record.
// Per-row errors are logged, never propagated, so one bad row cannot stall
// the sweep behind it.
func (r *StuckScreeningReconciler) reconcileOne(ctx context.Context, s *models.Screening) {
	logger := r.logger.WithFields(map[string]interface{}{
		"screening_id": s.ID,
		"session_id":   derefOr(s.SessionID),
	})

	conv, err := r.provider.GetConversation(ctx, *s.SessionID)
	switch {
	case errors.Is(err, provider.ErrNotFound):
		// The provider has no record of the session, so no webhook is
		// ever coming for it.
		logger.Warn("Provider has no record of session, failing screening")
		if _, ferr := r.lifecycle.finalizeFailed(ctx, s,
			fmt.Sprintf("no conversation data found for session %s", *s.SessionID),
			sourceReconciler); ferr != nil {
			logger.WithError(ferr).Error("Failed to finalize missing-session screening")
		}
		return
	case errors.Is(err, provider.ErrRateLimited):
		// Leave the row for the next sweep rather than burning more
		// provider quota.
		logger.Warn("Provider rate limited, deferring reconciliation")
		return
	case err != nil:
		logger.WithError(err).Error("Failed to fetch conversation for reconciliation")
		return
	}

	if conv.IsOngoing() {
		logger.WithField("conversation_status", conv.Status).Debug("Call still active, leaving screening")
		return
	}

	if _, err := r.lifecycle.finalizeCompleted(ctx, s, conv, sourceReconciler); err != nil {
		logger.WithError(err).Error("Failed to finalize reconciled screening")
	}
}
