package screening

import (
	"context"

	"github.com/screening-orchestrator/internal/logging"
)

// EngineDeps are the external collaborators the engine is wired with
type EngineDeps struct {
	Screenings ScreeningStore
	BulkOps    BulkOperationStore
	Calls      ScheduledCallStore
	Directory  DirectoryStore
	Provider   CallProvider
	Events     EventSink          // optional
	Progress   ProgressCacheStore // optional
}

// EngineConfig bundles the per-component configuration
type EngineConfig struct {
	Dispatcher DispatcherConfig
	Runner     RunnerConfig
	Reconciler ReconcilerConfig
}

// Engine wires the orchestration components around one shared lifecycle, so
// the webhook, dispatch, and reconciliation paths all finalize screenings
// through the same guarded transitions.
type Engine struct {
	Dispatcher *BatchDispatcher
	Runner     *ScheduledCallRunner
	Ingester   *CompletionIngester
	Reconciler *StuckScreeningReconciler
	Controller *Controller
}

// NewEngine constructs a fully wired engine
func NewEngine(deps EngineDeps, config EngineConfig, logger *logging.Logger) *Engine {
	var invalidator ProgressInvalidator
	if deps.Progress != nil {
		invalidator = deps.Progress
	}

	lc := newLifecycle(deps.Screenings, deps.BulkOps, deps.Events, invalidator, logger)

	dispatcher := NewBatchDispatcher(deps.Screenings, deps.BulkOps, deps.Directory, deps.Provider, lc, config.Dispatcher, logger)

	return &Engine{
		Dispatcher: dispatcher,
		Runner:     NewScheduledCallRunner(deps.Calls, deps.Screenings, deps.Directory, deps.Provider, lc, config.Runner, logger),
		Ingester:   NewCompletionIngester(deps.Screenings, lc, logger),
		Reconciler: NewStuckScreeningReconciler(deps.Screenings, deps.Provider, lc, config.Reconciler, logger),
		Controller: NewController(deps.Screenings, deps.BulkOps, deps.Calls, deps.Directory, deps.Provider, lc, dispatcher, deps.Progress, config.Dispatcher.BatchSize, logger),
	}
}

// Start launches the background loops and blocks until the context ends
func (e *Engine) Start(ctx context.Context) {
	go e.Dispatcher.Start(ctx)
	go e.Runner.Start(ctx)
	e.Reconciler.Start(ctx)
}
