// Package stage implements the worker-pool-per-stage architecture shared
// by the processing and evaluation stages: N long-running workers poll a
// working directory, claim disjoint task directories from a shared
// active-task set, and apply a Handler to each.
package stage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"inflow/internal/activeset"
	"inflow/internal/logging"
	"inflow/internal/taskdir"
)

// idlePollInterval is the sleep between poll passes when a stage's
// working directory has no unclaimed work.
const idlePollInterval = 100 * time.Millisecond

// AuditRecorder records a stage transition for operator visibility. It is
// satisfied by *audit.Ledger; stage does not import the audit package
// directly to avoid requiring a database in tests that don't need one.
type AuditRecorder interface {
	RecordStageEvent(ctx context.Context, taskID, stage, outcome, detail string) error
}

// Pool runs N workers that poll handler.WorkingDir() for task directories
// and apply handler to each, claiming through a shared active-task set so
// two workers never process the same task directory concurrently.
type Pool struct {
	handler Handler
	workers int
	active  *activeset.Set
	logger  *slog.Logger
	audit   AuditRecorder

	wg sync.WaitGroup
}

// New constructs a Pool. active is shared across every Pool in the
// process (processing and evaluation both poll independent working
// directories, but a task directory's absolute path is unique, so sharing
// one set is both correct and simpler to audit than a per-stage set).
func New(handler Handler, workers int, active *activeset.Set, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		handler: handler,
		workers: workers,
		active:  active,
		logger:  logging.NewComponentLogger(logger, handler.Name()),
	}
}

// Start creates the stage's interventions directory and launches the
// worker goroutines. It returns once the directory exists; workers run
// until ctx is canceled.
func (p *Pool) Start(ctx context.Context) error {
	if _, err := taskdir.EnsureInterventionsDir(p.handler.WorkingDir()); err != nil {
		return err
	}
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.runWorker(ctx)
	}
	return nil
}

// Stop blocks until every worker has finished its current task (if any)
// and exited. Cancel ctx before calling Stop to trigger shutdown.
func (p *Pool) Stop() {
	p.wg.Wait()
}

// WithAudit attaches an audit recorder that is notified of every task
// outcome. It returns p for chaining at construction time.
func (p *Pool) WithAudit(recorder AuditRecorder) *Pool {
	p.audit = recorder
	return p
}

func (p *Pool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed := p.claimNext()
		if claimed == "" {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idlePollInterval):
			}
			continue
		}

		p.process(ctx, claimed)
	}
}

// claimNext lists the working directory and claims the first task
// directory not already held by another worker. It returns "" if nothing
// is available.
func (p *Pool) claimNext() string {
	entries, err := os.ReadDir(p.handler.WorkingDir())
	if err != nil {
		p.logger.Error("failed to list working directory",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stage_list_failed"))
		return ""
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == taskdir.InterventionsDirName {
			continue
		}
		path := filepath.Join(p.handler.WorkingDir(), entry.Name())
		if p.active.Claim(path) {
			return path
		}
	}
	return ""
}

func (p *Pool) process(ctx context.Context, taskPath string) {
	defer p.active.Release(taskPath)

	taskID := taskdir.ID(taskPath)
	logger := logging.WithContext(ctx,
		p.logger.With(logging.String(logging.FieldTaskID, taskID)))
	logger.Debug("processing task",
		logging.String(logging.FieldEventType, "stage_task_started"))

	if err := p.handler.Process(ctx, taskPath); err != nil {
		logger.Error("stage handler failed; parking to intervention as last resort",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stage_task_failed"))
		p.parkToIntervention(taskPath, err.Error())
		p.recordEvent(ctx, taskID, "parked", err.Error())
		return
	}
	logger.Debug("task handled",
		logging.String(logging.FieldEventType, "stage_task_completed"))
	p.recordEvent(ctx, taskID, "completed", "")
}

func (p *Pool) recordEvent(ctx context.Context, taskID, outcome, detail string) {
	if p.audit == nil {
		return
	}
	if err := p.audit.RecordStageEvent(ctx, taskID, p.handler.Name(), outcome, detail); err != nil {
		p.logger.Warn("failed to record audit event",
			logging.Error(err),
			logging.String(logging.FieldEventType, "audit_record_failed"))
	}
}

func (p *Pool) parkToIntervention(taskPath, reason string) {
	interventionsDir, err := taskdir.EnsureInterventionsDir(p.handler.WorkingDir())
	if err != nil {
		p.logger.Error("failed to create interventions directory",
			logging.Error(err),
			logging.String(logging.FieldEventType, "intervention_dir_failed"))
		return
	}
	if err := taskdir.WriteError(taskPath, reason); err != nil {
		p.logger.Error("failed to write error note before parking",
			logging.Error(err),
			logging.String(logging.FieldEventType, "intervention_write_failed"))
	}
	if _, err := taskdir.MoveInto(taskPath, interventionsDir); err != nil {
		p.logger.Error("failed to park task to interventions",
			logging.Error(err),
			logging.String(logging.FieldEventType, "intervention_move_failed"))
	}
}
