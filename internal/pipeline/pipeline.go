// Package pipeline wires the scanner, registration queue, and the three
// stage worker pools into a single process lifecycle: construction from
// configuration, a two-phase cooperative start/stop, and an
// operator-facing single-instance lock.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofrs/flock"

	"inflow/internal/activeset"
	"inflow/internal/audit"
	"inflow/internal/config"
	"inflow/internal/evaluation"
	"inflow/internal/logging"
	"inflow/internal/measurementid"
	"inflow/internal/processing"
	"inflow/internal/registration"
	"inflow/internal/registrationqueue"
	"inflow/internal/scanner"
	"inflow/internal/stage"
)

// Pipeline owns every long-running component of the dataset intake
// process and enforces single-instance execution via a lock file.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	scanner          *scanner.Scanner
	registrationPool *registration.Pool
	processingPool   *stage.Pool
	evaluationPool   *stage.Pool
	ledger           *audit.Ledger

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a Pipeline from configuration. It starts no goroutines
// and creates no pipeline directories; call Start for that. When the audit
// ledger is enabled, New opens it, which creates the ledger's parent
// directory if it is missing.
func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	queue := registrationqueue.New(queueCapacity(cfg))

	s, err := scanner.New(scanner.Config{
		RootDirectory:       cfg.Scanner.Directory,
		RegistrationDirName: cfg.Users.RegistrationDirName,
		Interval:            cfg.Scanner.Interval(),
		Queue:               queue,
		Logger:              logger,
	})
	if err != nil {
		return nil, fmt.Errorf("construct scanner: %w", err)
	}

	registrationPool := registration.New(queue, registration.Config{
		Threads:          cfg.Registration.Threads,
		WorkingDir:       cfg.Registration.WorkingDir,
		TargetDir:        cfg.Registration.TargetDir,
		MetadataFileName: cfg.Registration.MetadataFileName,
		ErrorDirName:     cfg.Users.ErrorDirName,
	}, logger)

	active := activeset.New()

	processingHandler := processing.New(cfg.Processing.WorkingDir, cfg.Evaluation.WorkingDir)
	processingPool := stage.New(processingHandler, cfg.Processing.Threads, active, logger)

	validator, err := measurementid.New(cfg.Evaluation.MeasurementIDPattern)
	if err != nil {
		return nil, fmt.Errorf("construct measurement id validator: %w", err)
	}
	evaluationHandler := evaluation.New(cfg.Evaluation.WorkingDir, cfg.Users.ErrorDirName, validator, cfg.Evaluation.TargetDirs)
	evaluationPool := stage.New(evaluationHandler, cfg.Evaluation.Threads, active, logger)

	var ledger *audit.Ledger
	if cfg.Audit.Enabled {
		ledger, err = audit.Open(cfg.Audit.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open audit ledger: %w", err)
		}
		registrationPool.WithAudit(ledger)
		processingPool.WithAudit(ledger)
		evaluationPool.WithAudit(ledger)
	}

	lockPath := cfg.Daemon.Lock.Path

	return &Pipeline{
		cfg:              cfg,
		logger:           logging.NewComponentLogger(logger, "pipeline"),
		lockPath:         lockPath,
		lock:             flock.New(lockPath),
		scanner:          s,
		registrationPool: registrationPool,
		processingPool:   processingPool,
		evaluationPool:   evaluationPool,
		ledger:           ledger,
	}, nil
}

// Start acquires the single-instance lock, ensures every configured
// directory exists, and launches every component's goroutines.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.running.Load() {
		return errors.New("pipeline already running")
	}

	ok, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !ok {
		return errors.New("another inflow daemon instance is already running")
	}

	if err := p.cfg.EnsureDirectories(); err != nil {
		_ = p.lock.Unlock()
		return fmt.Errorf("ensure directories: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if err := p.registrationPool.Start(runCtx); err != nil {
		cancel()
		_ = p.lock.Unlock()
		return fmt.Errorf("start registration pool: %w", err)
	}
	if err := p.processingPool.Start(runCtx); err != nil {
		cancel()
		_ = p.lock.Unlock()
		return fmt.Errorf("start processing pool: %w", err)
	}
	if err := p.evaluationPool.Start(runCtx); err != nil {
		cancel()
		_ = p.lock.Unlock()
		return fmt.Errorf("start evaluation pool: %w", err)
	}

	go p.scanner.Run(runCtx)

	p.running.Store(true)
	p.logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_started"),
		logging.String("lock", p.lockPath))
	return nil
}

// Stop cancels the shared context and waits for every in-flight task to
// reach a safe stopping point before returning.
func (p *Pipeline) Stop() {
	if !p.running.Load() {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.registrationPool.Stop()
	p.processingPool.Stop()
	p.evaluationPool.Stop()

	if p.ledger != nil {
		if err := p.ledger.Close(); err != nil {
			p.logger.Warn("failed to close audit ledger",
				logging.Error(err),
				logging.String(logging.FieldEventType, "audit_close_failed"))
		}
	}

	if err := p.lock.Unlock(); err != nil {
		p.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"))
	}
	p.running.Store(false)
	p.logger.Info("pipeline stopped",
		logging.String(logging.FieldEventType, "pipeline_stopped"))
}

func queueCapacity(cfg *config.Config) int {
	capacity := cfg.Registration.Threads * 4
	if capacity <= 0 {
		capacity = 16
	}
	return capacity
}
