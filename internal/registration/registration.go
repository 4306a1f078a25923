// Package registration implements the first stage worker pool: it drains
// the scanner's registration queue, wraps each request into a new task
// directory with a provenance record, and hands the task off to the
// processing stage's working directory.
package registration

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"inflow/internal/logging"
	"inflow/internal/metadata"
	"inflow/internal/provenance"
	"inflow/internal/registrationqueue"
	"inflow/internal/services"
	"inflow/internal/taskdir"
)

// Config describes the parameters needed to run a registration pool.
type Config struct {
	Threads          int
	WorkingDir       string
	TargetDir        string
	MetadataFileName string
	ErrorDirName     string
}

// AuditRecorder records a stage transition for operator visibility. It is
// satisfied by *audit.Ledger; registration does not import the audit
// package directly to avoid requiring a database in tests that don't need
// one.
type AuditRecorder interface {
	RecordStageEvent(ctx context.Context, taskID, stage, outcome, detail string) error
}

// Pool runs N workers that block on queue.Dequeue and register each
// request in turn.
type Pool struct {
	queue  *registrationqueue.Queue
	cfg    Config
	logger *slog.Logger
	audit  AuditRecorder

	wg sync.WaitGroup
}

// New constructs a registration Pool.
func New(queue *registrationqueue.Queue, cfg Config, logger *slog.Logger) *Pool {
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		queue:  queue,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "registration"),
	}
}

// Start launches the worker goroutines. Workers run until ctx is canceled.
func (p *Pool) Start(ctx context.Context) error {
	if _, err := taskdir.EnsureInterventionsDir(p.cfg.WorkingDir); err != nil {
		return err
	}
	p.wg.Add(p.cfg.Threads)
	for i := 0; i < p.cfg.Threads; i++ {
		go p.runWorker(ctx)
	}
	return nil
}

// Stop blocks until every worker has finished its in-flight request (if
// any) and exited. Cancel ctx before calling Stop to trigger shutdown.
func (p *Pool) Stop() {
	p.wg.Wait()
}

// WithAudit attaches an audit recorder that is notified of every request
// outcome. It returns p for chaining at construction time.
func (p *Pool) WithAudit(recorder AuditRecorder) *Pool {
	p.audit = recorder
	return p
}

func (p *Pool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		req, err := p.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		p.handle(ctx, req)
	}
}

func (p *Pool) handle(ctx context.Context, req registrationqueue.Request) {
	logger := p.logger.With(logging.String("target", req.TargetPath))
	logger.Info("processing registration request",
		logging.String(logging.FieldEventType, "registration_started"))

	taskID, err := p.register(req)
	if err == nil {
		logger.Info("registration completed",
			logging.String(logging.FieldEventType, "registration_completed"))
		p.recordEvent(ctx, taskID, "completed", "")
		return
	}

	var partialTaskDir string
	if taskID != "" {
		partialTaskDir = filepath.Join(p.cfg.WorkingDir, taskID)
	}

	var outcome string
	switch services.FailureDestination(err) {
	case services.DestinationUserError:
		outcome = "moved_to_user_error"
		taskID = p.moveBackToUser(req, partialTaskDir, err.Error())
	default:
		outcome = "parked"
		taskID = p.parkToIntervention(req, partialTaskDir, err.Error())
	}
	logger.Error("registration failed",
		logging.Error(err),
		logging.String(logging.FieldEventType, "registration_failed"))
	p.recordEvent(ctx, taskID, outcome, err.Error())
}

func (p *Pool) recordEvent(ctx context.Context, taskID, outcome, detail string) {
	if p.audit == nil || taskID == "" {
		return
	}
	if err := p.audit.RecordStageEvent(ctx, taskID, "registration", outcome, detail); err != nil {
		p.logger.Warn("failed to record audit event",
			logging.Error(err),
			logging.String(logging.FieldEventType, "audit_record_failed"))
	}
}

// register performs the steps of spec.md 4.3: locate and validate
// metadata (directory payloads only), create a task directory, move the
// payload in, write provenance, and commit to the processing stage.
func (p *Pool) register(req registrationqueue.Request) (string, error) {
	info, err := os.Stat(req.TargetPath)
	if err != nil {
		return "", services.Wrap(services.ErrIO, "registration", "stat target", "target vanished before registration", err)
	}

	var measurementID string
	var datasetFiles []string

	if info.IsDir() {
		records, mErr := p.findAndParseMetadata(req.TargetPath)
		if mErr != nil {
			return "", mErr
		}
		measurementID, records = metadata.ExtractMeasurementID(records)
		if err := metadata.ValidateFileRefs(req.TargetPath, records); err != nil {
			return "", services.Wrap(services.ErrValidation, "registration", "validate metadata", "", err)
		}
		entries, err := os.ReadDir(req.TargetPath)
		if err != nil {
			return "", services.Wrap(services.ErrIO, "registration", "list payload", "", err)
		}
		for _, entry := range entries {
			datasetFiles = append(datasetFiles, entry.Name())
		}
	} else {
		datasetFiles = []string{filepath.Base(req.TargetPath)}
	}

	taskDir, err := taskdir.New(p.cfg.WorkingDir)
	if err != nil {
		return "", services.Wrap(services.ErrIO, "registration", "create task directory", "", err)
	}
	taskID := taskdir.ID(taskDir)

	newLocation := filepath.Join(taskDir, filepath.Base(req.TargetPath))
	if err := os.Rename(req.TargetPath, newLocation); err != nil {
		return taskID, services.Wrap(services.ErrIO, "registration", "move payload into task directory", "", err)
	}

	record := &provenance.Record{
		Origin:       req.OriginPath,
		User:         req.UserPath,
		TaskID:       taskID,
		DatasetFiles: datasetFiles,
		History:      []string{p.cfg.WorkingDir},
	}
	if measurementID != "" {
		record.SetMeasurementID(measurementID)
	}
	if err := provenance.Save(taskDir, record); err != nil {
		return taskID, services.Wrap(services.ErrIO, "registration", "write provenance", "", err)
	}

	if _, err := taskdir.MoveInto(taskDir, p.cfg.TargetDir); err != nil {
		return taskID, services.Wrap(services.ErrIO, "registration", "commit task to processing", "", err)
	}
	return taskID, nil
}

func (p *Pool) findAndParseMetadata(target string) ([]metadata.Record, error) {
	path, err := metadata.FindFile(target, p.cfg.MetadataFileName)
	if err != nil {
		if errors.Is(err, metadata.ErrMetadataNotFound) {
			return nil, services.Wrap(services.ErrValidation, "registration", "find metadata", "metadata file does not exist", err)
		}
		return nil, services.Wrap(services.ErrIO, "registration", "find metadata", "", err)
	}
	records, err := metadata.ParseFile(path)
	if err != nil {
		if errors.Is(err, metadata.ErrIncompleteMetadata) {
			return nil, services.Wrap(services.ErrValidation, "registration", "parse metadata", "", err)
		}
		return nil, services.Wrap(services.ErrIO, "registration", "parse metadata", "", err)
	}
	return records, nil
}

// resolveTaskDir returns the task directory to park: the partially
// registered one if register got far enough to create it, or a fresh one
// with the still-unmoved target renamed in.
func (p *Pool) resolveTaskDir(req registrationqueue.Request, partialTaskDir string) (string, error) {
	if partialTaskDir != "" {
		if existing, err := taskdir.ReadOrigin(partialTaskDir); err == nil && existing == "" {
			if err := taskdir.WriteOrigin(partialTaskDir, req.OriginPath); err != nil {
				p.logger.Error("failed to write origin note",
					logging.Error(err),
					logging.String(logging.FieldEventType, "registration_park_failed"))
			}
		}
		return partialTaskDir, nil
	}
	taskDir, err := taskdir.New(p.cfg.WorkingDir)
	if err != nil {
		return "", err
	}
	if info, statErr := os.Stat(req.TargetPath); statErr == nil {
		dest := filepath.Join(taskDir, filepath.Base(req.TargetPath))
		if info.IsDir() || info.Mode().IsRegular() {
			_ = os.Rename(req.TargetPath, dest)
		}
	}
	if err := taskdir.WriteOrigin(taskDir, req.OriginPath); err != nil {
		p.logger.Error("failed to write origin note",
			logging.Error(err),
			logging.String(logging.FieldEventType, "registration_park_failed"))
	}
	return taskDir, nil
}

// moveBackToUser is the teacher's term for this in the original Java
// (moveBackToOrigin); it wraps the still-unregistered target into a task
// directory, attaches an error note, and parks it in the submitting user's
// error directory. It returns the parked task's id, or "" on failure.
func (p *Pool) moveBackToUser(req registrationqueue.Request, partialTaskDir, reason string) string {
	taskDir, err := p.resolveTaskDir(req, partialTaskDir)
	if err != nil {
		p.logger.Error("failed to create task directory while parking to user",
			logging.Error(err),
			logging.String(logging.FieldEventType, "registration_park_failed"))
		return ""
	}
	if err := taskdir.WriteError(taskDir, reason); err != nil {
		p.logger.Error("failed to write error note",
			logging.Error(err),
			logging.String(logging.FieldEventType, "registration_park_failed"))
	}

	userErrorDir, err := taskdir.EnsureUserDir(req.UserPath, p.cfg.ErrorDirName)
	if err != nil {
		p.logger.Error("failed to create user error directory",
			logging.Error(err),
			logging.String(logging.FieldEventType, "registration_park_failed"))
		return taskdir.ID(taskDir)
	}
	if _, err := taskdir.MoveInto(taskDir, userErrorDir); err != nil {
		p.logger.Error("failed to park task to user error directory",
			logging.Error(err),
			logging.String(logging.FieldEventType, "registration_park_failed"))
	}
	return taskdir.ID(taskDir)
}

func (p *Pool) parkToIntervention(req registrationqueue.Request, partialTaskDir, reason string) string {
	taskDir, err := p.resolveTaskDir(req, partialTaskDir)
	if err != nil {
		p.logger.Error("failed to create task directory while parking to intervention",
			logging.Error(err),
			logging.String(logging.FieldEventType, "registration_park_failed"))
		return ""
	}
	if err := taskdir.WriteError(taskDir, reason); err != nil {
		p.logger.Error("failed to write error note",
			logging.Error(err),
			logging.String(logging.FieldEventType, "registration_park_failed"))
	}

	interventionsDir, err := taskdir.EnsureInterventionsDir(p.cfg.WorkingDir)
	if err != nil {
		p.logger.Error("failed to create interventions directory",
			logging.Error(err),
			logging.String(logging.FieldEventType, "registration_park_failed"))
		return taskdir.ID(taskDir)
	}
	if _, err := taskdir.MoveInto(taskDir, interventionsDir); err != nil {
		p.logger.Error("failed to park task to interventions",
			logging.Error(err),
			logging.String(logging.FieldEventType, "registration_park_failed"))
	}
	return taskdir.ID(taskDir)
}
