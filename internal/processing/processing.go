// Package processing implements the second stage: it normalizes a task
// directory's payload so it is always a directory, appends to provenance
// history, and hands the task off to the evaluation stage.
package processing

import (
	"context"
	"os"

	"inflow/internal/provenance"
	"inflow/internal/services"
	"inflow/internal/taskdir"
)

// Handler implements stage.Handler for the processing stage.
type Handler struct {
	workingDir string
	targetDir  string
}

// New constructs a processing Handler. workingDir is polled by the owning
// stage.Pool; targetDir is the evaluation stage's working directory.
func New(workingDir, targetDir string) *Handler {
	return &Handler{workingDir: workingDir, targetDir: targetDir}
}

// Name identifies this stage for logging.
func (h *Handler) Name() string { return "processing" }

// WorkingDir is the directory a stage.Pool polls for task directories.
func (h *Handler) WorkingDir() string { return h.workingDir }

// Process implements spec.md 4.4's per-task operation.
func (h *Handler) Process(_ context.Context, taskDir string) error {
	record, err := provenance.Load(taskDir)
	if err != nil {
		return services.Wrap(services.ErrProvenance, "processing", "load provenance", "", err)
	}

	payloadPath, err := taskdir.FindPayload(taskDir)
	if err != nil {
		return services.Wrap(services.ErrUnexpected, "processing", "find payload", "", err)
	}

	info, err := os.Stat(payloadPath)
	if err != nil {
		return services.Wrap(services.ErrIO, "processing", "stat payload", "", err)
	}
	if !info.IsDir() {
		wrapped, err := taskdir.WrapFileAsDataset(payloadPath)
		if err != nil {
			return services.Wrap(services.ErrIO, "processing", "wrap file payload", "", err)
		}
		payloadPath = wrapped
	}

	record.AddHistory(h.workingDir)
	if err := provenance.Save(taskDir, record); err != nil {
		return services.Wrap(services.ErrIO, "processing", "rewrite provenance", "", err)
	}

	if _, err := taskdir.MoveInto(taskDir, h.targetDir); err != nil {
		return services.Wrap(services.ErrIO, "processing", "commit task to evaluation", "", err)
	}

	return nil
}
