// Package evaluation implements the final stage: it confirms a task
// directory carries a valid measurement identifier, then copies it into a
// round-robin-chosen downstream inbox and marks the handoff complete.
// Tasks without a valid identifier are returned to the submitting user.
package evaluation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"inflow/internal/fileutil"
	"inflow/internal/measurementid"
	"inflow/internal/provenance"
	"inflow/internal/roundrobin"
	"inflow/internal/services"
	"inflow/internal/taskdir"
)

// markerPrefix names the marker file written at a downstream inbox's root
// once a task's copy has completed, per spec.md 4.5 step 4.
const markerPrefix = ".MARKER_is_finished_"

// Handler implements stage.Handler for the evaluation stage.
type Handler struct {
	workingDir   string
	errorDirName string
	validator    *measurementid.Validator
	inboxes      *roundrobin.Picker[string]
}

// New constructs an evaluation Handler. inboxes is the ordered set of
// downstream ETL directories drawn from round-robin; errorDirName is the
// basename of the per-user error directory created on demand.
func New(workingDir, errorDirName string, validator *measurementid.Validator, inboxes []string) *Handler {
	return &Handler{
		workingDir:   workingDir,
		errorDirName: errorDirName,
		validator:    validator,
		inboxes:      roundrobin.New(inboxes),
	}
}

// Name identifies this stage for logging.
func (h *Handler) Name() string { return "evaluation" }

// WorkingDir is the directory a stage.Pool polls for task directories.
func (h *Handler) WorkingDir() string { return h.workingDir }

// Process implements spec.md 4.5's per-task operation. A task rejected
// for a missing or invalid measurement identifier is parked to the user's
// error directory by this method directly (not by the caller's generic
// intervention fallback), since that failure is user-fixable.
func (h *Handler) Process(_ context.Context, taskDir string) error {
	record, err := provenance.Load(taskDir)
	if err != nil {
		return services.Wrap(services.ErrProvenance, "evaluation", "load provenance", "", err)
	}

	measurementID := record.MeasurementIDValue()
	if measurementID == "" || !h.validator.Valid(measurementID) {
		return h.rejectToUser(taskDir, record, measurementID)
	}

	record.AddHistory(h.workingDir)
	if err := provenance.Save(taskDir, record); err != nil {
		return services.Wrap(services.ErrIO, "evaluation", "rewrite provenance", "", err)
	}

	inbox := h.inboxes.Next()
	dest := filepath.Join(inbox, taskdir.ID(taskDir))
	if err := fileutil.CopyDirVerified(taskDir, dest); err != nil {
		_ = os.RemoveAll(dest)
		return services.Wrap(services.ErrIO, "evaluation", "copy to downstream inbox", "", err)
	}

	markerPath := filepath.Join(inbox, markerPrefix+taskdir.ID(taskDir))
	if err := os.WriteFile(markerPath, nil, 0o644); err != nil {
		return services.Wrap(services.ErrIO, "evaluation", "write completion marker", "", err)
	}

	if err := os.RemoveAll(taskDir); err != nil {
		return services.Wrap(services.ErrIO, "evaluation", "delete source task directory", "", err)
	}
	return nil
}

func (h *Handler) rejectToUser(taskDir string, record *provenance.Record, measurementID string) error {
	reason := rejectionReason(taskdir.ID(taskDir), record.DatasetFiles, measurementID)
	if err := taskdir.WriteError(taskDir, reason); err != nil {
		return services.Wrap(services.ErrIO, "evaluation", "write rejection note", "", err)
	}

	userErrorDir, err := taskdir.EnsureUserDir(record.User, h.errorDirName)
	if err != nil {
		return services.Wrap(services.ErrIO, "evaluation", "create user error directory", "", err)
	}
	if _, err := taskdir.MoveInto(taskDir, userErrorDir); err != nil {
		return services.Wrap(services.ErrIO, "evaluation", "park task to user error directory", "", err)
	}
	return nil
}

// rejectionReason builds the note written to error.txt for a task that
// fails measurement id validation. The missing-id case mirrors the
// summary the original produced via ErrorSummary.createSimple: headline,
// task id, dataset files, and the remediation hint.
func rejectionReason(taskID string, datasetFiles []string, measurementID string) string {
	if measurementID == "" {
		return fmt.Sprintf(
			"Missing QBiC measurement ID\n\nTask: %s\nFiles: %s\n\nFor a successful registration please provide the pre-registered QBiC measurement ID",
			taskID, strings.Join(datasetFiles, ", "))
	}
	return fmt.Sprintf("measurement identifier %q does not match the configured pattern", measurementID)
}
