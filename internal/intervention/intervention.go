// Package intervention lists and requeues task directories parked in a
// stage's interventions directory: the ones a worker pool gave up on
// because the failure looked like a system problem rather than something
// the submitting user could fix.
package intervention

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"inflow/internal/config"
	"inflow/internal/fileutil"
	"inflow/internal/provenance"
	"inflow/internal/taskdir"
)

// Stage identifies which worker pool parked an entry.
type Stage string

const (
	StageRegistration Stage = "registration"
	StageProcessing   Stage = "processing"
	StageEvaluation   Stage = "evaluation"
)

// Entry describes one parked task directory.
type Entry struct {
	Stage   Stage
	TaskID  string
	Path    string
	Reason  string
	ModTime time.Time
}

func workingDirs(cfg *config.Config) map[Stage]string {
	return map[Stage]string{
		StageRegistration: cfg.Registration.WorkingDir,
		StageProcessing:   cfg.Processing.WorkingDir,
		StageEvaluation:   cfg.Evaluation.WorkingDir,
	}
}

// List returns every parked task directory across all three stages,
// oldest first.
func List(cfg *config.Config) ([]Entry, error) {
	var entries []Entry
	for stage, workingDir := range workingDirs(cfg) {
		stageEntries, err := listStage(stage, workingDir)
		if err != nil {
			return nil, err
		}
		entries = append(entries, stageEntries...)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.Before(entries[j].ModTime)
	})
	return entries, nil
}

func listStage(stage Stage, workingDir string) ([]Entry, error) {
	dir := filepath.Join(workingDir, taskdir.InterventionsDirName)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s interventions: %w", stage, err)
	}

	var entries []Entry
	for _, dirEntry := range dirEntries {
		if !dirEntry.IsDir() {
			continue
		}
		taskPath := filepath.Join(dir, dirEntry.Name())
		info, err := dirEntry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", taskPath, err)
		}
		reason, err := taskdir.ReadError(taskPath)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Stage:   stage,
			TaskID:  dirEntry.Name(),
			Path:    taskPath,
			Reason:  reason,
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

// Find locates a single parked task directory by stage and task id.
func Find(cfg *config.Config, stage Stage, taskID string) (Entry, error) {
	entries, err := listStage(stage, workingDirs(cfg)[stage])
	if err != nil {
		return Entry{}, err
	}
	for _, entry := range entries {
		if entry.TaskID == taskID {
			return entry, nil
		}
	}
	return Entry{}, fmt.Errorf("no %s intervention with task id %q", stage, taskID)
}

// Requeue returns a parked task directory to a place where the running
// daemon will pick it up again.
//
// Processing and evaluation interventions already carry a provenance
// record, so requeuing them is a plain move back to the stage's working
// directory root, where the stage's poll loop finds them.
//
// Registration interventions are parked before a provenance record
// exists, so there is nothing for a worker pool to poll for; instead the
// payload is moved back into the user's drop folder recorded in
// origin.txt, where the scanner will notice it and re-enqueue it as a
// fresh request.
func Requeue(cfg *config.Config, entry Entry) error {
	switch entry.Stage {
	case StageRegistration:
		return requeueRegistration(entry)
	case StageProcessing, StageEvaluation:
		return requeueStage(cfg, entry)
	default:
		return fmt.Errorf("unknown stage %q", entry.Stage)
	}
}

func requeueStage(cfg *config.Config, entry Entry) error {
	workingDir := workingDirs(cfg)[entry.Stage]
	if _, err := taskdir.MoveInto(entry.Path, workingDir); err != nil {
		return fmt.Errorf("requeue %s task %s: %w", entry.Stage, entry.TaskID, err)
	}
	return nil
}

func requeueRegistration(entry Entry) error {
	origin, err := taskdir.ReadOrigin(entry.Path)
	if err != nil {
		return err
	}
	if origin == "" {
		if record, provErr := provenance.Load(entry.Path); provErr == nil {
			origin = record.Origin
		}
	}
	if origin == "" {
		return fmt.Errorf("registration task %s has no recorded origin to requeue to", entry.TaskID)
	}
	payloadPath, err := taskdir.FindPayload(entry.Path)
	if err != nil {
		return fmt.Errorf("locate payload for task %s: %w", entry.TaskID, err)
	}
	dest := filepath.Join(origin, filepath.Base(payloadPath))
	if err := fileutil.MoveAtomic(payloadPath, dest); err != nil {
		return fmt.Errorf("requeue registration task %s: %w", entry.TaskID, err)
	}
	if err := os.RemoveAll(entry.Path); err != nil {
		return fmt.Errorf("remove spent task directory %s: %w", entry.Path, err)
	}
	return nil
}

// RequeueAll requeues every parked task directory for the given stage,
// continuing past individual failures and returning the count that
// succeeded alongside any errors encountered.
func RequeueAll(cfg *config.Config, stage Stage) (int, []error) {
	return RequeueAllWithProgress(cfg, stage, nil)
}

// RequeueAllWithProgress behaves like RequeueAll, invoking onItem after
// each attempted requeue (success or failure) so a caller can drive a
// progress indicator. onItem may be nil.
func RequeueAllWithProgress(cfg *config.Config, stage Stage, onItem func()) (int, []error) {
	entries, err := listStage(stage, workingDirs(cfg)[stage])
	if err != nil {
		return 0, []error{err}
	}
	var succeeded int
	var errs []error
	for _, entry := range entries {
		if err := Requeue(cfg, entry); err != nil {
			errs = append(errs, err)
		} else {
			succeeded++
		}
		if onItem != nil {
			onItem()
		}
	}
	return succeeded, errs
}
