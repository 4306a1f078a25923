// Package taskdir creates and manipulates task directories: the
// UUID-named units of work that carry one payload and a provenance.json
// through the pipeline's stages.
package taskdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"inflow/internal/fileutil"
)

// ErrorFileName is the basename of the plaintext error note written into
// a parked task directory.
const ErrorFileName = "error.txt"

// OriginFileName is the basename of the plaintext note recording where a
// registration-stage intervention's payload originated, written only for
// task directories parked before a provenance record exists to carry that
// information.
const OriginFileName = "origin.txt"

// InterventionsDirName is the basename of a stage's local quarantine
// directory for tasks that failed in a way the submitting user cannot fix.
const InterventionsDirName = "interventions"

// New creates a fresh task directory under workingDir, named with a new
// version-4 UUID, and returns its absolute path.
func New(workingDir string) (string, error) {
	id := uuid.NewString()
	dir := filepath.Join(workingDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create task directory: %w", err)
	}
	return dir, nil
}

// ID returns the UUID name of a task directory.
func ID(taskDir string) string {
	return filepath.Base(taskDir)
}

// WriteError writes reason to error.txt inside taskDir.
func WriteError(taskDir, reason string) error {
	path := filepath.Join(taskDir, ErrorFileName)
	if err := os.WriteFile(path, []byte(reason), 0o644); err != nil {
		return fmt.Errorf("write error note: %w", err)
	}
	return nil
}

// WriteOrigin writes origin to origin.txt inside taskDir.
func WriteOrigin(taskDir, origin string) error {
	path := filepath.Join(taskDir, OriginFileName)
	if err := os.WriteFile(path, []byte(origin), 0o644); err != nil {
		return fmt.Errorf("write origin note: %w", err)
	}
	return nil
}

// ReadOrigin returns the contents of origin.txt inside taskDir, or "" if
// the task directory has none.
func ReadOrigin(taskDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(taskDir, OriginFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read origin note: %w", err)
	}
	return string(data), nil
}

// ReadError returns the contents of error.txt inside taskDir, or "" if
// the task directory has none.
func ReadError(taskDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(taskDir, ErrorFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read error note: %w", err)
	}
	return string(data), nil
}

// MoveInto atomically moves taskDir into destDir, preserving its UUID
// name, and returns the new absolute path.
func MoveInto(taskDir, destDir string) (string, error) {
	dest := filepath.Join(destDir, filepath.Base(taskDir))
	if err := fileutil.MoveAtomic(taskDir, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// FindPayload returns the single entry in taskDir that is not
// provenance.json, error.txt or origin.txt. It returns an error if there is not
// exactly one such entry.
func FindPayload(taskDir string) (string, error) {
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return "", fmt.Errorf("read task directory: %w", err)
	}
	var payload string
	count := 0
	for _, entry := range entries {
		name := entry.Name()
		if name == "provenance.json" || name == ErrorFileName || name == OriginFileName {
			continue
		}
		payload = name
		count++
	}
	switch count {
	case 0:
		return "", fmt.Errorf("task directory %q has no payload", taskDir)
	case 1:
		return filepath.Join(taskDir, payload), nil
	default:
		return "", fmt.Errorf("task directory %q has more than one payload entry", taskDir)
	}
}

// WrapFileAsDataset moves a file payload into a sibling directory named
// "<file>_dataset" so every task's payload is uniformly a directory. It
// returns the new payload directory path.
func WrapFileAsDataset(payloadPath string) (string, error) {
	datasetDir := payloadPath + "_dataset"
	if err := os.MkdirAll(datasetDir, 0o755); err != nil {
		return "", fmt.Errorf("create dataset wrapper directory: %w", err)
	}
	dest := filepath.Join(datasetDir, filepath.Base(payloadPath))
	if err := fileutil.MoveAtomic(payloadPath, dest); err != nil {
		return "", err
	}
	return datasetDir, nil
}

// EnsureInterventionsDir creates the stage-local interventions directory
// under workingDir if it does not already exist.
func EnsureInterventionsDir(workingDir string) (string, error) {
	dir := filepath.Join(workingDir, InterventionsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create interventions directory: %w", err)
	}
	return dir, nil
}

// EnsureUserDir creates a per-user directory (error or registration) on
// demand and returns its absolute path.
func EnsureUserDir(userPath, dirName string) (string, error) {
	dir := filepath.Join(userPath, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create user directory %q: %w", dir, err)
	}
	return dir, nil
}
