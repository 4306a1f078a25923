// Package provenance reads and writes the provenance.json record that
// travels with every task directory through the pipeline: where a dataset
// came from, who submitted it, its measurement identifier, the files it
// contains, and the ordered list of stage working directories it has
// passed through.
package provenance

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the basename of the provenance record inside a task directory.
const FileName = "provenance.json"

// ErrNotFound is returned when a task directory has no provenance.json.
var ErrNotFound = errors.New("provenance file not found")

// ErrMalformed is returned when provenance.json exists but cannot be parsed.
var ErrMalformed = errors.New("provenance file malformed")

// Record is the stable, downstream-visible provenance schema. Unknown
// fields on read are ignored by encoding/json's default behavior; no
// custom unmarshaller is needed to honor that contract.
type Record struct {
	Origin        string   `json:"origin"`
	User          string   `json:"user"`
	MeasurementID *string  `json:"measurementId"`
	TaskID        string   `json:"taskId"`
	DatasetFiles  []string `json:"datasetFiles"`
	History       []string `json:"history"`
}

// AddHistory appends a stage working-directory path to the record's
// history. History is append-only and strictly ordered oldest to newest;
// callers must not reorder or truncate it.
func (r *Record) AddHistory(location string) {
	r.History = append(r.History, location)
}

// MeasurementIDValue returns the measurement identifier, or "" if it is
// nil or blank.
func (r *Record) MeasurementIDValue() string {
	if r.MeasurementID == nil || strings.TrimSpace(*r.MeasurementID) == "" {
		return ""
	}
	return *r.MeasurementID
}

// SetMeasurementID sets the measurement identifier field.
func (r *Record) SetMeasurementID(id string) {
	r.MeasurementID = &id
}

// Path returns the expected provenance.json path inside a task directory.
func Path(taskDir string) string {
	return filepath.Join(taskDir, FileName)
}

// Find locates provenance.json inside a task directory, returning
// ErrNotFound if absent.
func Find(taskDir string) (string, error) {
	path := Path(taskDir)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("stat provenance file: %w", err)
	}
	return path, nil
}

// Load reads and parses provenance.json from the given task directory.
func Load(taskDir string) (*Record, error) {
	path, err := Find(taskDir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provenance file: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &record, nil
}

// Save writes the record to provenance.json inside the given task
// directory, pretty-printed for operator readability.
func Save(taskDir string, record *Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}
	if err := os.WriteFile(Path(taskDir), data, 0o644); err != nil {
		return fmt.Errorf("write provenance file: %w", err)
	}
	return nil
}
