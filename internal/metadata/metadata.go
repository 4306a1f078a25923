// Package metadata parses the tab-delimited side-file that accompanies a
// dataset in a user's drop folder: one record per line, a file reference
// and a label separated by a tab.
package metadata

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Record is one parsed row of the metadata side-file.
type Record struct {
	FileRef string
	Label   string
}

// ErrMetadataNotFound is returned when no file in the directory ends with
// the configured metadata file name suffix.
var ErrMetadataNotFound = errors.New("metadata file not found")

// ErrIncompleteMetadata is returned when a line cannot be split into a
// file reference and a label on a tab character.
var ErrIncompleteMetadata = errors.New("incomplete metadata entry")

// FindFile returns the path of the first direct, non-hidden entry in dir
// whose name ends with suffix. Only regular files are considered.
func FindFile(dir, suffix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if strings.HasSuffix(name, suffix) {
			return filepath.Join(dir, name), nil
		}
	}
	return "", ErrMetadataNotFound
}

// ParseFile reads and parses the metadata side-file at path. A line with
// no tab character is fatal: it is returned wrapped in
// ErrIncompleteMetadata, along with the records parsed from lines that
// preceded it (the caller treats any error from ParseFile as fatal to the
// whole task, so the partial result is informational only).
func ParseFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		record, err := parseRow(line)
		if err != nil {
			return records, fmt.Errorf("%w: line %d: %q", ErrIncompleteMetadata, lineNum, line)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("scan metadata file: %w", err)
	}
	return records, nil
}

func parseRow(line string) (Record, error) {
	parts := strings.SplitN(line, "\t", 2)
	if len(parts) != 2 {
		return Record{}, ErrIncompleteMetadata
	}
	fileRef := strings.TrimSpace(parts[0])
	label := strings.TrimSpace(parts[1])
	if fileRef == "" {
		return Record{}, ErrIncompleteMetadata
	}
	return Record{FileRef: fileRef, Label: label}, nil
}

// ValidateFileRefs confirms every record's FileRef resolves to an existing
// entry under root. Returns the unresolved reference on the first miss.
func ValidateFileRefs(root string, records []Record) error {
	for _, record := range records {
		target := filepath.Join(root, record.FileRef)
		if _, err := os.Stat(target); err != nil {
			return fmt.Errorf("unknown file reference in metadata: %s", record.FileRef)
		}
	}
	return nil
}

// MeasurementIDLabel is the convention used by the optional measurementId
// sidecar row in the metadata file: a record whose FileRef equals this
// sentinel carries the measurement identifier in Label rather than naming
// a dataset file. See SPEC_FULL.md's decision on where measurementId is
// supplied.
const MeasurementIDLabel = "measurementId"

// ExtractMeasurementID returns the value of the optional measurementId
// sidecar row, and the remaining records with that row removed.
func ExtractMeasurementID(records []Record) (string, []Record) {
	var id string
	remaining := make([]Record, 0, len(records))
	for _, record := range records {
		if record.FileRef == MeasurementIDLabel {
			id = record.Label
			continue
		}
		remaining = append(remaining, record)
	}
	return id, remaining
}
