package metadata

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "reads_metadata.txt"), []byte("a\tb\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "reads.fastq"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := FindFile(dir, "metadata.txt")
	if err != nil {
		t.Fatalf("FindFile: %v", err)
	}
	if filepath.Base(path) != "reads_metadata.txt" {
		t.Fatalf("unexpected match: %q", path)
	}
}

func TestFindFile_NotFound(t *testing.T) {
	dir := t.TempDir()
	if _, err := FindFile(dir, "metadata.txt"); err != ErrMetadataNotFound {
		t.Fatalf("expected ErrMetadataNotFound, got %v", err)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.txt")
	content := "reads.fastq\tchecksum-abc\nreads2.fastq\tchecksum-def\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].FileRef != "reads.fastq" || records[0].Label != "checksum-abc" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestParseFile_MalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.txt")
	content := "reads.fastq\tchecksum-abc\nno-tab-here\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ParseFile(path); err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestValidateFileRefs(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "reads.fastq"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	records := []Record{{FileRef: "reads.fastq", Label: "checksum"}}
	if err := ValidateFileRefs(dir, records); err != nil {
		t.Fatalf("ValidateFileRefs: %v", err)
	}
}

func TestValidateFileRefs_Unknown(t *testing.T) {
	dir := t.TempDir()
	records := []Record{{FileRef: "missing.fastq", Label: "checksum"}}
	if err := ValidateFileRefs(dir, records); err == nil {
		t.Fatal("expected error for unknown file reference")
	}
}

func TestExtractMeasurementID(t *testing.T) {
	records := []Record{
		{FileRef: "reads.fastq", Label: "checksum"},
		{FileRef: MeasurementIDLabel, Label: "QABCD001AB"},
	}
	id, remaining := ExtractMeasurementID(records)
	if id != "QABCD001AB" {
		t.Fatalf("unexpected id: %q", id)
	}
	if len(remaining) != 1 || remaining[0].FileRef != "reads.fastq" {
		t.Fatalf("unexpected remaining records: %+v", remaining)
	}
}
