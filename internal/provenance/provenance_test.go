package provenance

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	record := &Record{
		Origin:       "/home/u1/registration",
		User:         "/home/u1",
		TaskID:       "task-1",
		DatasetFiles: []string{"reads.fastq"},
		History:      []string{"/working/registration"},
	}
	record.SetMeasurementID("QABCD001AB")

	if err := Save(dir, record); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Origin != record.Origin || got.User != record.User || got.TaskID != record.TaskID {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.MeasurementIDValue() != "QABCD001AB" {
		t.Fatalf("unexpected measurement id: %q", got.MeasurementIDValue())
	}
	if len(got.History) != 1 || got.History[0] != "/working/registration" {
		t.Fatalf("unexpected history: %v", got.History)
	}
}

func TestLoad_NotFound(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	if err := writeRaw(dir, "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected malformed error")
	}
}

func TestLoad_IgnoresUnknownFields(t *testing.T) {
	dir := t.TempDir()
	raw := `{"origin":"/o","user":"/u","measurementId":null,"taskId":"t","datasetFiles":[],"history":[],"extra_field_from_future_version":true}`
	if err := writeRaw(dir, raw); err != nil {
		t.Fatal(err)
	}
	record, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if record.MeasurementIDValue() != "" {
		t.Fatalf("expected empty measurement id, got %q", record.MeasurementIDValue())
	}
}

func TestAddHistoryAppendsInOrder(t *testing.T) {
	record := &Record{}
	record.AddHistory("a")
	record.AddHistory("b")
	if len(record.History) != 2 || record.History[0] != "a" || record.History[1] != "b" {
		t.Fatalf("unexpected history order: %v", record.History)
	}
}

func writeRaw(dir, content string) error {
	return os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644)
}
