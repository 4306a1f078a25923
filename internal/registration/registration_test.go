package registration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"inflow/internal/provenance"
	"inflow/internal/registrationqueue"
	"inflow/internal/taskdir"
)

type fakeRecorder struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeRecorder) RecordStageEvent(_ context.Context, taskID, stage, outcome, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, stage+":"+outcome+":"+taskID)
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func setupDirs(t *testing.T) (workingDir, targetDir, userDir string) {
	t.Helper()
	root := t.TempDir()
	workingDir = filepath.Join(root, "registration-working")
	targetDir = filepath.Join(root, "processing-working")
	userDir = filepath.Join(root, "u1")
	for _, dir := range []string{workingDir, targetDir, userDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return workingDir, targetDir, userDir
}

func newTestPool(workingDir, targetDir string) (*Pool, *registrationqueue.Queue) {
	q := registrationqueue.New(4)
	pool := New(q, Config{
		Threads:          1,
		WorkingDir:       workingDir,
		TargetDir:        targetDir,
		MetadataFileName: "metadata.txt",
		ErrorDirName:     "error",
	}, nil)
	return pool, q
}

func waitForEntries(t *testing.T, dir string, want int) []os.DirEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == want {
			return entries
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("directory %q did not reach %d entries in time", dir, want)
	return nil
}

func TestRegisterFilePayload(t *testing.T) {
	workingDir, targetDir, userDir := setupDirs(t)
	dropFolder := filepath.Join(userDir, "registration")
	if err := os.MkdirAll(dropFolder, 0o755); err != nil {
		t.Fatal(err)
	}
	payload := filepath.Join(dropFolder, "reads.fastq")
	if err := os.WriteFile(payload, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	pool, q := newTestPool(workingDir, targetDir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer pool.Stop()

	if err := q.Enqueue(ctx, registrationqueue.Request{
		TargetPath: payload,
		OriginPath: dropFolder,
		UserPath:   userDir,
	}); err != nil {
		t.Fatal(err)
	}

	entries := waitForEntries(t, targetDir, 1)
	taskDir := filepath.Join(targetDir, entries[0].Name())

	record, err := provenance.Load(taskDir)
	if err != nil {
		t.Fatalf("load provenance: %v", err)
	}
	if record.Origin != dropFolder || record.User != userDir {
		t.Fatalf("unexpected provenance: %+v", record)
	}
	if len(record.History) != 1 {
		t.Fatalf("expected one history entry, got %d", len(record.History))
	}
	if _, err := os.Stat(filepath.Join(taskDir, "reads.fastq")); err != nil {
		t.Fatalf("expected payload moved into task directory: %v", err)
	}
}

func TestRegisterDirectoryPayloadWithMetadata(t *testing.T) {
	workingDir, targetDir, userDir := setupDirs(t)
	dropFolder := filepath.Join(userDir, "registration")
	datasetDir := filepath.Join(dropFolder, "run42")
	if err := os.MkdirAll(datasetDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(datasetDir, "a.fastq"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	metadataContent := "a.fastq\tsample-a\nmeasurementId\tQABCD001AB\n"
	if err := os.WriteFile(filepath.Join(datasetDir, "run42_metadata.txt"), []byte(metadataContent), 0o644); err != nil {
		t.Fatal(err)
	}

	pool, q := newTestPool(workingDir, targetDir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer pool.Stop()

	if err := q.Enqueue(ctx, registrationqueue.Request{
		TargetPath: datasetDir,
		OriginPath: dropFolder,
		UserPath:   userDir,
	}); err != nil {
		t.Fatal(err)
	}

	entries := waitForEntries(t, targetDir, 1)
	taskDir := filepath.Join(targetDir, entries[0].Name())

	record, err := provenance.Load(taskDir)
	if err != nil {
		t.Fatalf("load provenance: %v", err)
	}
	if record.MeasurementIDValue() != "QABCD001AB" {
		t.Fatalf("expected measurement id extracted from sidecar row, got %q", record.MeasurementIDValue())
	}
	if _, err := os.Stat(filepath.Join(taskDir, "run42", "a.fastq")); err != nil {
		t.Fatalf("expected directory payload moved intact: %v", err)
	}
}

func TestRegisterMissingMetadataParksToUserErrorDir(t *testing.T) {
	workingDir, targetDir, userDir := setupDirs(t)
	dropFolder := filepath.Join(userDir, "registration")
	datasetDir := filepath.Join(dropFolder, "run43")
	if err := os.MkdirAll(datasetDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(datasetDir, "a.fastq"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	pool, q := newTestPool(workingDir, targetDir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer pool.Stop()

	if err := q.Enqueue(ctx, registrationqueue.Request{
		TargetPath: datasetDir,
		OriginPath: dropFolder,
		UserPath:   userDir,
	}); err != nil {
		t.Fatal(err)
	}

	errorDir := filepath.Join(userDir, "error")
	entries := waitForErrorDir(t, errorDir)
	taskDir := filepath.Join(errorDir, entries[0].Name())
	if _, err := os.Stat(filepath.Join(taskDir, taskdir.ErrorFileName)); err != nil {
		t.Fatalf("expected error note in parked task: %v", err)
	}
	if _, err := os.Stat(filepath.Join(taskDir, "run43")); err != nil {
		t.Fatalf("expected original payload parked alongside error note: %v", err)
	}
}

func waitForErrorDir(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 1 {
			return entries
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("user error directory %q never received a parked task", dir)
	return nil
}

func TestRegisterRecordsAuditEventOnSuccess(t *testing.T) {
	workingDir, targetDir, userDir := setupDirs(t)
	dropFolder := filepath.Join(userDir, "registration")
	if err := os.MkdirAll(dropFolder, 0o755); err != nil {
		t.Fatal(err)
	}
	payload := filepath.Join(dropFolder, "reads.fastq")
	if err := os.WriteFile(payload, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	pool, q := newTestPool(workingDir, targetDir)
	recorder := &fakeRecorder{}
	pool.WithAudit(recorder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer pool.Stop()

	if err := q.Enqueue(ctx, registrationqueue.Request{
		TargetPath: payload,
		OriginPath: dropFolder,
		UserPath:   userDir,
	}); err != nil {
		t.Fatal(err)
	}

	waitForEntries(t, targetDir, 1)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && recorder.count() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if recorder.count() != 1 {
		t.Fatalf("expected one audit event, got %d", recorder.count())
	}
}

func TestRegisterUnknownFileReferenceParksToUserErrorDir(t *testing.T) {
	workingDir, targetDir, userDir := setupDirs(t)
	dropFolder := filepath.Join(userDir, "registration")
	datasetDir := filepath.Join(dropFolder, "run44")
	if err := os.MkdirAll(datasetDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(datasetDir, "a.fastq"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(datasetDir, "metadata.txt"), []byte("missing.fastq\tsample-a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pool, q := newTestPool(workingDir, targetDir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer pool.Stop()

	if err := q.Enqueue(ctx, registrationqueue.Request{
		TargetPath: datasetDir,
		OriginPath: dropFolder,
		UserPath:   userDir,
	}); err != nil {
		t.Fatal(err)
	}

	errorDir := filepath.Join(userDir, "error")
	waitForErrorDir(t, errorDir)
}
