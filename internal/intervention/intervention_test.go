package intervention

import (
	"os"
	"path/filepath"
	"testing"

	"inflow/internal/config"
	"inflow/internal/provenance"
	"inflow/internal/taskdir"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Registration.WorkingDir = filepath.Join(root, "registration")
	cfg.Processing.WorkingDir = filepath.Join(root, "processing")
	cfg.Evaluation.WorkingDir = filepath.Join(root, "evaluation")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	return &cfg
}

func parkRegistrationEntry(t *testing.T, cfg *config.Config, origin, payloadName, reason string) string {
	t.Helper()
	interventionsDir := filepath.Join(cfg.Registration.WorkingDir, taskdir.InterventionsDirName)
	taskDir, err := taskdir.New(interventionsDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(taskDir, payloadName), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := taskdir.WriteOrigin(taskDir, origin); err != nil {
		t.Fatal(err)
	}
	if err := taskdir.WriteError(taskDir, reason); err != nil {
		t.Fatal(err)
	}
	return taskdir.ID(taskDir)
}

func parkStageEntry(t *testing.T, workingDir, reason string) string {
	t.Helper()
	interventionsDir := filepath.Join(workingDir, taskdir.InterventionsDirName)
	taskDir, err := taskdir.New(interventionsDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(taskDir, "dataset"), 0o755); err != nil {
		t.Fatal(err)
	}
	record := &provenance.Record{TaskID: taskdir.ID(taskDir), DatasetFiles: []string{"dataset"}}
	if err := provenance.Save(taskDir, record); err != nil {
		t.Fatal(err)
	}
	if err := taskdir.WriteError(taskDir, reason); err != nil {
		t.Fatal(err)
	}
	return taskdir.ID(taskDir)
}

func TestListAcrossStages(t *testing.T) {
	cfg := newTestConfig(t)
	origin := t.TempDir()
	parkRegistrationEntry(t, cfg, origin, "run1", "missing metadata")
	parkStageEntry(t, cfg.Processing.WorkingDir, "payload wrap failed")
	parkStageEntry(t, cfg.Evaluation.WorkingDir, "copy to inbox failed")

	entries, err := List(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	stages := map[Stage]int{}
	for _, e := range entries {
		stages[e.Stage]++
	}
	if stages[StageRegistration] != 1 || stages[StageProcessing] != 1 || stages[StageEvaluation] != 1 {
		t.Fatalf("unexpected stage distribution: %+v", stages)
	}
}

func TestRequeueRegistrationMovesPayloadToOrigin(t *testing.T) {
	cfg := newTestConfig(t)
	origin := t.TempDir()
	taskID := parkRegistrationEntry(t, cfg, origin, "run1", "missing metadata")

	entry, err := Find(cfg, StageRegistration, taskID)
	if err != nil {
		t.Fatal(err)
	}
	if err := Requeue(cfg, entry); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(origin, "run1")); err != nil {
		t.Fatalf("expected payload to be restored to origin: %v", err)
	}
	if _, err := os.Stat(entry.Path); !os.IsNotExist(err) {
		t.Fatalf("expected spent task directory to be removed, got %v", err)
	}
}

func TestRequeueStageMovesTaskBackToWorkingDir(t *testing.T) {
	cfg := newTestConfig(t)
	taskID := parkStageEntry(t, cfg.Processing.WorkingDir, "boom")

	entry, err := Find(cfg, StageProcessing, taskID)
	if err != nil {
		t.Fatal(err)
	}
	if err := Requeue(cfg, entry); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(cfg.Processing.WorkingDir, taskID)); err != nil {
		t.Fatalf("expected task directory back at working dir root: %v", err)
	}
}

func TestRequeueAllReportsCount(t *testing.T) {
	cfg := newTestConfig(t)
	parkStageEntry(t, cfg.Evaluation.WorkingDir, "boom 1")
	parkStageEntry(t, cfg.Evaluation.WorkingDir, "boom 2")

	count, errs := RequeueAll(cfg, StageEvaluation)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if count != 2 {
		t.Fatalf("expected 2 requeued, got %d", count)
	}
}
