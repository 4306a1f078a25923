package stage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"inflow/internal/activeset"
	"inflow/internal/taskdir"
)

type fakeHandler struct {
	name       string
	workingDir string

	mu        sync.Mutex
	processed []string
	fail      map[string]bool
}

func (f *fakeHandler) Name() string       { return f.name }
func (f *fakeHandler) WorkingDir() string { return f.workingDir }

func (f *fakeHandler) Process(_ context.Context, taskDir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, taskDir)
	if f.fail[taskDir] {
		return errors.New("boom")
	}
	// Simulate a successful stage: remove the task from the working dir
	// (as a real handler would, by moving it forward).
	return os.RemoveAll(taskDir)
}

func (f *fakeHandler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processed)
}

func TestPoolProcessesTaskDirectories(t *testing.T) {
	workingDir := t.TempDir()
	taskA, err := taskdir.New(workingDir)
	if err != nil {
		t.Fatal(err)
	}
	taskB, err := taskdir.New(workingDir)
	if err != nil {
		t.Fatal(err)
	}

	handler := &fakeHandler{name: "test-stage", workingDir: workingDir}
	pool := New(handler, 2, activeset.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return handler.count() == 2 })

	cancel()
	pool.Stop()

	if _, err := os.Stat(taskA); !os.IsNotExist(err) {
		t.Fatal("expected task A to be removed")
	}
	if _, err := os.Stat(taskB); !os.IsNotExist(err) {
		t.Fatal("expected task B to be removed")
	}
}

func TestPoolParksFailedTaskToIntervention(t *testing.T) {
	workingDir := t.TempDir()
	failing, err := taskdir.New(workingDir)
	if err != nil {
		t.Fatal(err)
	}

	handler := &fakeHandler{
		name:       "test-stage",
		workingDir: workingDir,
		fail:       map[string]bool{failing: true},
	}
	pool := New(handler, 1, activeset.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}

	interventionPath := filepath.Join(workingDir, taskdir.InterventionsDirName, taskdir.ID(failing))
	waitFor(t, func() bool {
		_, err := os.Stat(interventionPath)
		return err == nil
	})

	cancel()
	pool.Stop()

	if _, err := os.Stat(filepath.Join(interventionPath, taskdir.ErrorFileName)); err != nil {
		t.Fatalf("expected error note in intervention dir: %v", err)
	}
}

func TestPoolSkipsInterventionsDirectory(t *testing.T) {
	workingDir := t.TempDir()
	if _, err := taskdir.EnsureInterventionsDir(workingDir); err != nil {
		t.Fatal(err)
	}

	handler := &fakeHandler{name: "test-stage", workingDir: workingDir}
	pool := New(handler, 1, activeset.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	cancel()
	pool.Stop()

	if handler.count() != 0 {
		t.Fatalf("expected interventions directory to never be processed, got %d calls", handler.count())
	}
}

func TestPoolStopWaitsForInFlightTask(t *testing.T) {
	workingDir := t.TempDir()
	if _, err := taskdir.New(workingDir); err != nil {
		t.Fatal(err)
	}

	handler := &fakeHandler{name: "test-stage", workingDir: workingDir}
	pool := New(handler, 1, activeset.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return handler.count() == 1 })
	cancel()
	pool.Stop()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
