package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inflow/internal/registrationqueue"
)

func setupUser(t *testing.T, root, user string, files ...string) string {
	t.Helper()
	userDir := filepath.Join(root, user)
	dropFolder := filepath.Join(userDir, "registration")
	if err := os.MkdirAll(dropFolder, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dropFolder, f), []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dropFolder
}

func TestNewRejectsMissingRoot(t *testing.T) {
	q := registrationqueue.New(4)
	_, err := New(Config{
		RootDirectory:       "/nonexistent/path",
		RegistrationDirName: "registration",
		Interval:            time.Millisecond,
		Queue:               q,
	})
	if err == nil {
		t.Fatal("expected error for missing root directory")
	}
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	root := t.TempDir()
	q := registrationqueue.New(4)
	_, err := New(Config{
		RootDirectory:       root,
		RegistrationDirName: "registration",
		Interval:            0,
		Queue:               q,
	})
	if err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestTickEnqueuesNewEntries(t *testing.T) {
	root := t.TempDir()
	setupUser(t, root, "u1", "reads.fastq")

	q := registrationqueue.New(4)
	s, err := New(Config{
		RootDirectory:       root,
		RegistrationDirName: "registration",
		Interval:            time.Hour,
		Queue:               q,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	s.tick(ctx)

	if q.Len() != 1 {
		t.Fatalf("expected one enqueued request, got %d", q.Len())
	}
	req, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(req.TargetPath) != "reads.fastq" {
		t.Fatalf("unexpected target path: %q", req.TargetPath)
	}
}

func TestTickDedupsAcrossTicks(t *testing.T) {
	root := t.TempDir()
	setupUser(t, root, "u1", "reads.fastq")

	q := registrationqueue.New(4)
	s, err := New(Config{
		RootDirectory:       root,
		RegistrationDirName: "registration",
		Interval:            time.Hour,
		Queue:               q,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		s.tick(ctx)
	}

	if q.Len() != 1 {
		t.Fatalf("expected exactly one enqueue across 10 ticks, got %d", q.Len())
	}
}

func TestTickSkipsHiddenEntries(t *testing.T) {
	root := t.TempDir()
	setupUser(t, root, "u1", ".hidden-file")

	q := registrationqueue.New(4)
	s, err := New(Config{
		RootDirectory:       root,
		RegistrationDirName: "registration",
		Interval:            time.Hour,
		Queue:               q,
	})
	if err != nil {
		t.Fatal(err)
	}

	s.tick(context.Background())
	if q.Len() != 0 {
		t.Fatalf("expected hidden entry to be skipped, got %d items", q.Len())
	}
}

func TestTickPrunesRemovedDropFolders(t *testing.T) {
	root := t.TempDir()
	dropFolder := setupUser(t, root, "u1", "reads.fastq")

	q := registrationqueue.New(4)
	s, err := New(Config{
		RootDirectory:       root,
		RegistrationDirName: "registration",
		Interval:            time.Hour,
		Queue:               q,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	s.tick(ctx)
	if _, known := s.knownDropFolders[dropFolder]; !known {
		t.Fatal("expected drop folder to be known after first tick")
	}

	if err := os.RemoveAll(filepath.Join(root, "u1")); err != nil {
		t.Fatal(err)
	}
	s.tick(ctx)
	if _, known := s.knownDropFolders[dropFolder]; known {
		t.Fatal("expected drop folder to be pruned after removal")
	}
}

func TestTickEmptyDropFolderProducesNoRequests(t *testing.T) {
	root := t.TempDir()
	setupUser(t, root, "u1")

	q := registrationqueue.New(4)
	s, err := New(Config{
		RootDirectory:       root,
		RegistrationDirName: "registration",
		Interval:            time.Hour,
		Queue:               q,
	})
	if err != nil {
		t.Fatal(err)
	}

	s.tick(context.Background())
	if q.Len() != 0 {
		t.Fatalf("expected zero requests for empty drop folder, got %d", q.Len())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	root := t.TempDir()
	setupUser(t, root, "u1")

	q := registrationqueue.New(4)
	s, err := New(Config{
		RootDirectory:       root,
		RegistrationDirName: "registration",
		Interval:            10 * time.Millisecond,
		Queue:               q,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after context cancellation")
	}
}
