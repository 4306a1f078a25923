// Package scanner implements the single periodic poller that discovers
// newly-appeared datasets in per-user drop folders and enqueues
// registration requests for them.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"inflow/internal/logging"
	"inflow/internal/registrationqueue"
)

// Request is a value record produced by one detection of a dataset entry
// in a drop folder. Two requests are equal for deduplication purposes iff
// TargetPath and LastModified are both equal.
type Request struct {
	DetectedAt   time.Time
	LastModified time.Time
	UserPath     string
	OriginPath   string
	TargetPath   string
}

// dedupKey is the deduplication identity of a Request: target path
// normalized to NFC (so visually identical but differently-encoded
// filenames don't slip past the submitted set) plus last-modified time.
type dedupKey struct {
	targetPath   string
	lastModified int64
}

func keyFor(req Request) dedupKey {
	return dedupKey{
		targetPath:   norm.NFC.String(req.TargetPath),
		lastModified: req.LastModified.UnixNano(),
	}
}

// Scanner polls a root directory of per-user directories for new dataset
// entries in each user's drop folder.
type Scanner struct {
	root                string
	registrationDirName string
	interval            time.Duration
	queue               *registrationqueue.Queue
	logger              *slog.Logger

	knownDropFolders map[string]struct{}
	submitted        map[dedupKey]struct{}
}

// Config describes the parameters needed to construct a Scanner.
type Config struct {
	RootDirectory        string
	RegistrationDirName  string
	Interval             time.Duration
	Queue                *registrationqueue.Queue
	Logger               *slog.Logger
}

// New constructs a Scanner. It fails fast if the root directory does not
// exist, and rejects a non-positive interval.
func New(cfg Config) (*Scanner, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("scanner interval must be positive")
	}
	if cfg.RegistrationDirName == "" {
		return nil, errors.New("registration directory name must not be empty")
	}
	if _, err := os.Stat(cfg.RootDirectory); err != nil {
		return nil, fmt.Errorf("scanner root directory: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{
		root:                 cfg.RootDirectory,
		registrationDirName:  cfg.RegistrationDirName,
		interval:             cfg.Interval,
		queue:                cfg.Queue,
		logger:               logging.NewComponentLogger(logger, "scanner"),
		knownDropFolders:     make(map[string]struct{}),
		submitted:            make(map[dedupKey]struct{}),
	}, nil
}

// Run loops on the configured interval until ctx is canceled. Each
// iteration lists user directories, discovers drop folders, enqueues new
// requests, and prunes drop folders that no longer exist.
func (s *Scanner) Run(ctx context.Context) {
	s.logger.Info("scanner started",
		logging.String(logging.FieldEventType, "scanner_started"),
		logging.String("root", s.root))
	defer s.logger.Info("scanner stopped",
		logging.String(logging.FieldEventType, "scanner_stopped"))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

func (s *Scanner) tick(ctx context.Context) {
	userDirs, err := listSubdirectories(s.root)
	if err != nil {
		s.logger.Error("failed to list user directories",
			logging.Error(err),
			logging.String(logging.FieldEventType, "scanner_list_failed"),
			logging.String(logging.FieldErrorHint, "check scanner.directory permissions"))
		return
	}

	for _, userDir := range userDirs {
		dropFolder := filepath.Join(userDir, s.registrationDirName)
		if info, err := os.Stat(dropFolder); err == nil && info.IsDir() {
			if _, known := s.knownDropFolders[dropFolder]; !known {
				s.logger.Info("new user drop folder found",
					logging.String(logging.FieldEventType, "drop_folder_discovered"),
					logging.String("drop_folder", dropFolder))
			}
			s.knownDropFolders[dropFolder] = struct{}{}
		}
	}

	for dropFolder := range s.knownDropFolders {
		requests, err := s.detect(dropFolder)
		if err != nil {
			s.logger.Error("failed to scan drop folder",
				logging.Error(err),
				logging.String(logging.FieldEventType, "scanner_scan_failed"),
				logging.String("drop_folder", dropFolder))
			continue
		}
		for _, req := range requests {
			key := keyFor(req)
			if _, already := s.submitted[key]; already {
				continue
			}
			if err := s.queue.Enqueue(ctx, registrationqueue.Request{
				TargetPath:   req.TargetPath,
				OriginPath:   req.OriginPath,
				UserPath:     req.UserPath,
				LastModified: req.LastModified.UnixNano(),
			}); err != nil {
				return
			}
			s.submitted[key] = struct{}{}
			s.logger.Info("new registration requested",
				logging.String(logging.FieldEventType, "registration_requested"),
				logging.String("target", req.TargetPath))
		}
	}

	s.pruneZombies()
}

func (s *Scanner) detect(dropFolder string) ([]Request, error) {
	entries, err := os.ReadDir(dropFolder)
	if err != nil {
		return nil, err
	}
	requests := make([]Request, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		requests = append(requests, Request{
			DetectedAt:   time.Now(),
			LastModified: info.ModTime(),
			UserPath:     filepath.Dir(dropFolder),
			OriginPath:   dropFolder,
			TargetPath:   filepath.Join(dropFolder, entry.Name()),
		})
	}
	return requests, nil
}

func (s *Scanner) pruneZombies() {
	for dropFolder := range s.knownDropFolders {
		if _, err := os.Stat(dropFolder); err != nil {
			delete(s.knownDropFolders, dropFolder)
			s.logger.Warn("removing orphaned drop folder",
				logging.String(logging.FieldEventType, "drop_folder_removed"),
				logging.String("drop_folder", dropFolder))
		}
	}
}

func listSubdirectories(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(root, entry.Name()))
		}
	}
	return dirs, nil
}
