package stage

import "context"

// Handler is the per-task-directory transform a Pool applies. When Process
// returns nil, the task directory has already been moved to its next stage
// or parked to a user error directory. Every other failure is returned as
// an error, and Pool then writes error.txt into the task directory and
// parks it in the stage's intervention directory.
type Handler interface {
	// Name identifies the stage for logging.
	Name() string
	// WorkingDir is the directory Pool polls for task directories.
	WorkingDir() string
	// Process transforms or routes the task directory at taskDir.
	Process(ctx context.Context, taskDir string) error
}
