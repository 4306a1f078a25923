package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Users contains the basenames of per-user directories the pipeline reads
// from and writes to. RegistrationDir must pre-exist for a user to be
// scanned; ErrorDir is created on demand.
type Users struct {
	RegistrationDirName string `toml:"registration_dir_name"`
	ErrorDirName        string `toml:"error_dir_name"`
}

// Scanner contains configuration for the drop-folder poller.
type Scanner struct {
	Directory  string `toml:"directory"`
	IntervalMS int    `toml:"interval_ms"`
}

// Interval returns the poll interval as a time.Duration.
func (s Scanner) Interval() time.Duration {
	return time.Duration(s.IntervalMS) * time.Millisecond
}

// Registration contains configuration for the registration worker pool.
type Registration struct {
	Threads          int    `toml:"threads"`
	WorkingDir       string `toml:"working_dir"`
	TargetDir        string `toml:"target_dir"`
	MetadataFileName string `toml:"metadata_file_name"`
}

// Processing contains configuration for the processing worker pool.
type Processing struct {
	Threads    int    `toml:"threads"`
	WorkingDir string `toml:"working_dir"`
	TargetDir  string `toml:"target_dir"`
}

// Evaluation contains configuration for the evaluation worker pool.
type Evaluation struct {
	Threads              int      `toml:"threads"`
	WorkingDir           string   `toml:"working_dir"`
	TargetDirs           []string `toml:"target_dirs"`
	MeasurementIDPattern string   `toml:"measurement_id_pattern"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
}

// AuditDatabase contains configuration for the sqlite event ledger file.
type AuditDatabase struct {
	Path string `toml:"path"`
}

// Audit contains configuration for the optional operator-visibility ledger.
type Audit struct {
	Enabled  bool          `toml:"enabled"`
	Database AuditDatabase `toml:"database"`
}

// DaemonLock contains configuration for the single-instance lock file.
type DaemonLock struct {
	Path string `toml:"path"`
}

// Daemon contains configuration for daemon-process concerns.
type Daemon struct {
	Lock DaemonLock `toml:"lock"`
}

// Config encapsulates all configuration values for the pipeline daemon and
// CLI.
//
// Configuration sections by subsystem:
//   - Users: per-user drop and error directory basenames
//   - Scanner: drop-folder root and poll interval
//   - Registration: registration pool size and working/target directories
//   - Processing: processing pool size and working/target directories
//   - Evaluation: evaluation pool size, working directory, round-robin
//     target directories, and the measurement ID pattern
//   - Logging: log format, level, and directory
//   - Audit: optional sqlite event ledger for operator visibility
//   - Daemon: single-instance lock file location
type Config struct {
	Users        Users        `toml:"users"`
	Scanner      Scanner      `toml:"scanner"`
	Registration Registration `toml:"registration"`
	Processing   Processing   `toml:"processing"`
	Evaluation   Evaluation   `toml:"evaluation"`
	Logging      Logging      `toml:"logging"`
	Audit        Audit        `toml:"audit"`
	Daemon       Daemon       `toml:"daemon"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/inflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/inflow/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("inflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon needs before the
// pipeline starts: the registration/processing/evaluation working
// directories, the evaluation target directories, and the processing and
// evaluation interventions directories (the registration pool creates its
// own when it starts). Per-user directories are created lazily as
// users are discovered, never here.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Registration.WorkingDir,
		c.Registration.TargetDir,
		c.Processing.WorkingDir,
		filepath.Join(c.Processing.WorkingDir, "interventions"),
		c.Evaluation.WorkingDir,
		filepath.Join(c.Evaluation.WorkingDir, "interventions"),
	}
	dirs = append(dirs, c.Evaluation.TargetDirs...)
	if c.Logging.Dir != "" {
		dirs = append(dirs, c.Logging.Dir)
	}
	if dir := filepath.Dir(c.Daemon.Lock.Path); dir != "" {
		dirs = append(dirs, dir)
	}
	if c.Audit.Enabled {
		if dir := filepath.Dir(c.Audit.Database.Path); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other
// packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified
// location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
