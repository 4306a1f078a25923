package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeUsers(); err != nil {
		return err
	}
	if err := c.normalizeScanner(); err != nil {
		return err
	}
	if err := c.normalizeRegistration(); err != nil {
		return err
	}
	if err := c.normalizeProcessing(); err != nil {
		return err
	}
	if err := c.normalizeEvaluation(); err != nil {
		return err
	}
	if err := c.normalizeAudit(); err != nil {
		return err
	}
	if err := c.normalizeDaemon(); err != nil {
		return err
	}
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizeUsers() error {
	c.Users.RegistrationDirName = strings.TrimSpace(c.Users.RegistrationDirName)
	if c.Users.RegistrationDirName == "" {
		c.Users.RegistrationDirName = defaultUsersRegistrationDirName
	}
	c.Users.ErrorDirName = strings.TrimSpace(c.Users.ErrorDirName)
	if c.Users.ErrorDirName == "" {
		c.Users.ErrorDirName = defaultUsersErrorDirName
	}
	return nil
}

func (c *Config) normalizeScanner() error {
	var err error
	if strings.TrimSpace(c.Scanner.Directory) == "" {
		c.Scanner.Directory = defaultScannerDirectory
	}
	if c.Scanner.Directory, err = expandPath(c.Scanner.Directory); err != nil {
		return fmt.Errorf("scanner.directory: %w", err)
	}
	return nil
}

func (c *Config) normalizeRegistration() error {
	var err error
	if c.Registration.Threads <= 0 {
		c.Registration.Threads = defaultRegistrationThreads
	}
	if strings.TrimSpace(c.Registration.WorkingDir) == "" {
		c.Registration.WorkingDir = defaultRegistrationWorkingDir
	}
	if c.Registration.WorkingDir, err = expandPath(c.Registration.WorkingDir); err != nil {
		return fmt.Errorf("registration.working_dir: %w", err)
	}
	if strings.TrimSpace(c.Registration.TargetDir) == "" {
		c.Registration.TargetDir = defaultRegistrationTargetDir
	}
	if c.Registration.TargetDir, err = expandPath(c.Registration.TargetDir); err != nil {
		return fmt.Errorf("registration.target_dir: %w", err)
	}
	c.Registration.MetadataFileName = strings.TrimSpace(c.Registration.MetadataFileName)
	if c.Registration.MetadataFileName == "" {
		c.Registration.MetadataFileName = defaultRegistrationMetadataFileName
	}
	return nil
}

func (c *Config) normalizeProcessing() error {
	var err error
	if c.Processing.Threads <= 0 {
		c.Processing.Threads = defaultProcessingThreads
	}
	if strings.TrimSpace(c.Processing.WorkingDir) == "" {
		c.Processing.WorkingDir = defaultProcessingWorkingDir
	}
	if c.Processing.WorkingDir, err = expandPath(c.Processing.WorkingDir); err != nil {
		return fmt.Errorf("processing.working_dir: %w", err)
	}
	if strings.TrimSpace(c.Processing.TargetDir) == "" {
		c.Processing.TargetDir = defaultProcessingTargetDir
	}
	if c.Processing.TargetDir, err = expandPath(c.Processing.TargetDir); err != nil {
		return fmt.Errorf("processing.target_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEvaluation() error {
	var err error
	if c.Evaluation.Threads <= 0 {
		c.Evaluation.Threads = defaultEvaluationThreads
	}
	if strings.TrimSpace(c.Evaluation.WorkingDir) == "" {
		c.Evaluation.WorkingDir = defaultEvaluationWorkingDir
	}
	if c.Evaluation.WorkingDir, err = expandPath(c.Evaluation.WorkingDir); err != nil {
		return fmt.Errorf("evaluation.working_dir: %w", err)
	}
	expanded := make([]string, 0, len(c.Evaluation.TargetDirs))
	for _, dir := range c.Evaluation.TargetDirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		abs, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("evaluation.target_dirs: %w", err)
		}
		expanded = append(expanded, abs)
	}
	if len(expanded) == 0 {
		return fmt.Errorf("evaluation.target_dirs: at least one inbox directory is required")
	}
	c.Evaluation.TargetDirs = expanded
	c.Evaluation.MeasurementIDPattern = strings.TrimSpace(c.Evaluation.MeasurementIDPattern)
	if c.Evaluation.MeasurementIDPattern == "" {
		c.Evaluation.MeasurementIDPattern = defaultEvaluationMeasurementIDPattern
	}
	return nil
}

func (c *Config) normalizeAudit() error {
	var err error
	if !c.Audit.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Audit.Database.Path) == "" {
		c.Audit.Database.Path = defaultAuditDatabasePath
	}
	if c.Audit.Database.Path, err = expandPath(c.Audit.Database.Path); err != nil {
		return fmt.Errorf("audit.database.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeDaemon() error {
	var err error
	if strings.TrimSpace(c.Daemon.Lock.Path) == "" {
		c.Daemon.Lock.Path = defaultDaemonLockPath
	}
	if c.Daemon.Lock.Path, err = expandPath(c.Daemon.Lock.Path); err != nil {
		return fmt.Errorf("daemon.lock.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.Dir) == "" {
		c.Logging.Dir = defaultLogDir
	}
	var err error
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}
