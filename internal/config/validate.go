package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateUsers(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateRegistration(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateEvaluation(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateUsers() error {
	if strings.TrimSpace(c.Users.RegistrationDirName) == "" {
		return errors.New("users.registration_dir_name must be set")
	}
	if strings.TrimSpace(c.Users.ErrorDirName) == "" {
		return errors.New("users.error_dir_name must be set")
	}
	if c.Users.RegistrationDirName == c.Users.ErrorDirName {
		return errors.New("users.registration_dir_name and users.error_dir_name must differ")
	}
	return nil
}

func (c *Config) validateScanner() error {
	if strings.TrimSpace(c.Scanner.Directory) == "" {
		return errors.New("scanner.directory must be set")
	}
	if c.Scanner.IntervalMS <= 0 {
		return errors.New("scanner.interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateRegistration() error {
	if c.Registration.Threads <= 0 {
		return errors.New("registration.threads must be positive")
	}
	if strings.TrimSpace(c.Registration.WorkingDir) == "" {
		return errors.New("registration.working_dir must be set")
	}
	if strings.TrimSpace(c.Registration.TargetDir) == "" {
		return errors.New("registration.target_dir must be set")
	}
	if strings.TrimSpace(c.Registration.MetadataFileName) == "" {
		return errors.New("registration.metadata_file_name must be set")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.Threads <= 0 {
		return errors.New("processing.threads must be positive")
	}
	if strings.TrimSpace(c.Processing.WorkingDir) == "" {
		return errors.New("processing.working_dir must be set")
	}
	if strings.TrimSpace(c.Processing.TargetDir) == "" {
		return errors.New("processing.target_dir must be set")
	}
	return nil
}

func (c *Config) validateEvaluation() error {
	if c.Evaluation.Threads <= 0 {
		return errors.New("evaluation.threads must be positive")
	}
	if strings.TrimSpace(c.Evaluation.WorkingDir) == "" {
		return errors.New("evaluation.working_dir must be set")
	}
	if len(c.Evaluation.TargetDirs) == 0 {
		return errors.New("evaluation.target_dirs must include at least one inbox")
	}
	if strings.TrimSpace(c.Evaluation.MeasurementIDPattern) == "" {
		return errors.New("evaluation.measurement_id_pattern must be set")
	}
	if _, err := regexp.Compile(c.Evaluation.MeasurementIDPattern); err != nil {
		return fmt.Errorf("evaluation.measurement_id_pattern: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateAudit() error {
	if !c.Audit.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Audit.Database.Path) == "" {
		return errors.New("audit.database.path must be set when audit.enabled is true")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if strings.TrimSpace(c.Daemon.Lock.Path) == "" {
		return errors.New("daemon.lock.path must be set")
	}
	return nil
}
