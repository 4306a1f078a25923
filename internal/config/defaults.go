package config

const (
	defaultUsersRegistrationDirName = "registration"
	defaultUsersErrorDirName        = "error"

	defaultScannerDirectory  = "~/.local/share/inflow/users"
	defaultScannerIntervalMS = 1000

	defaultRegistrationThreads          = 2
	defaultRegistrationWorkingDir       = "~/.local/share/inflow/registration"
	defaultRegistrationTargetDir        = "~/.local/share/inflow/processing"
	defaultRegistrationMetadataFileName = "metadata.txt"

	defaultProcessingThreads    = 2
	defaultProcessingWorkingDir = "~/.local/share/inflow/processing"
	defaultProcessingTargetDir  = "~/.local/share/inflow/evaluation"

	defaultEvaluationThreads              = 2
	defaultEvaluationWorkingDir           = "~/.local/share/inflow/evaluation"
	defaultEvaluationMeasurementIDPattern = `^QABCD[0-9]{3}[A-Za-z0-9]{2}$`

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
	defaultLogDir    = "~/.local/share/inflow/logs"

	defaultAuditDatabasePath = "~/.local/share/inflow/audit.db"

	defaultDaemonLockPath = "~/.local/share/inflow/inflow.lock"
)

// Default returns a Config populated with repository defaults. Every path is
// still tilde-relative here; normalize expands them.
func Default() Config {
	return Config{
		Users: Users{
			RegistrationDirName: defaultUsersRegistrationDirName,
			ErrorDirName:        defaultUsersErrorDirName,
		},
		Scanner: Scanner{
			Directory:  defaultScannerDirectory,
			IntervalMS: defaultScannerIntervalMS,
		},
		Registration: Registration{
			Threads:          defaultRegistrationThreads,
			WorkingDir:       defaultRegistrationWorkingDir,
			TargetDir:        defaultRegistrationTargetDir,
			MetadataFileName: defaultRegistrationMetadataFileName,
		},
		Processing: Processing{
			Threads:    defaultProcessingThreads,
			WorkingDir: defaultProcessingWorkingDir,
			TargetDir:  defaultProcessingTargetDir,
		},
		Evaluation: Evaluation{
			Threads:              defaultEvaluationThreads,
			WorkingDir:           defaultEvaluationWorkingDir,
			TargetDirs:           []string{"~/.local/share/inflow/inbox"},
			MeasurementIDPattern: defaultEvaluationMeasurementIDPattern,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			Dir:    defaultLogDir,
		},
		Audit: Audit{
			Enabled: false,
			Database: AuditDatabase{
				Path: defaultAuditDatabasePath,
			},
		},
		Daemon: Daemon{
			Lock: DaemonLock{
				Path: defaultDaemonLockPath,
			},
		},
	}
}
