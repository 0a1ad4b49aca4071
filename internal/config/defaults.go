package config

const (
	defaultConfigPath             = "~/.config/mediaconv/config.toml"
	defaultStagingDir             = "~/.local/share/mediaconv/staging"
	defaultOutputDir              = "~/Movies/mediaconv"
	defaultStateDir               = "~/.local/share/mediaconv"
	defaultLogDir                 = "~/.local/share/mediaconv/logs"
	defaultQueuePollInterval      = 5
	defaultErrorRetryInterval     = 10
	defaultDownloadPollIntervalMS = 500
	defaultStagingMaxAgeHours     = 72
	defaultUserAgent              = "mediaconv/dev"
	defaultConnectTimeoutSeconds  = 30
	defaultContentBackend         = ContentBackendDir
	defaultContentRoot            = "~/.local/share/mediaconv/content"
	defaultSimpleContentDatabase  = "memory"
	defaultSimpleContentSchema    = "content"
	defaultSimpleContentStorage   = "memory"
	defaultReadySubject           = "mediaconv.job.ready"
	defaultFailedSubject          = "mediaconv.job.failed"
	defaultStatusSubject          = "mediaconv.job.status"
	defaultNotifyRequestTimeout   = 10
	defaultAPIBind                = "127.0.0.1:7489"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Content backends understood by the content:// resolver.
const (
	ContentBackendDir           = "dir"
	ContentBackendSimpleContent = "simple-content"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Workflow: Workflow{
			QueuePollInterval:      defaultQueuePollInterval,
			ErrorRetryInterval:     defaultErrorRetryInterval,
			DownloadPollIntervalMS: defaultDownloadPollIntervalMS,
			StagingMaxAgeHours:     defaultStagingMaxAgeHours,
		},
		Download: Download{
			UserAgent:             defaultUserAgent,
			ConnectTimeoutSeconds: defaultConnectTimeoutSeconds,
		},
		Content: Content{
			Backend: defaultContentBackend,
			Root:    defaultContentRoot,
			SimpleContent: SimpleContent{
				DatabaseType:   defaultSimpleContentDatabase,
				DatabaseSchema: defaultSimpleContentSchema,
				StorageBackend: defaultSimpleContentStorage,
			},
		},
		Bus: Bus{
			ReadySubject:  defaultReadySubject,
			FailedSubject: defaultFailedSubject,
			StatusSubject: defaultStatusSubject,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobReady:       true,
			JobFailed:      true,
			Errors:         true,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
