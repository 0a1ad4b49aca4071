package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeDownload()
	if err := c.normalizeContent(); err != nil {
		return err
	}
	c.normalizeBus()
	c.normalizeNotifications()
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value := lookupEnv("MEDIACONV_STAGING_DIR"); value != "" {
		c.Paths.StagingDir = value
	}
	if value := lookupEnv("MEDIACONV_OUTPUT_DIR"); value != "" {
		c.Paths.OutputDir = value
	}
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.DownloadPollIntervalMS <= 0 {
		c.Workflow.DownloadPollIntervalMS = defaultDownloadPollIntervalMS
	}
}

func (c *Config) normalizeDownload() {
	c.Download.UserAgent = strings.TrimSpace(c.Download.UserAgent)
	if c.Download.UserAgent == "" {
		c.Download.UserAgent = defaultUserAgent
	}
	if c.Download.ConnectTimeoutSeconds <= 0 {
		c.Download.ConnectTimeoutSeconds = defaultConnectTimeoutSeconds
	}
}

func (c *Config) normalizeContent() error {
	c.Content.Backend = strings.ToLower(strings.TrimSpace(c.Content.Backend))
	if c.Content.Backend == "" {
		c.Content.Backend = defaultContentBackend
	}
	var err error
	if c.Content.Root, err = expandPath(c.Content.Root); err != nil {
		return fmt.Errorf("content.root: %w", err)
	}

	sc := &c.Content.SimpleContent
	sc.DatabaseType = strings.ToLower(strings.TrimSpace(sc.DatabaseType))
	if sc.DatabaseType == "" {
		sc.DatabaseType = defaultSimpleContentDatabase
	}
	if sc.DatabaseURL == "" {
		sc.DatabaseURL = lookupEnv("DATABASE_URL")
	}
	if strings.TrimSpace(sc.DatabaseSchema) == "" {
		sc.DatabaseSchema = defaultSimpleContentSchema
	}
	sc.StorageBackend = strings.ToLower(strings.TrimSpace(sc.StorageBackend))
	if sc.StorageBackend == "" {
		sc.StorageBackend = defaultSimpleContentStorage
	}
	if sc.S3AccessKeyID == "" {
		sc.S3AccessKeyID = lookupEnv("AWS_ACCESS_KEY_ID")
	}
	if sc.S3SecretKey == "" {
		sc.S3SecretKey = lookupEnv("AWS_SECRET_ACCESS_KEY")
	}
	if sc.S3Region == "" {
		sc.S3Region = "us-east-1"
	}
	return nil
}

func (c *Config) normalizeBus() {
	c.Bus.NATSURL = strings.TrimSpace(c.Bus.NATSURL)
	if c.Bus.NATSURL == "" {
		c.Bus.NATSURL = lookupEnv("MEDIACONV_NATS_URL")
	}
	if strings.TrimSpace(c.Bus.ReadySubject) == "" {
		c.Bus.ReadySubject = defaultReadySubject
	}
	if strings.TrimSpace(c.Bus.FailedSubject) == "" {
		c.Bus.FailedSubject = defaultFailedSubject
	}
	if strings.TrimSpace(c.Bus.StatusSubject) == "" {
		c.Bus.StatusSubject = defaultStatusSubject
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = lookupEnv("MEDIACONV_NTFY_TOPIC")
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	origins := c.API.AllowedOrigins[:0]
	for _, origin := range c.API.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.API.AllowedOrigins = origins
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
