package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateContent(); err != nil {
		return err
	}
	if err := c.validateBus(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.StagingMaxAgeHours < 0 {
		return errors.New("workflow.staging_max_age_hours must be zero (disabled) or positive")
	}
	return nil
}

func (c *Config) validateContent() error {
	switch c.Content.Backend {
	case ContentBackendDir:
		if strings.TrimSpace(c.Content.Root) == "" {
			return errors.New("content.root must be set when content.backend is \"dir\"")
		}
	case ContentBackendSimpleContent:
		sc := c.Content.SimpleContent
		switch sc.DatabaseType {
		case "memory":
		case "postgres":
			if sc.DatabaseURL == "" {
				return errors.New("content.simple_content.database_url must be set for postgres (or set DATABASE_URL)")
			}
		default:
			return fmt.Errorf("content.simple_content.database_type: unsupported value %q", sc.DatabaseType)
		}
		switch sc.StorageBackend {
		case "memory":
		case "s3":
			if strings.TrimSpace(sc.S3Bucket) == "" {
				return errors.New("content.simple_content.s3_bucket must be set for s3 storage")
			}
		default:
			return fmt.Errorf("content.simple_content.storage_backend: unsupported value %q", sc.StorageBackend)
		}
	default:
		return fmt.Errorf("content.backend: unsupported value %q (expected %q or %q)", c.Content.Backend, ContentBackendDir, ContentBackendSimpleContent)
	}
	return nil
}

func (c *Config) validateBus() error {
	if c.Bus.NATSURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Bus.NATSURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("bus.nats_url: invalid url %q", c.Bus.NATSURL)
	}
	if c.Bus.ReadySubject == c.Bus.FailedSubject ||
		c.Bus.ReadySubject == c.Bus.StatusSubject ||
		c.Bus.FailedSubject == c.Bus.StatusSubject {
		return errors.New("bus.ready_subject, bus.failed_subject and bus.status_subject must differ")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
