package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBuild(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validateBuild() error {
	if c.Build.Threads < 0 {
		return errors.New("build.threads must be zero (host cores) or positive")
	}
	if c.Build.AlbumFile != filepath.Base(c.Build.AlbumFile) {
		return fmt.Errorf("build.album_file must be a bare filename, got %q", c.Build.AlbumFile)
	}
	switch filepath.Ext(c.Build.AlbumFile) {
	case ".json", ".yaml", ".yml":
	default:
		return fmt.Errorf("build.album_file must end in .json, .yaml or .yml, got %q", c.Build.AlbumFile)
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
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero (keep forever) or positive")
	}
	if c.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be zero (keep forever) or positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}
