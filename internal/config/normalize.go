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
	c.normalizeBuild()
	c.normalizeTools()
	c.normalizeButler()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBuild() {
	c.Build.AlbumFile = strings.TrimSpace(c.Build.AlbumFile)
	if c.Build.AlbumFile == "" {
		c.Build.AlbumFile = defaultAlbumFile
	}
}

func (c *Config) normalizeTools() {
	defaults := defaultTools()
	fill := func(value *string, fallback string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = fallback
		}
	}
	fill(&c.Tools.Lame, defaults.Lame)
	fill(&c.Tools.Oggenc, defaults.Oggenc)
	fill(&c.Tools.Vorbiscomment, defaults.Vorbiscomment)
	fill(&c.Tools.FLAC, defaults.FLAC)
	fill(&c.Tools.Metaflac, defaults.Metaflac)
	fill(&c.Tools.FFmpeg, defaults.FFmpeg)
	fill(&c.Tools.FFprobe, defaults.FFprobe)
	fill(&c.Tools.Butler, defaults.Butler)
}

func (c *Config) normalizeButler() {
	c.Butler.Target = strings.TrimSpace(c.Butler.Target)
	c.Butler.ChannelPrefix = strings.TrimSpace(c.Butler.ChannelPrefix)
	c.Butler.Args = strings.TrimSpace(c.Butler.Args)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("PRESSING_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
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
