package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Build contains defaults for a build invocation.
type Build struct {
	Threads   int    `toml:"threads"`
	AlbumFile string `toml:"album_file"`
}

// Targets holds caller-level target switches. A nil field defers to the
// album file and then to the built-in default.
type Targets struct {
	MP3     *bool `toml:"mp3"`
	Ogg     *bool `toml:"ogg"`
	FLAC    *bool `toml:"flac"`
	Preview *bool `toml:"preview"`
	CDDA    *bool `toml:"cdda"`
	Zip     *bool `toml:"zip"`
	Publish *bool `toml:"publish"`
	Cleanup *bool `toml:"cleanup"`
}

// Tools maps external programs to the binary invoked for them.
type Tools struct {
	Lame          string `toml:"lame"`
	Oggenc        string `toml:"oggenc"`
	Vorbiscomment string `toml:"vorbiscomment"`
	FLAC          string `toml:"flac"`
	Metaflac      string `toml:"metaflac"`
	FFmpeg        string `toml:"ffmpeg"`
	FFprobe       string `toml:"ffprobe"`
	Butler        string `toml:"butler"`
}

// Encoders contains extra command-line arguments for each encoder.
type Encoders struct {
	PreviewArgs string `toml:"preview_args"`
	MP3Args     string `toml:"mp3_args"`
	OggArgs     string `toml:"ogg_args"`
	FLACArgs    string `toml:"flac_args"`
}

// Butler contains itch.io upload settings.
type Butler struct {
	Target        string `toml:"target"`
	ChannelPrefix string `toml:"channel_prefix"`
	Args          string `toml:"args"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnSuccess      bool   `toml:"on_success"`
	OnFailure      bool   `toml:"on_failure"`
}

// History controls the SQLite run history.
type History struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for pressing.
//
// Configuration sections by subsystem:
//   - Paths: state (history, locks) and log directories
//   - Build: worker count and album description filename
//   - Targets: caller-level output target switches
//   - Tools: external binaries
//   - Encoders: per-format encoder arguments
//   - Butler: itch.io publish target
//   - Notifications: ntfy push notification settings
//   - History: SQLite run history
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Build         Build         `toml:"build"`
	Targets       Targets       `toml:"targets"`
	Tools         Tools         `toml:"tools"`
	Encoders      Encoders      `toml:"encoders"`
	Butler        Butler        `toml:"butler"`
	Notifications Notifications `toml:"notifications"`
	History       History       `toml:"history"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pressing.toml")
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

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the SQLite history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// EncoderArgs returns the argument list configured for an encoder target
// ("preview", "mp3", "ogg" or "flac").
func (c *Config) EncoderArgs(target string) []string {
	switch target {
	case "preview":
		return strings.Fields(c.Encoders.PreviewArgs)
	case "mp3":
		return strings.Fields(c.Encoders.MP3Args)
	case "ogg":
		return strings.Fields(c.Encoders.OggArgs)
	case "flac":
		return strings.Fields(c.Encoders.FLACArgs)
	default:
		return nil
	}
}

// ButlerArgs returns the extra butler push arguments.
func (c *Config) ButlerArgs() []string {
	return strings.Fields(c.Butler.Args)
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

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
