package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"pressing/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PRESSING_NTFY_TOPIC", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "pressing", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if want := filepath.Join(tempHome, ".local", "share", "pressing"); cfg.Paths.StateDir != want {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, want)
	}
	if cfg.HistoryPath() != filepath.Join(cfg.Paths.StateDir, "history.db") {
		t.Fatalf("unexpected history path %q", cfg.HistoryPath())
	}
	if cfg.Build.Threads != 0 || cfg.Build.AlbumFile != "album.json" {
		t.Fatalf("unexpected build defaults: %+v", cfg.Build)
	}
	if cfg.Targets.MP3 != nil || cfg.Targets.CDDA != nil {
		t.Fatal("expected caller target switches to be unset by default")
	}
	if cfg.Tools.Lame != "lame" || cfg.Tools.Butler != "butler" {
		t.Fatalf("unexpected tool defaults: %+v", cfg.Tools)
	}
	if got := cfg.EncoderArgs("mp3"); strings.Join(got, " ") != "-V 0 -q 0 -m j" {
		t.Fatalf("unexpected mp3 args %v", got)
	}
	if got := cfg.EncoderArgs("ogg"); len(got) != 0 {
		t.Fatalf("expected no ogg args, got %v", got)
	}
	if !cfg.History.Enabled {
		t.Fatal("expected history enabled by default")
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	content := `
[paths]
state_dir = "` + filepath.Join(dir, "state") + `"

[build]
threads = 3
album_file = "album.yaml"

[targets]
ogg = false
cdda = true

[tools]
lame = "/opt/lame/bin/lame"

[butler]
target = "someone/album"
channel_prefix = "lp-"
args = "--if-changed"

[logging]
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom path to resolve, got %q exists=%v", resolved, exists)
	}
	if cfg.Build.Threads != 3 || cfg.Build.AlbumFile != "album.yaml" {
		t.Fatalf("unexpected build section: %+v", cfg.Build)
	}
	if cfg.Targets.Ogg == nil || *cfg.Targets.Ogg {
		t.Fatal("expected ogg explicitly disabled")
	}
	if cfg.Targets.CDDA == nil || !*cfg.Targets.CDDA {
		t.Fatal("expected cdda explicitly enabled")
	}
	if cfg.Targets.MP3 != nil {
		t.Fatal("expected mp3 to stay unset")
	}
	if cfg.Tools.Lame != "/opt/lame/bin/lame" || cfg.Tools.Oggenc != "oggenc" {
		t.Fatalf("unexpected tools: %+v", cfg.Tools)
	}
	if got := cfg.ButlerArgs(); len(got) != 1 || got[0] != "--if-changed" {
		t.Fatalf("unexpected butler args %v", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected level to be normalized, got %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[build]\nthreadz = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestNtfyTopicFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PRESSING_NTFY_TOPIC", "https://ntfy.sh/releases")
	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.sh/releases" {
		t.Fatalf("expected topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	def := config.Default()
	if cfg.Encoders != def.Encoders {
		t.Fatalf("sample encoders drifted from defaults: %+v", cfg.Encoders)
	}
	if cfg.Tools != def.Tools {
		t.Fatalf("sample tools drifted from defaults: %+v", cfg.Tools)
	}
	if !strings.Contains(cfg.Paths.StateDir, "pressing") {
		t.Fatalf("expected state dir to contain pressing, got %q", cfg.Paths.StateDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"negative threads", func(c *config.Config) { c.Build.Threads = -1 }},
		{"album file with directory", func(c *config.Config) { c.Build.AlbumFile = "sub/album.json" }},
		{"album file extension", func(c *config.Config) { c.Build.AlbumFile = "album.txt" }},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }},
		{"log level", func(c *config.Config) { c.Logging.Level = "verbose" }},
		{"retention", func(c *config.Config) { c.Logging.RetentionDays = -1 }},
		{"history retention", func(c *config.Config) { c.History.RetentionDays = -1 }},
		{"notify timeout", func(c *config.Config) { c.Notifications.RequestTimeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
