package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"pressing/internal/config"
	"pressing/internal/services"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestRequirementsMapTargets(t *testing.T) {
	reqs := Requirements(config.Default().Tools)
	byName := map[string][]string{}
	for _, r := range reqs {
		byName[r.Name] = r.Targets
	}
	if got := byName["LAME"]; !slices.Equal(got, []string{"preview", "mp3"}) {
		t.Fatalf("LAME targets = %v", got)
	}
	if got := byName["butler"]; !slices.Equal(got, []string{"publish"}) {
		t.Fatalf("butler targets = %v", got)
	}
	for _, r := range reqs {
		if r.Name == "FFprobe" && !r.Optional {
			t.Fatal("ffprobe gates no target and should be optional")
		}
	}
}

func writeStub(t *testing.T, dir, name, output string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\necho '" + output + "'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckToolsReportsVersions(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Tools.Lame = writeStub(t, dir, "lame", "LAME 64bits version 3.100")
	cfg.Tools.Oggenc = filepath.Join(dir, "missing-oggenc")

	reports, err := CheckTools(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("CheckTools returned error: %v", err)
	}
	if len(reports) != len(Requirements(cfg.Tools)) {
		t.Fatalf("unexpected report count %d", len(reports))
	}
	if !reports[0].Status.Available || reports[0].Version != "LAME 64bits version 3.100" {
		t.Fatalf("unexpected lame report %+v", reports[0])
	}
	if reports[1].Status.Available || reports[1].Version != "" {
		t.Fatalf("expected oggenc missing, got %+v", reports[1])
	}
}

func TestCheckToolsRecordsProbeFailure(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "flac")
	if err := os.WriteFile(broken, []byte("#!/bin/sh\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	cfg := config.Default()
	cfg.Tools.FLAC = broken

	reports, err := CheckTools(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("CheckTools returned error: %v", err)
	}
	idx := slices.IndexFunc(reports, func(r ToolReport) bool { return r.Status.Path == broken })
	if idx < 0 {
		t.Fatalf("flac stub missing from reports %+v", reports)
	}
	if !reports[idx].Status.Available || reports[idx].Version != "" || reports[idx].ProbeErr == nil {
		t.Fatalf("expected available flac with a probe error, got %+v", reports[idx])
	}
}

func TestCheckToolsStopsWhenCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.Lame = writeStub(t, t.TempDir(), "lame", "LAME 3.100")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CheckTools(ctx, &cfg)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}

func TestProbeBinary(t *testing.T) {
	stub := writeStub(t, t.TempDir(), "flac", "flac 1.4.3")
	if err := ProbeBinary(stub); err != nil {
		t.Fatalf("expected stub to resolve: %v", err)
	}
	err := ProbeBinary("clearly-not-present-binary")
	if !errors.Is(err, services.ErrToolUnavailable) {
		t.Fatalf("expected ErrToolUnavailable, got %v", err)
	}
	if err := ProbeBinary(" "); !errors.Is(err, services.ErrToolUnavailable) {
		t.Fatalf("expected ErrToolUnavailable for blank, got %v", err)
	}
}

func TestRunAllIncludesDirectories(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = ""
	results := RunAll(context.Background(), &cfg)
	if len(results) == 0 || results[0].Name != "State directory" || !results[0].Passed {
		t.Fatalf("unexpected first result %+v", results)
	}
	for _, r := range results {
		if r.Name == "Log directory" {
			t.Fatal("log directory check should be skipped when unset")
		}
	}
}
