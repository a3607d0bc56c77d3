package preflight

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"pressing/internal/config"
	"pressing/internal/deps"
	"pressing/internal/services"
	"pressing/internal/targets"
)

const (
	versionProbeTimeout = 5 * time.Second
	maxVersionProbes    = 4
)

// ToolReport pairs a binary availability status with its reported version.
// ProbeErr is set when an available tool did not answer its version query.
type ToolReport struct {
	Status   deps.Status
	Version  string
	ProbeErr error
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// Requirements lists every external program pressing can invoke, annotated
// with the targets that depend on it.
func Requirements(tools config.Tools) []deps.Requirement {
	type entry struct {
		name, command, description string
	}
	entries := []entry{
		{"LAME", tools.Lame, "MP3 and preview encoding"},
		{"oggenc", tools.Oggenc, "Ogg Vorbis encoding"},
		{"vorbiscomment", tools.Vorbiscomment, "Ogg Vorbis tagging"},
		{"FLAC", tools.FLAC, "FLAC encoding"},
		{"metaflac", tools.Metaflac, "FLAC tagging"},
		{"FFmpeg", tools.FFmpeg, "CD audio decoding"},
		{"FFprobe", tools.FFprobe, "Track duration probing for the preview player"},
		{"butler", tools.Butler, "itch.io uploads"},
	}
	requirements := make([]deps.Requirement, 0, len(entries))
	for _, e := range entries {
		req := deps.Requirement{Name: e.name, Command: e.command, Description: e.description}
		for _, t := range targets.All {
			for _, tool := range targets.RequiredTools(t, tools) {
				if tool == e.command {
					req.Targets = append(req.Targets, string(t))
				}
			}
		}
		req.Optional = len(req.Targets) == 0
		requirements = append(requirements, req)
	}
	return requirements
}

// CheckTools looks up every configured tool and, for those present, captures
// the first line of their version output. Probes run concurrently. A probe
// failure is recorded on its report; only cancellation of ctx is returned.
func CheckTools(ctx context.Context, cfg *config.Config) ([]ToolReport, error) {
	statuses := deps.CheckBinaries(Requirements(cfg.Tools))
	reports := make([]ToolReport, len(statuses))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxVersionProbes)
	for i, status := range statuses {
		reports[i].Status = status
		if !status.Available {
			continue
		}
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			version, err := probeVersion(groupCtx, status.Path, versionArgs(status.Name))
			reports[i].Version = version
			reports[i].ProbeErr = err
			return ctx.Err()
		})
	}
	if err := group.Wait(); err != nil {
		return reports, services.Wrap(services.ErrCancelled, "preflight", "check tools", "", err)
	}
	return reports, nil
}

// ProbeBinary reports whether binary resolves on PATH. It is the tool probe
// used by target resolution.
func ProbeBinary(binary string) error {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return services.Wrap(services.ErrToolUnavailable, "preflight", "lookup", "command not configured", nil)
	}
	if _, err := exec.LookPath(binary); err != nil {
		return services.Wrap(services.ErrToolUnavailable, "preflight", "lookup", binary, err)
	}
	return nil
}

func versionArgs(name string) []string {
	switch name {
	case "FFmpeg", "FFprobe":
		return []string{"-version"}
	case "butler":
		return []string{"version"}
	default:
		return []string{"--version"}
	}
}

func probeVersion(ctx context.Context, path string, args []string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, path, args...) //nolint:gosec
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	runErr := cmd.Run()
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	if runErr != nil {
		return "", fmt.Errorf("version probe: %w", runErr)
	}
	return "", nil
}
