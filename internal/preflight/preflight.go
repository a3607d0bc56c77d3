package preflight

import (
	"context"
	"strings"

	"pressing/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the host checks for the given config: writable state and log
// directories plus every configured tool.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	if strings.TrimSpace(cfg.Paths.LogDir) != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	reports, err := CheckTools(ctx, cfg)
	if err != nil {
		return append(results, Result{Name: "Tools", Detail: err.Error()})
	}
	for _, report := range reports {
		result := Result{Name: report.Status.Name, Passed: report.Status.Available, Detail: report.Status.Detail}
		if report.Status.Available {
			result.Detail = report.Status.Path
			if report.Version != "" {
				result.Detail += " (" + report.Version + ")"
			}
		}
		results = append(results, result)
	}
	return results
}
