package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pressing/internal/deps"
	"pressing/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			dirFailures := 0
			var dirRows [][]string
			dirs := []struct{ name, path string }{
				{"State directory", cfg.Paths.StateDir},
				{"Log directory", cfg.Paths.LogDir},
			}
			for _, d := range dirs {
				if strings.TrimSpace(d.path) == "" {
					continue
				}
				result := preflight.CheckDirectoryAccess(d.name, d.path)
				status := "ok"
				if !result.Passed {
					status = "FAIL"
					dirFailures++
				}
				dirRows = append(dirRows, []string{result.Name, status, result.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, dirRows, nil))

			reports, err := preflight.CheckTools(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			statuses := make([]deps.Status, 0, len(reports))
			var toolRows [][]string
			for _, report := range reports {
				s := report.Status
				statuses = append(statuses, s)
				status := "ok"
				detail := s.Path
				if report.Version != "" {
					detail += " (" + report.Version + ")"
				} else if report.ProbeErr != nil {
					detail += " (version unknown)"
				}
				if !s.Available {
					detail = s.Detail
					status = "missing"
					if s.Optional {
						status = "missing (optional)"
					}
				}
				toolRows = append(toolRows, []string{s.Name, status, strings.Join(s.Targets, ", "), detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Tool", "Status", "Targets", "Detail"}, toolRows, nil))

			if missing := deps.Missing(statuses); len(missing) > 0 {
				fmt.Fprintf(out, "%d tool(s) missing; the targets that need them are disabled at build time\n", len(missing))
			}
			if dirFailures > 0 {
				return fmt.Errorf("%d directory check(s) failed", dirFailures)
			}
			return nil
		},
	}
}
