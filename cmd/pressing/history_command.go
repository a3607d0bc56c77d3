package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pressing/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent builds, or show one build's failures",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := findRun(cmd, store, args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(out, renderRunDetail(*run))
				return nil
			}

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No builds recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortID(run.ID),
					run.StartedAt.Local().Format("2006-01-02 15:04"),
					run.Album,
					run.Status(),
					strconv.Itoa(run.Succeeded),
					strconv.Itoa(run.Failed),
					run.Duration().Round(time.Second).String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Started", "Album", "Status", "OK", "Failed", "Took"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of builds to list (0 for all)")
	return cmd
}

func findRun(cmd *cobra.Command, store *history.Store, id string) (*history.Run, error) {
	id = strings.TrimSpace(id)
	if run, err := store.Get(cmd.Context(), id); err != nil || run != nil {
		return run, err
	}
	runs, err := store.Recent(cmd.Context(), 0)
	if err != nil {
		return nil, err
	}
	var match *history.Run
	for i := range runs {
		if strings.HasPrefix(runs[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("run id %q is ambiguous", id)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no build with id %q", id)
	}
	return match, nil
}

func renderRunDetail(run history.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:      %s\n", run.ID)
	fmt.Fprintf(&b, "Album:    %s\n", run.Album)
	fmt.Fprintf(&b, "Output:   %s\n", run.OutputDir)
	fmt.Fprintf(&b, "Targets:  %s\n", strings.Join(run.Targets, ", "))
	fmt.Fprintf(&b, "Started:  %s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(&b, "Took:     %s\n", run.Duration().Round(time.Second))
	fmt.Fprintf(&b, "Status:   %s\n", run.Status())
	fmt.Fprintf(&b, "Units:    %d ok, %d failed, %d skipped, %d cancelled\n", run.Succeeded, run.Failed, run.Propagated, run.Aborted)
	if len(run.Failures) > 0 {
		rows := make([][]string, 0, len(run.Failures))
		for _, f := range run.Failures {
			rows = append(rows, []string{f.Phase, f.Unit, f.Outcome, f.Message})
		}
		b.WriteString(renderTable([]string{"Phase", "Unit", "Outcome", "Error"}, rows, nil))
		b.WriteString("\n")
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
