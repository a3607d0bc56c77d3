package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"pressing/internal/logging"
	"pressing/internal/press"
	"pressing/internal/targets"
	"pressing/internal/tui"
)

var targetHelp = map[targets.Target]string{
	targets.Preview: "the web preview player",
	targets.MP3:     "MP3 downloads",
	targets.Ogg:     "Ogg Vorbis downloads",
	targets.FLAC:    "FLAC downloads",
	targets.CDDA:    "the CD bin/cue image",
	targets.Zip:     "zip archives of each download format",
	targets.Publish: "itch.io uploads through butler",
	targets.Cleanup: "removal of stale files from output directories",
}

type targetFlags struct {
	on  map[targets.Target]*bool
	off map[targets.Target]*bool
}

func addTargetFlags(cmd *cobra.Command) *targetFlags {
	f := &targetFlags{on: map[targets.Target]*bool{}, off: map[targets.Target]*bool{}}
	for _, t := range targets.All {
		name := t.String()
		f.on[t] = cmd.Flags().Bool(name, false, "Enable "+targetHelp[t])
		f.off[t] = cmd.Flags().Bool("no-"+name, false, "Disable "+targetHelp[t])
	}
	return f
}

// choices returns only the switches given on the command line.
func (f *targetFlags) choices(cmd *cobra.Command) (targets.Choices, error) {
	out := targets.Choices{}
	for _, t := range targets.All {
		name := t.String()
		on := cmd.Flags().Changed(name) && *f.on[t]
		off := cmd.Flags().Changed("no-"+name) && *f.off[t]
		switch {
		case on && off:
			return nil, fmt.Errorf("--%s and --no-%s are mutually exclusive", name, name)
		case on:
			out.Set(t, true)
		case off:
			out.Set(t, false)
		}
	}
	return out, nil
}

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var (
		outputDir    string
		threads      int
		butlerTarget string
		butlerPrefix string
		noProgress   bool
	)

	cmd := &cobra.Command{
		Use:   "build [album-file-or-dir]",
		Short: "Encode, assemble, archive, and publish an album",
		Args:  cobra.MaximumNArgs(1),
	}
	flags := addTargetFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return err
		}
		choices, err := flags.choices(cmd)
		if err != nil {
			return err
		}
		logger, err := ctx.logger()
		if err != nil {
			return err
		}
		showProgress := !noProgress && isTerminal(cmd.ErrOrStderr())
		if showProgress {
			// the progress view owns the terminal; the run log still records everything
			logger = logging.NewNop()
		}

		albumPath := "."
		if len(args) == 1 {
			albumPath = args[0]
		}

		baseCtx := cmd.Context()
		session, err := press.Start(baseCtx, cfg, press.Request{
			AlbumPath:    albumPath,
			OutputDir:    outputDir,
			Targets:      choices,
			Threads:      threads,
			ButlerTarget: butlerTarget,
			ButlerPrefix: butlerPrefix,
		}, logger)
		if err != nil {
			return err
		}

		sigCtx, stop := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		finished := make(chan struct{})
		var (
			result  press.Result
			waitErr error
		)
		go func() {
			result, waitErr = session.Wait(baseCtx)
			close(finished)
		}()
		go func() {
			select {
			case <-sigCtx.Done():
				session.Cancel()
			case <-finished:
			}
		}()

		if showProgress {
			title := fmt.Sprintf("%s → %s", session.Album.Title, session.OutputDir)
			if err := tui.Run(baseCtx, title, session.Handle(), finished, cmd.ErrOrStderr()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "progress view: %v\n", err)
			}
		}
		<-finished

		printBuildResult(cmd.OutOrStdout(), result)
		if waitErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warn: %v\n", waitErr)
		}
		switch {
		case result.Cancelled:
			return errors.New("build cancelled")
		case !result.Report.Success:
			return fmt.Errorf("build failed: %d unit(s) failed", len(result.Report.Failures))
		}
		return nil
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: output/ next to the album file)")
	cmd.Flags().IntVarP(&threads, "threads", "j", 0, "Concurrent work units (default: config, then CPU count)")
	cmd.Flags().StringVar(&butlerTarget, "butler-target", "", "itch.io project for publishing (user/game)")
	cmd.Flags().StringVar(&butlerPrefix, "butler-prefix", "", "Prefix for butler channel names")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Log instead of showing the progress view")
	return cmd
}

func printBuildResult(out io.Writer, result press.Result) {
	for _, d := range result.Resolution.Diagnostics() {
		fmt.Fprintf(out, "note: %s\n", d)
	}

	if len(result.Report.Failures) > 0 {
		rows := make([][]string, 0, len(result.Report.Failures))
		for _, f := range result.Report.Failures {
			rows = append(rows, []string{f.Phase.String(), f.Unit, string(f.Outcome), errorLine(f.Err)})
		}
		fmt.Fprintln(out, renderTable([]string{"Phase", "Unit", "Outcome", "Error"}, rows, nil))
	}

	var names []string
	for _, t := range result.Resolution.Targets() {
		names = append(names, t.String())
	}
	summary := result.Report.Summary
	status := "succeeded"
	switch {
	case result.Cancelled:
		status = "cancelled"
	case !result.Report.Success:
		status = "failed"
	}
	fmt.Fprintf(out, "Build %s: %d ok, %d failed, %d skipped, %d cancelled in %s\n",
		status, summary.Succeeded, summary.Failed, summary.Propagated, summary.Cancelled,
		result.Duration().Round(time.Millisecond))
	fmt.Fprintf(out, "Targets: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(out, "Output:  %s\n", result.OutputDir)
}

func errorLine(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
