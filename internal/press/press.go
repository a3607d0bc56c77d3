package press

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"pressing/internal/album"
	"pressing/internal/config"
	"pressing/internal/history"
	"pressing/internal/logging"
	"pressing/internal/notifications"
	"pressing/internal/pipeline"
	"pressing/internal/preflight"
	"pressing/internal/services"
	"pressing/internal/targets"
)

// LockFile is created in the output directory for the duration of a build.
const LockFile = ".pressing.lock"

// ErrOutputLocked reports that another build holds the output directory.
var ErrOutputLocked = errors.New("output directory locked")

// Request describes one build invocation.
type Request struct {
	// AlbumPath is an album file or a directory holding cfg.Build.AlbumFile.
	AlbumPath string
	// OutputDir defaults to "output" next to the album file.
	OutputDir string
	// Targets are command-line switches; they override config and album.
	Targets targets.Choices
	// Threads overrides cfg.Build.Threads when positive.
	Threads      int
	ButlerTarget string
	ButlerPrefix string

	// Probe and Toolkit replace tool lookup and the real collaborators.
	Probe   targets.Probe
	Toolkit *pipeline.Toolkit
}

// Result is the outcome of a finished session.
type Result struct {
	RunID      string
	Album      string
	OutputDir  string
	Resolution targets.Resolution
	Report     pipeline.Report
	Cancelled  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall-clock time of the build.
func (r Result) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Session is a running build.
type Session struct {
	ID        string
	Album     *album.Album
	OutputDir string

	cfg      *config.Config
	handle   *pipeline.Handle
	lock     *flock.Flock
	logger   *slog.Logger
	closeLog func() error
	notifier notifications.Service
	started  time.Time

	waitOnce sync.Once
	result   Result
	err      error
}

// Handle exposes the pipeline handle for progress views.
func (s *Session) Handle() *pipeline.Handle { return s.handle }

// Cancel aborts the build without blocking.
func (s *Session) Cancel() { s.handle.Cancel() }

// AlbumFile returns the album description path for path, which may name the
// file itself or the directory containing it.
func AlbumFile(cfg *config.Config, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = "."
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrIO, "press", "album", path, err)
	}
	if info.IsDir() {
		return filepath.Join(path, cfg.Build.AlbumFile), nil
	}
	return path, nil
}

// Start loads the album, resolves targets, locks the output directory and
// submits the build. The caller must call Wait.
func Start(ctx context.Context, cfg *config.Config, req Request, base *slog.Logger) (*Session, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "press", "start", "config is required", nil)
	}
	if base == nil {
		base = logging.NewNop()
	}

	albumPath, err := AlbumFile(cfg, req.AlbumPath)
	if err != nil {
		return nil, err
	}
	a, err := album.Load(albumPath)
	if err != nil {
		return nil, err
	}

	butlerTarget, butlerPrefix := butlerSettings(cfg, req, a)
	probe := req.Probe
	if probe == nil {
		probe = preflight.ProbeBinary
	}
	caller := targets.ChoicesFromConfig(cfg.Targets).Merge(req.Targets)
	res, err := targets.Resolve(caller, a.Choices(), targets.Request{
		Tools:        cfg.Tools,
		Probe:        probe,
		ButlerTarget: butlerTarget,
	})
	if err != nil {
		return nil, err
	}
	for _, d := range res.Diagnostics() {
		logging.WarnWithContext(base, "target disabled", "target_disabled",
			logging.String("target", d.Target.String()),
			logging.String("tool", d.Tool),
			logging.Error(d.Err),
		)
	}

	outDir := req.OutputDir
	if strings.TrimSpace(outDir) == "" {
		outDir = filepath.Join(a.Dir, "output")
	}
	if outDir, err = filepath.Abs(outDir); err != nil {
		return nil, services.Wrap(services.ErrIO, "press", "output dir", req.OutputDir, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrIO, "press", "output dir", outDir, err)
	}

	lock := flock.New(filepath.Join(outDir, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "press", "lock", outDir, err)
	}
	if !ok {
		return nil, services.Wrap(ErrOutputLocked, "press", "lock", outDir, nil)
	}

	id := uuid.NewString()
	logger, closeLog, err := logging.NewRunLogger(cfg, base, id)
	if err != nil {
		_ = lock.Unlock()
		return nil, services.Wrap(services.ErrIO, "press", "run log", "", err)
	}
	logger = logger.With(logging.String("run_id", id))

	kit := NewToolkit(cfg, logger)
	if req.Toolkit != nil {
		kit = *req.Toolkit
	}
	threads := cfg.Build.Threads
	if req.Threads > 0 {
		threads = req.Threads
	}

	s := &Session{
		ID:        id,
		Album:     a,
		OutputDir: outDir,
		cfg:       cfg,
		lock:      lock,
		logger:    logger,
		closeLog:  closeLog,
		notifier:  notifications.NewService(cfg),
		started:   time.Now(),
	}

	runCtx := services.WithRunID(ctx, id)
	handle, err := pipeline.Run(runCtx, pipeline.Options{
		OutputDir:     outDir,
		Threads:       threads,
		Resolution:    res,
		ButlerTarget:  butlerTarget,
		ChannelPrefix: butlerPrefix,
		Logger:        logger,
	}, a, kit)
	if err != nil {
		s.release()
		return nil, err
	}
	s.handle = handle
	logger.Info("build started",
		logging.String("album", a.Title),
		logging.String("output", outDir),
	)
	return s, nil
}

// Wait blocks until the build is terminal, then records and announces the
// result and releases the output lock. It is safe to call more than once.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	s.waitOnce.Do(func() {
		report := s.handle.Report()
		s.result = Result{
			RunID:      s.ID,
			Album:      s.Album.Title,
			OutputDir:  s.OutputDir,
			Resolution: s.handle.Resolution(),
			Report:     report,
			Cancelled:  s.handle.Cancelled(),
			StartedAt:  s.started,
			FinishedAt: time.Now(),
		}
		s.logResult()
		s.err = s.record(ctx)
		s.notify(ctx)
		s.release()
	})
	return s.result, s.err
}

func (s *Session) logResult() {
	r := s.result
	attrs := []logging.Attr{
		logging.Bool("success", r.Report.Success),
		logging.Bool("cancelled", r.Cancelled),
		logging.Int("succeeded", r.Report.Summary.Succeeded),
		logging.Int("failed", r.Report.Summary.Failed),
		logging.Int("propagated", r.Report.Summary.Propagated),
		logging.Duration("elapsed", r.Duration()),
	}
	if r.Report.Success {
		s.logger.Info("build finished", logging.Args(attrs...)...)
		return
	}
	for _, f := range r.Report.Failures {
		logging.ErrorWithContext(s.logger, "unit failed", "unit_failed",
			logging.String("phase", f.Phase.String()),
			logging.String("unit", f.Unit),
			logging.String("outcome", string(f.Outcome)),
			logging.Error(f.Err),
		)
	}
	logging.WarnWithContext(s.logger, "build finished with failures", "build_failed", attrs...)
}

func (s *Session) record(ctx context.Context) error {
	if !s.cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(s.cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	r := s.result
	run := history.Run{
		ID:         r.RunID,
		Album:      r.Album,
		AlbumDir:   s.Album.Dir,
		OutputDir:  r.OutputDir,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Success:    r.Report.Success,
		Cancelled:  r.Cancelled,
		Succeeded:  r.Report.Summary.Succeeded,
		Failed:     r.Report.Summary.Failed,
		Propagated: r.Report.Summary.Propagated,
		Aborted:    r.Report.Summary.Cancelled,
	}
	for _, t := range r.Resolution.Targets() {
		run.Targets = append(run.Targets, t.String())
	}
	for _, f := range r.Report.Failures {
		run.Failures = append(run.Failures, history.Failure{
			Phase:   f.Phase.String(),
			Unit:    f.Unit,
			Outcome: string(f.Outcome),
			Message: errorText(f.Err),
		})
	}
	if err := store.Record(ctx, run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	if days := s.cfg.History.RetentionDays; days > 0 {
		cutoff := r.StartedAt.AddDate(0, 0, -days)
		if removed, err := store.Prune(ctx, cutoff); err != nil {
			logging.WarnWithContext(s.logger, "history prune failed", "history_prune_failed",
				logging.Error(err),
			)
		} else if removed > 0 {
			s.logger.Debug("history pruned", logging.Int64("removed", removed))
		}
	}
	return nil
}

func (s *Session) notify(ctx context.Context) {
	r := s.result
	result := notifications.BuildResult{
		Album:     r.Album,
		OutputDir: r.OutputDir,
		Success:   r.Report.Success,
		Cancelled: r.Cancelled,
		Succeeded: r.Report.Summary.Succeeded,
		Failed:    r.Report.Summary.Failed + r.Report.Summary.Propagated,
		Duration:  r.Duration(),
	}
	for _, f := range r.Report.Failures {
		result.Failures = append(result.Failures, fmt.Sprintf("%s: %s: %s", f.Phase, f.Unit, errorText(f.Err)))
	}
	if err := s.notifier.NotifyBuildCompleted(ctx, result); err != nil {
		logging.WarnWithContext(s.logger, "notification failed", "notify_failed", logging.Error(err))
	}
}

func (s *Session) release() {
	if err := s.lock.Unlock(); err != nil {
		logging.WarnWithContext(s.logger, "failed to release output lock", "lock_release_failed", logging.Error(err))
	}
	if s.closeLog != nil {
		_ = s.closeLog()
	}
}

func butlerSettings(cfg *config.Config, req Request, a *album.Album) (string, string) {
	target := firstNonEmpty(req.ButlerTarget, cfg.Butler.Target, a.ButlerTarget)
	prefix := firstNonEmpty(req.ButlerPrefix, cfg.Butler.ChannelPrefix, a.ButlerPrefix)
	return target, prefix
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
