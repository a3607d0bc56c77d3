package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"pressing/internal/album"
	"pressing/internal/logging"
	"pressing/internal/services"
	"pressing/internal/targets"
	"pressing/internal/workpool"
)

// Options configures one run.
type Options struct {
	OutputDir     string
	Threads       int
	Resolution    targets.Resolution
	ButlerTarget  string
	ChannelPrefix string
	Logger        *slog.Logger
}

// Channel returns the butler channel for a format.
func (o Options) Channel(t targets.Target) string {
	return o.ButlerTarget + ":" + o.ChannelPrefix + string(t)
}

// Handle is a running build.
type Handle struct {
	sched       *Scheduler
	pool        *workpool.Pool
	cancelCtx   context.CancelFunc
	resolution  targets.Resolution
	protections map[targets.Target]*Protections
	logger      *slog.Logger

	cancelled  atomic.Bool
	cancelOnce sync.Once

	awaitOnce sync.Once
	report    Report
}

// Groups returns the run's phase groups in creation order.
func (h *Handle) Groups() []*PhaseGroup { return h.sched.Groups() }

// Group returns the phase group for key.
func (h *Handle) Group(key PhaseKey) (*PhaseGroup, bool) { return h.sched.Lookup(key) }

// Protections returns the protected names of a format's output directory.
func (h *Handle) Protections(t targets.Target) *Protections { return h.protections[t] }

// Resolution returns the target set the run was built from.
func (h *Handle) Resolution() targets.Resolution { return h.resolution }

// Stats returns the worker pool counters.
func (h *Handle) Stats() workpool.Stats { return h.pool.Stats() }

// Cancel stops the run: queued units resolve as cancelled and running units
// see their context end. It does not block.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		h.cancelled.Store(true)
		h.logger.Info("cancelling build")
		go h.pool.Shutdown(true)
	})
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

// AwaitAll blocks until every unit is terminal and returns overall success
// with the de-duplicated root failures.
func (h *Handle) AwaitAll() (bool, []Failure) {
	report := h.Report()
	return report.Success, report.Failures
}

// Report blocks like AwaitAll and returns the full result.
func (h *Handle) Report() Report {
	h.awaitOnce.Do(func() {
		report, _ := Aggregate(context.Background(), h.sched)
		if h.cancelled.Load() {
			report.Success = false
		}
		h.pool.Shutdown(false)
		h.cancelCtx()
		h.report = report
	})
	return h.report
}

// Run resolves the album, creates the output directories and submits every
// unit of the build. Configuration problems are returned before any unit is
// submitted; unit failures are reported through the handle.
func Run(ctx context.Context, opts Options, a *album.Album, kit Toolkit) (*Handle, error) {
	if a == nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "run", "album is required", nil)
	}
	res := opts.Resolution
	if len(res.Formats()) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "run", "no output formats enabled", nil)
	}
	if opts.OutputDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "run", "output directory is required", nil)
	}
	if err := checkToolkit(opts, kit); err != nil {
		return nil, err
	}
	if err := a.Resolve(); err != nil {
		return nil, err
	}
	if err := targets.EnsureOutputDirs(opts.OutputDir, res); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "pipeline")

	runCtx, cancel := context.WithCancel(ctx)
	pool := workpool.New(runCtx, opts.Threads)
	h := &Handle{
		sched:       NewScheduler(pool, logger),
		pool:        pool,
		cancelCtx:   cancel,
		resolution:  res,
		protections: make(map[targets.Target]*Protections),
		logger:      logger,
	}
	for _, t := range res.Formats() {
		h.protections[t] = NewProtections()
	}

	r := &runner{opts: opts, album: a, kit: kit, handle: h, plans: planTracks(a, res)}
	r.submit()

	units := 0
	for _, g := range h.Groups() {
		units += g.Len()
	}
	logger.Info("build submitted",
		logging.Int("tracks", len(a.Tracks)),
		logging.Int("units", units),
		logging.Int("workers", pool.Size()),
		logging.Any("targets", res.Targets()),
	)
	return h, nil
}

func checkToolkit(opts Options, kit Toolkit) error {
	res := opts.Resolution
	missing := func(what string) error {
		return services.Wrap(services.ErrConfiguration, "pipeline", "run", what+" is not configured", nil)
	}
	for _, t := range trackFormats {
		if res.Enabled(t) && (kit.Encoder == nil || kit.Tagger == nil) {
			return missing("encoder")
		}
	}
	if res.Enabled(targets.Preview) && kit.Preview == nil {
		return missing("preview builder")
	}
	if res.Enabled(targets.CDDA) && kit.Disc == nil {
		return missing("disc builder")
	}
	if res.Enabled(targets.Zip) && kit.Archiver == nil {
		return missing("archiver")
	}
	if res.Enabled(targets.Publish) {
		if kit.Publisher == nil {
			return missing("publisher")
		}
		if opts.ButlerTarget == "" {
			return missing("butler target")
		}
	}
	return nil
}

type runner struct {
	opts   Options
	album  *album.Album
	kit    Toolkit
	handle *Handle
	plans  []trackPlan
}

func (r *runner) dir(t targets.Target) string {
	return targets.OutputDir(r.opts.OutputDir, t)
}

// submit creates every phase group in stage order and queues the units. Later
// stages take the full handle list of the stage before them.
func (r *runner) submit() {
	s := r.handle.sched
	res := r.handle.resolution
	formats := res.Formats()

	for _, t := range formats {
		s.Group(Key(StageEncode, t))
		r.submitEncode(t)
	}

	builds := make(map[targets.Target][]*workpool.Handle, len(formats))
	for _, t := range formats {
		encodes := mustGroup(s, Key(StageEncode, t)).Handles()
		builds[t] = []*workpool.Handle{r.submitBuild(t, encodes)}
	}

	finals := builds
	if res.Enabled(targets.Cleanup) {
		finals = make(map[targets.Target][]*workpool.Handle, len(formats))
		for _, t := range formats {
			finals[t] = []*workpool.Handle{r.submitClean(t, builds[t])}
		}
	}

	if res.Enabled(targets.Zip) {
		for _, t := range formats {
			if t == targets.Preview {
				continue
			}
			r.submitZip(t, finals[t])
		}
	}
	if res.Enabled(targets.Publish) {
		for _, t := range formats {
			r.submitPublish(t, finals[t])
		}
	}
}

func mustGroup(s *Scheduler, key PhaseKey) *PhaseGroup {
	g, ok := s.Lookup(key)
	if !ok {
		panic(fmt.Sprintf("pipeline: phase group %s was not created", key))
	}
	return g
}

func (r *runner) submitEncode(t targets.Target) {
	key := Key(StageEncode, t)
	prot := r.handle.protections[t]

	if t == targets.CDDA {
		prot.Add(DiscBinName, DiscCueName)
		r.handle.sched.Submit(key, "disc", 0, r.buildDisc)
		return
	}

	for _, plan := range r.plans {
		name, ok := plan.file(t)
		if !ok {
			continue
		}
		prot.Add(name)
		r.handle.sched.Submit(key, trackLabel(plan.index), plan.index, func(ctx context.Context, u *Unit) error {
			return r.encodeTrack(ctx, u, plan, t, name)
		})
	}
}

func (r *runner) encodeTrack(ctx context.Context, u *Unit, plan trackPlan, t targets.Target, name string) error {
	out := u.Output(filepath.Join(r.dir(t), name))
	op := trackLabel(plan.index)

	if err := r.kit.Encoder.Encode(ctx, EncodeRequest{Target: t, Source: plan.track.SourcePath, Output: out}); err != nil {
		return services.Wrap(services.ErrEncode, u.Phase().String(), op, "", err)
	}
	err := r.kit.Tagger.Tag(ctx, TagRequest{
		Target: t,
		Output: out,
		Album:  r.album,
		Track:  plan.track,
		Index:  plan.index,
		Total:  len(r.album.Tracks),
	})
	if err != nil {
		return services.Wrap(services.ErrTag, u.Phase().String(), op, "", err)
	}

	if t == targets.Preview && r.kit.Prober != nil {
		duration, err := r.kit.Prober.Duration(ctx, out)
		if err != nil {
			logging.WarnWithContext(u.Logger(), "duration probe failed", "duration_unavailable",
				logging.String("path", out),
				logging.Error(err),
				logging.String(logging.FieldImpact, "player shows no track length"),
			)
		} else {
			plan.track.Duration = duration
		}
	}
	return nil
}

func (r *runner) buildDisc(ctx context.Context, u *Unit) error {
	dir := r.dir(targets.CDDA)
	u.Output(filepath.Join(dir, DiscBinName))
	u.Output(filepath.Join(dir, DiscCueName))

	req := DiscRequest{Album: r.album, OutputDir: dir, BinName: DiscBinName, CueName: DiscCueName}
	for _, plan := range r.plans {
		req.Tracks = append(req.Tracks, DiscTrack{Index: plan.index, Track: plan.track})
	}
	if err := r.kit.Disc.Build(ctx, req); err != nil {
		return services.Wrap(services.ErrBuild, u.Phase().String(), "disc", "", err)
	}
	return nil
}

func (r *runner) submitBuild(t targets.Target, encodes []*workpool.Handle) *workpool.Handle {
	key := Key(StageBuild, t)
	if t != targets.Preview {
		return r.handle.sched.Submit(key, "", 0, func(context.Context, *Unit) error { return nil }, encodes...)
	}

	req, art := r.previewRequest()
	prot := r.handle.protections[t]
	prot.Add(r.kit.Preview.Files(req)...)
	for _, src := range art.order {
		stem := art.names[src]
		prot.Add(RenditionName(stem, ArtSize1x), RenditionName(stem, ArtSize2x))
	}

	return r.handle.sched.Submit(key, "", 0, func(ctx context.Context, u *Unit) error {
		return r.buildPreview(ctx, u, req, art)
	}, encodes...)
}

func (r *runner) previewRequest() (PreviewRequest, *artPlan) {
	art := newArtPlan()
	stem := func(src string) string {
		if r.kit.Art == nil {
			return ""
		}
		return art.add(src)
	}

	req := PreviewRequest{Album: r.album, OutputDir: r.dir(targets.Preview)}
	albumStem := stem(r.album.ArtworkPath)
	req.Art1x = RenditionName(albumStem, ArtSize1x)
	req.Art2x = RenditionName(albumStem, ArtSize2x)
	for _, plan := range r.plans {
		file, ok := plan.file(targets.Preview)
		if !ok {
			continue
		}
		trackStem := stem(plan.track.ArtworkPath)
		req.Tracks = append(req.Tracks, PreviewTrack{
			Index: plan.index,
			Track: plan.track,
			File:  file,
			Art1x: RenditionName(trackStem, ArtSize1x),
			Art2x: RenditionName(trackStem, ArtSize2x),
		})
	}
	return req, art
}

func (r *runner) buildPreview(ctx context.Context, u *Unit, req PreviewRequest, art *artPlan) error {
	for _, src := range art.order {
		stem := art.names[src]
		for _, size := range []int{ArtSize1x, ArtSize2x} {
			dst := u.Output(filepath.Join(req.OutputDir, RenditionName(stem, size)))
			if err := r.kit.Art.Render(ctx, src, dst, size); err != nil {
				return services.Wrap(services.ErrBuild, u.Phase().String(), "artwork", filepath.Base(src), err)
			}
		}
	}
	files, err := r.kit.Preview.Build(ctx, req)
	if err != nil {
		return services.Wrap(services.ErrBuild, u.Phase().String(), "player", "", err)
	}
	r.handle.protections[targets.Preview].Add(files...)
	u.Logger().Info("preview player built",
		logging.Int("tracks", len(req.Tracks)),
		logging.Int("files", len(files)),
	)
	return nil
}

func (r *runner) submitClean(t targets.Target, deps []*workpool.Handle) *workpool.Handle {
	prot := r.handle.protections[t]
	dir := r.dir(t)
	return r.handle.sched.Submit(Key(StageClean, t), "", 0, func(ctx context.Context, u *Unit) error {
		return cleanDir(ctx, u, dir, prot)
	}, deps...)
}

func cleanDir(ctx context.Context, u *Unit, dir string, prot *Protections) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return services.Wrap(services.ErrIO, u.Phase().String(), "list", dir, err)
	}
	var errs []error
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if prot.Contains(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
			continue
		}
		u.Logger().Info("removed stale output", logging.String("path", path))
	}
	if err := errors.Join(errs...); err != nil {
		return services.Wrap(services.ErrIO, u.Phase().String(), "remove", dir, err)
	}
	return nil
}

func (r *runner) submitZip(t targets.Target, deps []*workpool.Handle) {
	dir := r.dir(t)
	dest := filepath.Join(r.opts.OutputDir, string(t)+".zip")
	r.handle.sched.Submit(Key(StageZip, t), "", 0, func(ctx context.Context, u *Unit) error {
		if err := r.kit.Archiver.Archive(ctx, dir, dest); err != nil {
			return services.Wrap(services.ErrBuild, u.Phase().String(), "archive", filepath.Base(dest), err)
		}
		u.Logger().Info("archive written", logging.String("path", dest))
		return nil
	}, deps...)
}

func (r *runner) submitPublish(t targets.Target, deps []*workpool.Handle) {
	dir := r.dir(t)
	channel := r.opts.Channel(t)
	r.handle.sched.Submit(Key(StagePublish, t), "", 0, func(ctx context.Context, u *Unit) error {
		if err := r.kit.Publisher.Publish(ctx, dir, channel); err != nil {
			return services.Wrap(services.ErrPublish, u.Phase().String(), "push", channel, err)
		}
		u.Logger().Info("published", logging.String("channel", channel))
		return nil
	}, deps...)
}
