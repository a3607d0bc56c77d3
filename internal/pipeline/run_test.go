package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pressing/internal/album"
	"pressing/internal/services"
	"pressing/internal/targets"
)

type fakeKit struct {
	mu         sync.Mutex
	failEncode map[string]error
	block      bool
	started    atomic.Int32
	previews   []PreviewRequest
	discs      []DiscRequest
	channels   []string
}

func (f *fakeKit) toolkit() Toolkit {
	return Toolkit{
		Encoder:   f,
		Tagger:    f,
		Prober:    f,
		Art:       f,
		Preview:   f,
		Disc:      discFunc(f.buildDisc),
		Archiver:  f,
		Publisher: f,
	}
}

func (f *fakeKit) Encode(ctx context.Context, req EncodeRequest) error {
	f.started.Add(1)
	key := string(req.Target) + ":" + filepath.Base(req.Source)
	if f.block {
		if err := writeFile(req.Output, "partial"); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	}
	if err, ok := f.failEncode[key]; ok {
		_ = writeFile(req.Output, "partial")
		return err
	}
	return writeFile(req.Output, "audio "+key)
}

func (f *fakeKit) Tag(_ context.Context, req TagRequest) error {
	data, err := os.ReadFile(req.Output)
	if err != nil {
		return err
	}
	if strings.Contains(string(data), "\ntitle=") {
		return nil
	}
	tag := fmt.Sprintf("\ntitle=%s\ntrack=%d/%d", album.DisplayTitle(req.Index, req.Track), req.Index, req.Total)
	return writeFile(req.Output, string(data)+tag)
}

func (f *fakeKit) Duration(context.Context, string) (float64, error) { return 12.5, nil }

func (f *fakeKit) Render(_ context.Context, src, dst string, size int) error {
	return writeFile(dst, fmt.Sprintf("%s@%d", filepath.Base(src), size))
}

func (f *fakeKit) Files(PreviewRequest) []string { return []string{"index.html", "player.js"} }

func (f *fakeKit) Build(_ context.Context, req PreviewRequest) ([]string, error) {
	f.mu.Lock()
	f.previews = append(f.previews, req)
	f.mu.Unlock()
	var listing []string
	for _, tr := range req.Tracks {
		listing = append(listing, fmt.Sprintf("%s %.1f", tr.File, tr.Track.Duration))
	}
	if err := writeFile(filepath.Join(req.OutputDir, "index.html"), strings.Join(listing, "\n")); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(req.OutputDir, "player.js"), "play()"); err != nil {
		return nil, err
	}
	return []string{"index.html", "player.js"}, nil
}

func (f *fakeKit) buildDisc(_ context.Context, req DiscRequest) error {
	f.mu.Lock()
	f.discs = append(f.discs, req)
	f.mu.Unlock()
	if err := writeFile(filepath.Join(req.OutputDir, req.BinName), "pcm"); err != nil {
		return err
	}
	return writeFile(filepath.Join(req.OutputDir, req.CueName), fmt.Sprintf("tracks %d", len(req.Tracks)))
}

func (f *fakeKit) Archive(_ context.Context, dir, dest string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return writeFile(dest, strings.Join(names, "\n"))
}

func (f *fakeKit) Publish(_ context.Context, _ string, channel string) error {
	f.mu.Lock()
	f.channels = append(f.channels, channel)
	f.mu.Unlock()
	return nil
}

type discFunc func(context.Context, DiscRequest) error

func (fn discFunc) Build(ctx context.Context, req DiscRequest) error { return fn(ctx, req) }

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func newTestAlbum(t *testing.T, count int) *album.Album {
	t.Helper()
	dir := t.TempDir()
	a := &album.Album{Title: "Test Album", Artist: "Tester", Dir: dir}
	for i := 1; i <= count; i++ {
		name := fmt.Sprintf("%02d song.wav", i)
		if err := writeFile(filepath.Join(dir, name), "wav"); err != nil {
			t.Fatalf("write source: %v", err)
		}
		a.Tracks = append(a.Tracks, &album.Track{Filename: name, Title: fmt.Sprintf("Song %d", i)})
	}
	return a
}

func runAndWait(t *testing.T, opts Options, a *album.Album, kit Toolkit) (*Handle, Report) {
	t.Helper()
	h, err := Run(context.Background(), opts, a, kit)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	return h, h.Report()
}

func groupKeys(h *Handle) []string {
	var keys []string
	for _, g := range h.Groups() {
		keys = append(keys, g.Key().String())
	}
	sort.Strings(keys)
	return keys
}

func TestRunCreatesPhaseGroupsForTargets(t *testing.T) {
	tests := []struct {
		name    string
		enabled []targets.Target
		want    []string
		absent  []PhaseKey
	}{
		{
			name:    "single format",
			enabled: []targets.Target{targets.MP3},
			want:    []string{"build-mp3", "encode-mp3"},
		},
		{
			name:    "cleanup and zip",
			enabled: []targets.Target{targets.MP3, targets.Ogg, targets.Cleanup, targets.Zip},
			want: []string{
				"build-mp3", "build-ogg", "clean-mp3", "clean-ogg",
				"encode-mp3", "encode-ogg", "zip-mp3", "zip-ogg",
			},
		},
		{
			name:    "preview is published but not zipped",
			enabled: []targets.Target{targets.Preview, targets.FLAC, targets.Zip, targets.Publish},
			want: []string{
				"build-flac", "build-preview", "encode-flac", "encode-preview",
				"publish-flac", "publish-preview", "zip-flac",
			},
			absent: []PhaseKey{Key(StageZip, targets.Preview)},
		},
		{
			name:    "disc image",
			enabled: []targets.Target{targets.CDDA, targets.Cleanup},
			want:    []string{"build-cdda", "clean-cdda", "encode-cdda"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kit := &fakeKit{}
			opts := Options{
				OutputDir:    t.TempDir(),
				Threads:      2,
				Resolution:   targets.NewResolution(tt.enabled...),
				ButlerTarget: "someone/album",
			}
			h, report := runAndWait(t, opts, newTestAlbum(t, 2), kit.toolkit())
			if !report.Success {
				t.Fatalf("run failed: %+v", report.Failures)
			}
			if got := groupKeys(h); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("groups = %v, want %v", got, tt.want)
			}
			for _, key := range tt.absent {
				if _, ok := h.Group(key); ok {
					t.Fatalf("unexpected %s group", key)
				}
				if _, err := os.Stat(filepath.Join(opts.OutputDir, key.Target.String()+".zip")); !os.IsNotExist(err) {
					t.Fatalf("unexpected archive for %s: %v", key, err)
				}
			}
		})
	}
}

func TestRunIsolatesEncodeFailure(t *testing.T) {
	kit := &fakeKit{failEncode: map[string]error{
		"mp3:03 song.wav": services.Wrap(services.ErrExternalTool, "lame", "encode", "exit status 1", nil),
	}}
	out := t.TempDir()
	opts := Options{
		OutputDir:  out,
		Threads:    3,
		Resolution: targets.NewResolution(targets.MP3, targets.Ogg, targets.Cleanup, targets.Zip),
	}
	h, report := runAndWait(t, opts, newTestAlbum(t, 4), kit.toolkit())

	if report.Success {
		t.Fatal("expected run to fail")
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected exactly one failure, got %+v", report.Failures)
	}
	failure := report.Failures[0]
	if failure.Phase != Key(StageEncode, targets.MP3) || failure.Unit != "encode-mp3/track3" {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if !errors.Is(failure.Err, services.ErrEncode) || failure.Outcome != services.OutcomeSubprocess {
		t.Fatalf("unexpected failure classification %v (%s)", failure.Err, failure.Outcome)
	}

	mp3Dir := filepath.Join(out, "mp3")
	for _, name := range []string{"01 Song 1.mp3", "02 Song 2.mp3", "04 Song 4.mp3"} {
		if !fileExists(filepath.Join(mp3Dir, name)) {
			t.Fatalf("expected %s to be encoded", name)
		}
	}
	if fileExists(filepath.Join(mp3Dir, "03 Song 3.mp3")) {
		t.Fatal("failed encode left its partial output")
	}
	for i := 1; i <= 4; i++ {
		if !fileExists(filepath.Join(out, "ogg", fmt.Sprintf("%02d Song %d.ogg", i, i))) {
			t.Fatalf("ogg track %d missing", i)
		}
	}

	clean, _ := h.Group(Key(StageClean, targets.MP3))
	var prereq *PrerequisiteError
	if err := clean.Handles()[0].Err(); !errors.As(err, &prereq) || prereq.Origin.Name() != "encode-mp3/track3" {
		t.Fatalf("expected clean-mp3 to report the propagated failure, got %v", err)
	}
	if fileExists(filepath.Join(out, "mp3.zip")) {
		t.Fatal("mp3 archive built despite failed encode")
	}
	if !fileExists(filepath.Join(out, "ogg.zip")) {
		t.Fatal("ogg archive missing")
	}
	if report.Summary.Failed != 1 || report.Summary.Propagated != 3 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
}

func TestRunHiddenTrackOnlyInDownloads(t *testing.T) {
	kit := &fakeKit{}
	a := newTestAlbum(t, 2)
	a.Tracks[1].Hidden = true
	opts := Options{
		OutputDir:  t.TempDir(),
		Threads:    1,
		Resolution: targets.NewResolution(targets.MP3, targets.Preview),
	}
	h, report := runAndWait(t, opts, a, kit.toolkit())
	if !report.Success {
		t.Fatalf("run failed: %+v", report.Failures)
	}

	mp3, _ := h.Group(Key(StageEncode, targets.MP3))
	preview, _ := h.Group(Key(StageEncode, targets.Preview))
	if mp3.Len() != 2 || preview.Len() != 1 {
		t.Fatalf("encode-mp3 has %d units, encode-preview has %d", mp3.Len(), preview.Len())
	}
	if len(kit.previews) != 1 {
		t.Fatalf("expected one preview build, got %d", len(kit.previews))
	}
	req := kit.previews[0]
	if len(req.Tracks) != 1 || req.Tracks[0].Index != 1 {
		t.Fatalf("preview should list only track 1, got %+v", req.Tracks)
	}
	if a.Tracks[0].Duration != 12.5 {
		t.Fatalf("expected track 1 duration from preview encode, got %v", a.Tracks[0].Duration)
	}
	if a.Tracks[1].Duration != 0 {
		t.Fatalf("hidden track must not get a duration, got %v", a.Tracks[1].Duration)
	}
	index, err := os.ReadFile(filepath.Join(opts.OutputDir, "preview", "index.html"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if string(index) != "01 Song 1.mp3 12.5" {
		t.Fatalf("build-preview ran before the preview encode finished: %q", index)
	}
}

func TestRunEmptyPreviewGroup(t *testing.T) {
	kit := &fakeKit{}
	a := newTestAlbum(t, 2)
	for _, tr := range a.Tracks {
		tr.Hidden = true
	}
	opts := Options{
		OutputDir:  t.TempDir(),
		Resolution: targets.NewResolution(targets.Preview, targets.Cleanup),
	}
	h, report := runAndWait(t, opts, a, kit.toolkit())
	if !report.Success {
		t.Fatalf("run failed: %+v", report.Failures)
	}
	group, ok := h.Group(Key(StageEncode, targets.Preview))
	if !ok || group.Len() != 0 {
		t.Fatalf("expected an empty encode-preview group, got %v", group)
	}
	if len(kit.previews) != 1 || len(kit.previews[0].Tracks) != 0 {
		t.Fatalf("expected one empty preview build, got %+v", kit.previews)
	}
}

func TestCleanPreviewKeepsPlayerAndArt(t *testing.T) {
	kit := &fakeKit{}
	a := newTestAlbum(t, 2)
	if err := writeFile(filepath.Join(a.Dir, "cover.png"), "png"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(a.Dir, "two.jpg"), "jpg"); err != nil {
		t.Fatal(err)
	}
	a.Artwork = "cover.png"
	a.Tracks[1].Artwork = "two.jpg"

	out := t.TempDir()
	previewDir := filepath.Join(out, "preview")
	if err := os.MkdirAll(filepath.Join(previewDir, "junk"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, stale := range []string{"00 old track.mp3", "old.150.jpg", "junk/left.txt"} {
		if err := writeFile(filepath.Join(previewDir, stale), "stale"); err != nil {
			t.Fatal(err)
		}
	}

	opts := Options{
		OutputDir:  out,
		Threads:    4,
		Resolution: targets.NewResolution(targets.Preview, targets.Cleanup),
	}
	h, report := runAndWait(t, opts, a, kit.toolkit())
	if !report.Success {
		t.Fatalf("run failed: %+v", report.Failures)
	}

	entries, err := os.ReadDir(previewDir)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	want := []string{
		"01 Song 1.mp3", "02 Song 2.mp3",
		"cover.150.jpg", "cover.300.jpg",
		"index.html", "player.js",
		"two.150.jpg", "two.300.jpg",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("preview dir = %v, want %v", got, want)
	}
	for _, name := range want {
		if !h.Protections(targets.Preview).Contains(name) {
			t.Fatalf("%s not protected", name)
		}
	}
	req := kit.previews[0]
	if req.Art1x != "cover.150.jpg" || req.Tracks[1].Art2x != "two.300.jpg" || req.Tracks[0].Art1x != "" {
		t.Fatalf("unexpected art names %+v", req)
	}
}

func TestRunRerunIsByteIdentical(t *testing.T) {
	a := newTestAlbum(t, 3)
	out := t.TempDir()
	opts := Options{
		OutputDir: out,
		Threads:   4,
		Resolution: targets.NewResolution(
			targets.Preview, targets.MP3, targets.Ogg, targets.CDDA,
			targets.Cleanup, targets.Zip,
		),
	}

	first := &fakeKit{}
	if _, report := runAndWait(t, opts, a, first.toolkit()); !report.Success {
		t.Fatalf("first run failed: %+v", report.Failures)
	}
	before := hashTree(t, out)

	second := &fakeKit{}
	if _, report := runAndWait(t, opts, a, second.toolkit()); !report.Success {
		t.Fatalf("second run failed: %+v", report.Failures)
	}
	after := hashTree(t, out)

	if !reflect.DeepEqual(before, after) {
		t.Fatalf("outputs changed between runs:\nbefore %v\nafter  %v", before, after)
	}
	if len(first.discs) != 1 || len(first.discs[0].Tracks) != 3 {
		t.Fatalf("expected one disc build over three tracks, got %+v", first.discs)
	}
}

func hashTree(t *testing.T, root string) map[string]string {
	t.Helper()
	sums := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		rel, _ := filepath.Rel(root, path)
		sums[rel] = hex.EncodeToString(sum[:])
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return sums
}

func TestCancelRemovesPartialOutputs(t *testing.T) {
	kit := &fakeKit{block: true}
	out := t.TempDir()
	opts := Options{
		OutputDir:  out,
		Threads:    2,
		Resolution: targets.NewResolution(targets.MP3),
	}
	h, err := Run(context.Background(), opts, newTestAlbum(t, 4), kit.toolkit())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for kit.started.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("encodes never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.Cancel()

	success, failures := h.AwaitAll()
	if success {
		t.Fatal("cancelled run reported success")
	}
	if len(failures) != 0 {
		t.Fatalf("cancellations must not be reported as failures: %+v", failures)
	}
	if got := kit.started.Load(); got != 2 {
		t.Fatalf("queued encodes ran after cancel: %d started", got)
	}
	entries, err := os.ReadDir(filepath.Join(out, "mp3"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("partial outputs left behind: %v", entries)
	}
	if summary := h.Report().Summary; summary.Cancelled != 5 {
		t.Fatalf("expected all five units cancelled, got %+v", summary)
	}
}

func TestRunPublishChannels(t *testing.T) {
	kit := &fakeKit{}
	opts := Options{
		OutputDir:     t.TempDir(),
		Resolution:    targets.NewResolution(targets.MP3, targets.FLAC, targets.Publish),
		ButlerTarget:  "someone/album",
		ChannelPrefix: "v1-",
	}
	if _, report := runAndWait(t, opts, newTestAlbum(t, 1), kit.toolkit()); !report.Success {
		t.Fatalf("run failed: %+v", report.Failures)
	}
	sort.Strings(kit.channels)
	want := []string{"someone/album:v1-flac", "someone/album:v1-mp3"}
	if !reflect.DeepEqual(kit.channels, want) {
		t.Fatalf("channels = %v, want %v", kit.channels, want)
	}
}

func TestRunConfigurationErrors(t *testing.T) {
	kit := (&fakeKit{}).toolkit()
	tests := []struct {
		name string
		opts Options
	}{
		{"no formats", Options{Resolution: targets.NewResolution(targets.Zip, targets.Cleanup)}},
		{"publish without target", Options{Resolution: targets.NewResolution(targets.MP3, targets.Publish)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.OutputDir = t.TempDir()
			_, err := Run(context.Background(), tt.opts, newTestAlbum(t, 1), kit)
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}
