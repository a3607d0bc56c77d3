package preview

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"pressing/internal/album"
	"pressing/internal/fileutil"
	"pressing/internal/logging"
	"pressing/internal/pipeline"
	"pressing/internal/services"
)

const (
	IndexFile  = "index.html"
	ScriptFile = "player.js"
	StyleFile  = "player.css"
	UserCSS    = "user.css"
)

const (
	DefaultForeground = "#000000"
	DefaultBackground = "#ffffff"
	DefaultHighlight  = "#7f0000"
)

//go:embed assets
var assets embed.FS

var index = template.Must(template.ParseFS(assets, "assets/index.html.tmpl"))

var colorPattern = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]{3,20})$`)

// Builder writes the web player. It implements pipeline.PreviewBuilder.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder returns a player builder.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Builder{logger: logging.NewComponentLogger(logger, "preview")}
}

// Files lists the names Build writes for req.
func (b *Builder) Files(req pipeline.PreviewRequest) []string {
	files := []string{IndexFile, ScriptFile, StyleFile}
	if req.Album != nil && req.Album.Theme.UserCSS != "" {
		files = append(files, UserCSS)
	}
	return files
}

// Build renders the player into req.OutputDir and returns the names written.
func (b *Builder) Build(ctx context.Context, req pipeline.PreviewRequest) ([]string, error) {
	if req.Album == nil {
		return nil, services.Wrap(services.ErrValidation, "preview", "build", "missing album", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrCancelled, "preview", "build", "", err)
	}

	var html bytes.Buffer
	if err := Render(&html, req); err != nil {
		return nil, services.Wrap(services.ErrBuild, "preview", "render", IndexFile, err)
	}

	written := make([]string, 0, 4)
	put := func(name string, data []byte) error {
		path := filepath.Join(req.OutputDir, name)
		if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
			written = append(written, name)
			return nil
		}
		if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
			return services.Wrap(services.ErrIO, "preview", "write", path, err)
		}
		written = append(written, name)
		return nil
	}

	if err := put(IndexFile, html.Bytes()); err != nil {
		return written, err
	}
	for _, name := range []string{ScriptFile, StyleFile} {
		data, err := assets.ReadFile("assets/" + name)
		if err != nil {
			return written, services.Wrap(services.ErrBuild, "preview", "asset", name, err)
		}
		if err := put(name, data); err != nil {
			return written, err
		}
	}
	if css := req.Album.Theme.UserCSS; css != "" {
		src := css
		if !filepath.IsAbs(src) {
			src = filepath.Join(req.Album.Dir, src)
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return written, services.Wrap(services.ErrIO, "preview", "read user css", src, err)
		}
		if err := put(UserCSS, data); err != nil {
			return written, err
		}
	}

	logging.WithContext(ctx, b.logger).Debug("player written",
		logging.String("dir", req.OutputDir),
		logging.Int("tracks", len(req.Tracks)),
	)
	return written, nil
}

type themeView struct {
	Foreground string
	Background string
	Highlight  string
}

type trackView struct {
	File     string
	Title    string
	Artist   string
	Explicit bool
	Duration string
	Seconds  string
	About    string
	Lyrics   []string
	Art1x    string
	Art2x    string
}

type albumView struct {
	Title      string
	Artist     string
	ArtistURL  string
	AlbumURL   string
	Art1x      string
	Art2x      string
	Theme      themeView
	UserCSS    string
	HideFooter bool
	Tracks     []trackView
}

// Render writes index.html for req to w.
func Render(w io.Writer, req pipeline.PreviewRequest) error {
	a := req.Album
	view := albumView{
		Title:     a.Title,
		Artist:    a.Artist,
		ArtistURL: a.ArtistURL,
		AlbumURL:  a.AlbumURL,
		Art1x:     req.Art1x,
		Art2x:     req.Art2x,
		Theme: themeView{
			Foreground: color(a.Theme.Foreground, DefaultForeground),
			Background: color(a.Theme.Background, DefaultBackground),
			Highlight:  color(a.Theme.Highlight, DefaultHighlight),
		},
		HideFooter: a.Theme.HideFooter,
		Tracks:     make([]trackView, 0, len(req.Tracks)),
	}
	if a.Theme.UserCSS != "" {
		view.UserCSS = UserCSS
	}
	for _, pt := range req.Tracks {
		t := pt.Track
		tv := trackView{
			File:     pt.File,
			Title:    album.DisplayTitle(pt.Index, t),
			Explicit: t.Explicit,
			About:    t.About,
			Lyrics:   t.LyricLines,
			Art1x:    pt.Art1x,
			Art2x:    pt.Art2x,
		}
		if t.Artist != "" && t.Artist != a.Artist {
			tv.Artist = t.Artist
		}
		if t.Duration > 0 {
			tv.Duration = Clock(t.Duration)
			tv.Seconds = strconv.FormatFloat(t.Duration, 'f', -1, 64)
		}
		view.Tracks = append(view.Tracks, tv)
	}
	return index.Execute(w, view)
}

// Clock formats seconds as m:ss, or h:mm:ss past an hour.
func Clock(seconds float64) string {
	total := int(seconds + 0.5)
	h, m, s := total/3600, (total/60)%60, total%60
	pad := func(n int) string {
		if n < 10 {
			return "0" + strconv.Itoa(n)
		}
		return strconv.Itoa(n)
	}
	if h > 0 {
		return strconv.Itoa(h) + ":" + pad(m) + ":" + pad(s)
	}
	return strconv.Itoa(m) + ":" + pad(s)
}

func color(value, fallback string) string {
	if colorPattern.MatchString(value) {
		return value
	}
	return fallback
}
