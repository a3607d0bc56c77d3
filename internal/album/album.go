package album

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pressing/internal/fileutil"
	"pressing/internal/services"
	"pressing/internal/targets"
)

// Theme customizes the web preview player.
type Theme struct {
	Foreground string `json:"foreground,omitempty" yaml:"foreground,omitempty"`
	Background string `json:"background,omitempty" yaml:"background,omitempty"`
	Highlight  string `json:"highlight,omitempty" yaml:"highlight,omitempty"`
	UserCSS    string `json:"user_css,omitempty" yaml:"user_css,omitempty"`
	HideFooter bool   `json:"hide_footer,omitempty" yaml:"hide_footer,omitempty"`
}

// Year accepts both numeric and string release years.
type Year string

// UnmarshalJSON implements json.Unmarshaler.
func (y *Year) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*y = Year(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("year: %w", err)
	}
	*y = Year(n.String())
	return nil
}

// Track is one ordered entry of the album.
type Track struct {
	Filename string  `json:"filename,omitempty" yaml:"filename,omitempty"`
	Title    string  `json:"title,omitempty" yaml:"title,omitempty"`
	Artist   string  `json:"artist,omitempty" yaml:"artist,omitempty"`
	Genre    string  `json:"genre,omitempty" yaml:"genre,omitempty"`
	Composer string  `json:"composer,omitempty" yaml:"composer,omitempty"`
	Lyrics   *Lyrics `json:"lyrics,omitempty" yaml:"lyrics,omitempty"`
	Artwork  string  `json:"artwork,omitempty" yaml:"artwork,omitempty"`
	Hidden   bool    `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Preview  *bool   `json:"preview,omitempty" yaml:"preview,omitempty"`
	About    string  `json:"about,omitempty" yaml:"about,omitempty"`
	Group    string  `json:"group,omitempty" yaml:"group,omitempty"`
	CoverOf  string  `json:"cover_of,omitempty" yaml:"cover_of,omitempty"`
	Explicit bool    `json:"explicit,omitempty" yaml:"explicit,omitempty"`

	// Derived by Resolve; never serialized.
	SourcePath  string   `json:"-" yaml:"-"`
	ArtworkPath string   `json:"-" yaml:"-"`
	LyricLines  []string `json:"-" yaml:"-"`
	// Duration in seconds, written once by the track's preview encode unit.
	Duration float64 `json:"-" yaml:"-"`
}

// PreviewEligible reports whether the track appears in the web preview.
func (t *Track) PreviewEligible() bool {
	if t.Hidden {
		return false
	}
	return t.Preview == nil || *t.Preview
}

// Album is the album description plus album-level target defaults.
type Album struct {
	Title     string   `json:"title,omitempty" yaml:"title,omitempty"`
	Artist    string   `json:"artist,omitempty" yaml:"artist,omitempty"`
	Year      Year     `json:"year,omitempty" yaml:"year,omitempty"`
	Genre     string   `json:"genre,omitempty" yaml:"genre,omitempty"`
	Composer  string   `json:"composer,omitempty" yaml:"composer,omitempty"`
	CoverOf   string   `json:"cover_of,omitempty" yaml:"cover_of,omitempty"`
	Artwork   string   `json:"artwork,omitempty" yaml:"artwork,omitempty"`
	ArtistURL string   `json:"artist_url,omitempty" yaml:"artist_url,omitempty"`
	AlbumURL  string   `json:"album_url,omitempty" yaml:"album_url,omitempty"`
	Tracks    []*Track `json:"tracks" yaml:"tracks"`

	DoPreview *bool `json:"do_preview,omitempty" yaml:"do_preview,omitempty"`
	DoMP3     *bool `json:"do_mp3,omitempty" yaml:"do_mp3,omitempty"`
	DoOgg     *bool `json:"do_ogg,omitempty" yaml:"do_ogg,omitempty"`
	DoFLAC    *bool `json:"do_flac,omitempty" yaml:"do_flac,omitempty"`
	DoCDDA    *bool `json:"do_cdda,omitempty" yaml:"do_cdda,omitempty"`
	DoZip     *bool `json:"do_zip,omitempty" yaml:"do_zip,omitempty"`
	DoButler  *bool `json:"do_butler,omitempty" yaml:"do_butler,omitempty"`
	DoCleanup *bool `json:"do_cleanup,omitempty" yaml:"do_cleanup,omitempty"`

	ButlerTarget string `json:"butler_target,omitempty" yaml:"butler_target,omitempty"`
	ButlerPrefix string `json:"butler_prefix,omitempty" yaml:"butler_prefix,omitempty"`

	Theme Theme `json:"theme,omitzero" yaml:"theme,omitempty"`

	// Dir is the directory relative paths resolve against.
	Dir         string `json:"-" yaml:"-"`
	ArtworkPath string `json:"-" yaml:"-"`
}

// New returns the placeholder album used when initializing a directory.
func New(dir string) *Album {
	return &Album{Title: "ALBUM TITLE", Artist: "ALBUM ARTIST", Tracks: []*Track{}, Dir: dir}
}

// Choices returns the album-level target defaults.
func (a *Album) Choices() targets.Choices {
	out := targets.Choices{}
	for t, v := range map[targets.Target]*bool{
		targets.Preview: a.DoPreview,
		targets.MP3:     a.DoMP3,
		targets.Ogg:     a.DoOgg,
		targets.FLAC:    a.DoFLAC,
		targets.CDDA:    a.DoCDDA,
		targets.Zip:     a.DoZip,
		targets.Publish: a.DoButler,
		targets.Cleanup: a.DoCleanup,
	} {
		if v != nil {
			out.Set(t, *v)
		}
	}
	return out
}

// TrackArtist returns the performing artist of track, falling back to the album.
func (a *Album) TrackArtist(t *Track) string {
	if t.Artist != "" {
		return t.Artist
	}
	return a.Artist
}

// TrackGenre returns the genre of track, falling back to the album.
func (a *Album) TrackGenre(t *Track) string {
	if t.Genre != "" {
		return t.Genre
	}
	return a.Genre
}

// TrackComposer returns the composer of track, falling back to the album.
func (a *Album) TrackComposer(t *Track) string {
	if t.Composer != "" {
		return t.Composer
	}
	return a.Composer
}

// TrackCoverOf returns the original artist when track is a cover.
func (a *Album) TrackCoverOf(t *Track) string {
	if t.CoverOf != "" {
		return t.CoverOf
	}
	return a.CoverOf
}

// Load reads an album description. Files ending in .yaml or .yml are decoded
// as YAML, everything else as JSON.
func Load(path string) (*Album, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "album", "resolve path", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "album", "read", abs, err)
	}
	a := &Album{}
	if isYAML(abs) {
		err = yaml.Unmarshal(data, a)
	} else {
		err = json.Unmarshal(data, a)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "album", "decode", abs, err)
	}
	if a.Tracks == nil {
		a.Tracks = []*Track{}
	}
	a.Dir = filepath.Dir(abs)
	return a, nil
}

// Save writes the album description atomically in the format implied by the
// path's extension.
func Save(path string, a *Album) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(a)
	} else {
		data, err = json.MarshalIndent(a, "", "    ")
		data = append(data, '\n')
	}
	if err != nil {
		return services.Wrap(services.ErrValidation, "album", "encode", path, err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrIO, "album", "write", path, err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Validate checks the fields the build depends on.
func (a *Album) Validate() error {
	for i, t := range a.Tracks {
		if t == nil {
			return services.Wrap(services.ErrValidation, "album", "track "+strconv.Itoa(i+1), "empty track entry", nil)
		}
		if strings.TrimSpace(t.Filename) == "" {
			return services.Wrap(services.ErrValidation, "album", "track "+strconv.Itoa(i+1), "missing filename", nil)
		}
	}
	return nil
}

// Resolve fills the derived, non-serialized fields: absolute source and
// artwork paths and decoded lyric lines. Caller-supplied fields are untouched.
func (a *Album) Resolve() error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.Artwork != "" {
		a.ArtworkPath = a.path(a.Artwork)
	}
	for i, t := range a.Tracks {
		t.SourcePath = a.path(t.Filename)
		if t.Artwork != "" {
			t.ArtworkPath = a.path(t.Artwork)
		}
		lines, err := t.Lyrics.Resolve(a.Dir)
		if err != nil {
			return services.Wrap(services.ErrIO, "album", "track "+strconv.Itoa(i+1), "read lyrics", err)
		}
		t.LyricLines = lines
	}
	return nil
}

func (a *Album) path(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(a.Dir, name)
}
