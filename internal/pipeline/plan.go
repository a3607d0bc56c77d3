package pipeline

import (
	"path/filepath"
	"strconv"
	"strings"

	"pressing/internal/album"
	"pressing/internal/targets"
)

// Player art sizes and disc image names.
const (
	ArtSize1x = 150
	ArtSize2x = 300

	DiscBinName = "album.bin"
	DiscCueName = "album.cue"
)

// trackFormats are the targets encoded once per track.
var trackFormats = []targets.Target{targets.Preview, targets.MP3, targets.Ogg, targets.FLAC}

// Extension returns the file extension written for a per-track target.
func Extension(t targets.Target) string {
	switch t {
	case targets.Ogg:
		return "ogg"
	case targets.FLAC:
		return "flac"
	default:
		return "mp3"
	}
}

// trackPlan is computed once per track before submission and passed to every
// unit that touches the track.
type trackPlan struct {
	index int
	track *album.Track
	base  string
	files map[targets.Target]string
}

func (p trackPlan) file(t targets.Target) (string, bool) {
	name, ok := p.files[t]
	return name, ok
}

func planTracks(a *album.Album, res targets.Resolution) []trackPlan {
	plans := make([]trackPlan, 0, len(a.Tracks))
	for i, track := range a.Tracks {
		index := i + 1
		p := trackPlan{
			index: index,
			track: track,
			base:  album.BaseFilename(index, track),
			files: make(map[targets.Target]string),
		}
		for _, t := range trackFormats {
			if !res.Enabled(t) {
				continue
			}
			if t == targets.Preview && !track.PreviewEligible() {
				continue
			}
			p.files[t] = p.base + "." + Extension(t)
		}
		plans = append(plans, p)
	}
	return plans
}

// artPlan maps artwork sources to rendition names in the preview directory.
type artPlan struct {
	names map[string]string
	used  map[string]struct{}
	order []string
}

func newArtPlan() *artPlan {
	return &artPlan{names: make(map[string]string), used: make(map[string]struct{})}
}

// add registers src and returns its rendition stem, or "" for no art.
func (p *artPlan) add(src string) string {
	if src == "" {
		return ""
	}
	if stem, ok := p.names[src]; ok {
		return stem
	}
	name := filepath.Base(src)
	base := album.Slugify(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "art"
	}
	stem := base
	for n := 2; ; n++ {
		if _, taken := p.used[stem]; !taken {
			break
		}
		stem = base + "-" + strconv.Itoa(n)
	}
	p.used[stem] = struct{}{}
	p.names[src] = stem
	p.order = append(p.order, src)
	return stem
}

// RenditionName returns the file name of a size-bounded art rendition.
func RenditionName(stem string, size int) string {
	if stem == "" {
		return ""
	}
	return stem + "." + strconv.Itoa(size) + ".jpg"
}
