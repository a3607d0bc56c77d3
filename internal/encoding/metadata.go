package encoding

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"pressing/internal/album"
	"pressing/internal/pipeline"
)

// DigestKey names the tag that records which metadata a file was tagged with.
const DigestKey = "PRESSING_TAGS"

// Metadata is the tag set written for one track rendition.
type Metadata struct {
	Title          string
	Artist         string
	OriginalArtist string
	AlbumArtist    string
	Album          string
	Year           string
	Genre          string
	Composer       string
	Group          string
	Comment        string
	Lyrics         string
	Track          int
	Total          int
	Cover          []byte
}

// NewMetadata resolves the track's tags, falling back to album values.
func NewMetadata(req pipeline.TagRequest) Metadata {
	a, t := req.Album, req.Track
	return Metadata{
		Title:          album.DisplayTitle(req.Index, t),
		Artist:         a.TrackArtist(t),
		OriginalArtist: a.TrackCoverOf(t),
		AlbumArtist:    a.Artist,
		Album:          a.Title,
		Year:           string(a.Year),
		Genre:          a.TrackGenre(t),
		Composer:       a.TrackComposer(t),
		Group:          t.Group,
		Comment:        t.About,
		Lyrics:         strings.Join(t.LyricLines, "\n"),
		Track:          req.Index,
		Total:          req.Total,
	}
}

// Field is one Vorbis comment.
type Field struct {
	Key   string
	Value string
}

// VorbisFields returns the comments for Ogg and FLAC in a fixed order, empty
// values omitted. For covers ARTIST is the original artist and PERFORMER the
// one performing this recording.
func (m Metadata) VorbisFields() []Field {
	artist, performer := m.Artist, ""
	if m.OriginalArtist != "" {
		artist, performer = m.OriginalArtist, m.Artist
	}
	candidates := []Field{
		{"TITLE", m.Title},
		{"ARTIST", artist},
		{"PERFORMER", performer},
		{"ALBUM", m.Album},
		{"ALBUMARTIST", m.AlbumArtist},
		{"DATE", m.Year},
		{"TRACKNUMBER", positive(m.Track)},
		{"TRACKTOTAL", positive(m.Total)},
		{"GENRE", m.Genre},
		{"COMPOSER", m.Composer},
		{"GROUPING", m.Group},
		{"DESCRIPTION", m.Comment},
		{"LYRICS", m.Lyrics},
	}
	fields := make([]Field, 0, len(candidates))
	for _, f := range candidates {
		if strings.TrimSpace(f.Value) != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// Digest fingerprints the tag set, cover included.
func (m Metadata) Digest() string {
	h := sha256.New()
	for _, f := range m.VorbisFields() {
		h.Write([]byte(f.Key))
		h.Write([]byte{'='})
		h.Write([]byte(f.Value))
		h.Write([]byte{0})
	}
	h.Write(m.Cover)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func positive(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
