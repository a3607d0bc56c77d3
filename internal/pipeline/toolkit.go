package pipeline

import (
	"context"

	"pressing/internal/album"
	"pressing/internal/targets"
)

// EncodeRequest describes one track rendition.
type EncodeRequest struct {
	Target targets.Target
	Source string
	Output string
}

// Encoder transcodes a source file. Implementations skip the work when Output
// is newer than Source.
type Encoder interface {
	Encode(ctx context.Context, req EncodeRequest) error
}

// TagRequest carries the metadata written into an encoded file.
type TagRequest struct {
	Target targets.Target
	Output string
	Album  *album.Album
	Track  *album.Track
	Index  int
	Total  int
}

// Tagger writes metadata into an encoded file in place.
type Tagger interface {
	Tag(ctx context.Context, req TagRequest) error
}

// Prober reports the duration of an audio file in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// ArtRenderer writes a JPEG rendition of src bounded to size pixels.
type ArtRenderer interface {
	Render(ctx context.Context, src, dst string, size int) error
}

// PreviewTrack is one entry of the web player.
type PreviewTrack struct {
	Index int
	Track *album.Track
	// File is the rendition filename relative to the preview directory.
	File string
	// Art1x and Art2x are rendition filenames, empty without track art.
	Art1x string
	Art2x string
}

// PreviewRequest is the input to the web player build.
type PreviewRequest struct {
	Album     *album.Album
	Tracks    []PreviewTrack
	OutputDir string
	Art1x     string
	Art2x     string
}

// PreviewBuilder renders the web player.
type PreviewBuilder interface {
	// Files lists the names Build will write for req.
	Files(req PreviewRequest) []string
	// Build writes the player and returns the names it produced.
	Build(ctx context.Context, req PreviewRequest) ([]string, error)
}

// DiscTrack is one track of the disc image.
type DiscTrack struct {
	Index int
	Track *album.Track
}

// DiscRequest is the input to the disc image build.
type DiscRequest struct {
	Album     *album.Album
	Tracks    []DiscTrack
	OutputDir string
	BinName   string
	CueName   string
}

// DiscBuilder writes a bin/cue image.
type DiscBuilder interface {
	Build(ctx context.Context, req DiscRequest) error
}

// Archiver zips a directory to dest.
type Archiver interface {
	Archive(ctx context.Context, dir, dest string) error
}

// Publisher uploads a directory to a remote channel.
type Publisher interface {
	Publish(ctx context.Context, dir, channel string) error
}

// Toolkit bundles the collaborators a run calls into. Prober and Art are
// optional; the rest are required for the targets that use them.
type Toolkit struct {
	Encoder   Encoder
	Tagger    Tagger
	Prober    Prober
	Art       ArtRenderer
	Preview   PreviewBuilder
	Disc      DiscBuilder
	Archiver  Archiver
	Publisher Publisher
}
