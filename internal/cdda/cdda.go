package cdda

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"pressing/internal/album"
	"pressing/internal/config"
	"pressing/internal/encoding"
	"pressing/internal/fileutil"
	"pressing/internal/logging"
	"pressing/internal/pipeline"
	"pressing/internal/services"
)

var commandContext = exec.CommandContext

const (
	SectorSize       = 2352
	SectorsPerSecond = 75
	PregapSectors    = 2 * SectorsPerSecond
	MaxTracks        = 99
)

// Comment is written to every cue sheet's REM COMMENT line.
const Comment = "pressing"

// Builder produces disc images with ffmpeg.
type Builder struct {
	ffmpeg string
	logger *slog.Logger
}

// NewBuilder builds a disc image writer from cfg.
func NewBuilder(cfg *config.Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Builder{ffmpeg: cfg.Tools.FFmpeg, logger: logging.NewComponentLogger(logger, "cdda")}
}

// Build writes req.BinName and req.CueName into req.OutputDir. Both are
// skipped when they are newer than every source.
func (b *Builder) Build(ctx context.Context, req pipeline.DiscRequest) error {
	if len(req.Tracks) == 0 {
		return services.Wrap(services.ErrValidation, "cdda", "build", "album has no tracks", nil)
	}
	if len(req.Tracks) > MaxTracks {
		return services.Wrap(services.ErrValidation, "cdda", "build", fmt.Sprintf("%d tracks exceed the %d track limit", len(req.Tracks), MaxTracks), nil)
	}
	logger := logging.WithContext(ctx, b.logger)

	binPath := filepath.Join(req.OutputDir, req.BinName)
	cuePath := filepath.Join(req.OutputDir, req.CueName)
	sources := make([]string, 0, len(req.Tracks))
	for _, t := range req.Tracks {
		sources = append(sources, t.Track.SourcePath)
	}
	if fileutil.IsNewer(binPath, sources...) && fileutil.IsNewer(cuePath, sources...) {
		logger.Debug("disc image up to date", logging.String("path", binPath))
		return nil
	}

	var starts []int64
	err := fileutil.WriteAtomic(binPath, 0o644, func(w io.Writer) error {
		var err error
		starts, err = b.writeBin(ctx, w, req.Tracks)
		return err
	})
	if err != nil {
		return err
	}

	cue, err := EncodeCue(CueSheet(req.Album, req.BinName, req.Tracks, starts))
	if err != nil {
		return services.Wrap(services.ErrBuild, "cdda", "encode cue", cuePath, err)
	}
	if err := fileutil.WriteFileAtomic(cuePath, cue, 0o644); err != nil {
		return services.Wrap(services.ErrIO, "cdda", "write cue", cuePath, err)
	}
	logger.Info("disc image written",
		logging.String("path", binPath),
		logging.Int("tracks", len(req.Tracks)),
	)
	return nil
}

// writeBin streams the pregap and every track into w and returns the start
// sector of each track's INDEX 01.
func (b *Builder) writeBin(ctx context.Context, w io.Writer, tracks []pipeline.DiscTrack) ([]int64, error) {
	if _, err := w.Write(make([]byte, PregapSectors*SectorSize)); err != nil {
		return nil, services.Wrap(services.ErrIO, "cdda", "write pregap", "", err)
	}
	sector := int64(PregapSectors)
	starts := make([]int64, 0, len(tracks))
	for _, t := range tracks {
		starts = append(starts, sector)
		n, err := b.decode(ctx, w, t.Track.SourcePath)
		if err != nil {
			return nil, err
		}
		if rem := n % SectorSize; rem != 0 {
			pad := SectorSize - rem
			if _, err := w.Write(make([]byte, pad)); err != nil {
				return nil, services.Wrap(services.ErrIO, "cdda", "pad track", "", err)
			}
			n += pad
		}
		sector += n / SectorSize
	}
	return starts, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (b *Builder) decode(ctx context.Context, w io.Writer, src string) (int64, error) {
	cmd := commandContext(ctx, b.ffmpeg, "-v", "error", "-nostdin", "-i", src, "-f", "s16le", "-ar", "44100", "-ac", "2", "-") //nolint:gosec
	encoding.SetProcessGroup(cmd)
	counter := &countingWriter{w: w}
	var stderr encoding.TailBuffer
	cmd.Stdout = counter
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, encoding.CommandError(ctx, filepath.Base(b.ffmpeg), err, stderr.String())
	}
	return counter.n, nil
}

// CueSheet renders the cue sheet for a bin whose tracks start at the given
// sectors. Lines end in CRLF.
func CueSheet(a *album.Album, binName string, tracks []pipeline.DiscTrack, starts []int64) string {
	var sb strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteString("\r\n")
	}
	if genre := cueText(a.Genre); genre != "" {
		line("REM GENRE %s", genre)
	}
	if year := cueText(string(a.Year)); year != "" {
		line("REM DATE %s", year)
	}
	line("REM COMMENT %s", quote(Comment))
	if a.Artist != "" {
		line("PERFORMER %s", quote(a.Artist))
	}
	if a.Title != "" {
		line("TITLE %s", quote(a.Title))
	}
	line("FILE %s BINARY", quote(binName))
	for i, t := range tracks {
		line("  TRACK %02d AUDIO", i+1)
		line("    TITLE %s", quote(album.DisplayTitle(t.Index, t.Track)))
		if artist := a.TrackArtist(t.Track); artist != "" {
			line("    PERFORMER %s", quote(artist))
		}
		if i == 0 {
			line("    INDEX 00 00:00:00")
		}
		line("    INDEX 01 %s", Timestamp(starts[i]))
	}
	return sb.String()
}

// EncodeCue converts a cue sheet to ISO-8859-1. Characters outside the
// charset become '?'.
func EncodeCue(cue string) ([]byte, error) {
	latin := strings.Map(func(r rune) rune {
		if r > 0xFF {
			return '?'
		}
		return r
	}, norm.NFC.String(cue))
	return charmap.ISO8859_1.NewEncoder().Bytes([]byte(latin))
}

// Timestamp formats a sector offset as mm:ss:ff.
func Timestamp(sector int64) string {
	frames := sector % SectorsPerSecond
	seconds := sector / SectorsPerSecond
	return fmt.Sprintf("%02d:%02d:%02d", seconds/60, seconds%60, frames)
}

// cueText collapses whitespace runs and drops control characters.
func cueText(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	return strings.Map(func(r rune) rune {
		if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			return -1
		}
		return r
	}, value)
}

func quote(value string) string {
	return `"` + strings.ReplaceAll(cueText(value), `"`, "''") + `"`
}
