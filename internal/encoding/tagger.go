package encoding

import (
	"context"
	"log/slog"

	"pressing/internal/artwork"
	"pressing/internal/config"
	"pressing/internal/logging"
	"pressing/internal/pipeline"
	"pressing/internal/services"
	"pressing/internal/targets"
)

// Tagger writes metadata and cover art into encoded files.
type Tagger struct {
	tools  config.Tools
	covers *artwork.Cache
	logger *slog.Logger
}

// NewTagger builds a Tagger. covers may be shared with the preview renderer.
func NewTagger(cfg *config.Config, covers *artwork.Cache, logger *slog.Logger) *Tagger {
	if covers == nil {
		covers = artwork.NewCache()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tagger{tools: cfg.Tools, covers: covers, logger: logging.NewComponentLogger(logger, "tagger")}
}

// Tag writes req's metadata into req.Output. Files already carrying the same
// tag digest are left alone.
func (t *Tagger) Tag(ctx context.Context, req pipeline.TagRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	md := NewMetadata(req)
	cover, err := t.cover(req)
	if err != nil {
		return err
	}
	md.Cover = cover

	logger := logging.WithContext(ctx, t.logger)
	var written bool
	switch req.Target {
	case targets.MP3, targets.Preview:
		written, err = writeID3(req.Output, md)
	case targets.Ogg:
		written, err = t.writeVorbisComments(ctx, logger, req.Output, md)
	case targets.FLAC:
		written, err = t.writeFLACTags(ctx, logger, req.Output, md)
	default:
		return services.Wrap(services.ErrValidation, "tag", string(req.Target), "target has no tag format", nil)
	}
	if err != nil {
		return err
	}
	if written {
		logger.Debug("tags written", logging.String("path", req.Output))
	} else {
		logger.Debug("tags up to date", logging.String("path", req.Output))
	}
	return nil
}

func (t *Tagger) cover(req pipeline.TagRequest) ([]byte, error) {
	src := req.Track.ArtworkPath
	if src == "" {
		src = req.Album.ArtworkPath
	}
	if src == "" {
		return nil, nil
	}
	size := artwork.DownloadCoverSize
	if req.Target == targets.Preview {
		size = artwork.PreviewCoverSize
	}
	return t.covers.Rendition(src, size)
}
