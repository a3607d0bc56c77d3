package press

import (
	"log/slog"

	"pressing/internal/archive"
	"pressing/internal/artwork"
	"pressing/internal/butler"
	"pressing/internal/cdda"
	"pressing/internal/config"
	"pressing/internal/encoding"
	"pressing/internal/media/ffprobe"
	"pressing/internal/pipeline"
	"pressing/internal/preview"
)

// NewToolkit wires the subprocess and in-process collaborators configured by
// cfg. Cover renditions are shared between the tagger and the player art.
func NewToolkit(cfg *config.Config, logger *slog.Logger) pipeline.Toolkit {
	covers := artwork.NewCache()
	return pipeline.Toolkit{
		Encoder:   encoding.NewEncoder(cfg, logger),
		Tagger:    encoding.NewTagger(cfg, covers, logger),
		Prober:    ffprobe.Prober{Binary: cfg.Tools.FFprobe},
		Art:       artwork.NewRenderer(covers, logger),
		Preview:   preview.NewBuilder(logger),
		Disc:      cdda.NewBuilder(cfg, logger),
		Archiver:  archive.New(logger),
		Publisher: butler.NewPublisher(cfg, logger),
	}
}
