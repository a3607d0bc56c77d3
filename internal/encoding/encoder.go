package encoding

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pressing/internal/config"
	"pressing/internal/fileutil"
	"pressing/internal/logging"
	"pressing/internal/pipeline"
	"pressing/internal/services"
	"pressing/internal/targets"
)

// Encoder runs the configured encoder for each per-track target.
type Encoder struct {
	tools  config.Tools
	args   map[targets.Target][]string
	logger *slog.Logger
}

// NewEncoder builds an Encoder from cfg.
func NewEncoder(cfg *config.Config, logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = logging.NewNop()
	}
	args := make(map[targets.Target][]string)
	for _, t := range []targets.Target{targets.Preview, targets.MP3, targets.Ogg, targets.FLAC} {
		args[t] = cfg.EncoderArgs(string(t))
	}
	return &Encoder{
		tools:  cfg.Tools,
		args:   args,
		logger: logging.NewComponentLogger(logger, "encoder"),
	}
}

// Encode transcodes req.Source into req.Output unless the output is newer
// than the source. The output only appears once the encoder succeeded.
func (e *Encoder) Encode(ctx context.Context, req pipeline.EncodeRequest) error {
	logger := logging.WithContext(ctx, e.logger)
	if fileutil.IsNewer(req.Output, req.Source) {
		logger.Debug("output up to date", logging.String("path", req.Output))
		return nil
	}
	if _, err := os.Stat(req.Source); err != nil {
		return services.Wrap(services.ErrIO, "encode", string(req.Target), "source "+req.Source, err)
	}

	partial := PartialPath(req.Output)
	defer func() {
		if err := os.Remove(partial); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove partial encode", logging.String("path", partial), logging.Error(err))
		}
	}()

	start := time.Now()
	var err error
	if producer := e.decoder(req); producer != nil {
		err = runPipe(ctx, logger, producer, e.command(req.Target, "-", partial))
	} else {
		cmd := e.command(req.Target, req.Source, partial)
		err = run(ctx, logger, cmd[0], cmd[1:]...)
	}
	if err != nil {
		return err
	}
	if err := os.Rename(partial, req.Output); err != nil {
		return services.Wrap(services.ErrIO, "encode", string(req.Target), "rename output", err)
	}
	logger.Info("track encoded",
		logging.String("path", req.Output),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// PartialPath returns the hidden in-progress name for an output file. It keeps
// the extension because some encoders pick the container from it.
func PartialPath(output string) string {
	dir, name := filepath.Split(output)
	ext := filepath.Ext(name)
	return filepath.Join(dir, "."+strings.TrimSuffix(name, ext)+".partial"+ext)
}

func (e *Encoder) command(t targets.Target, input, output string) []string {
	args := e.args[t]
	switch t {
	case targets.Ogg:
		cmd := append([]string{e.tools.Oggenc, "-Q"}, args...)
		return append(cmd, input, "-o", output)
	case targets.FLAC:
		cmd := append([]string{e.tools.FLAC, "-s"}, args...)
		return append(cmd, input, "-f", "-o", output)
	default:
		cmd := append([]string{e.tools.Lame, "--quiet"}, args...)
		return append(cmd, "--nohist", input, output)
	}
}

// decoder returns a flac decode command when the encoder cannot read the
// source itself.
func (e *Encoder) decoder(req pipeline.EncodeRequest) []string {
	if req.Target == targets.Ogg || req.Target == targets.FLAC {
		return nil
	}
	if !strings.EqualFold(filepath.Ext(req.Source), ".flac") {
		return nil
	}
	return []string{e.tools.FLAC, "-d", "-c", "-s", req.Source}
}
