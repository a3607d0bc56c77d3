// Package archive writes reproducible zip archives of output directories.
package archive

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pressing/internal/fileutil"
	"pressing/internal/logging"
	"pressing/internal/services"
)

// Epoch is the modification time stamped on every entry.
var Epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

var storedExtensions = map[string]bool{
	".mp3": true, ".ogg": true, ".flac": true,
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".zip": true,
}

// Archiver zips directories.
type Archiver struct {
	logger *slog.Logger
}

// New returns an Archiver.
func New(logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Archiver{logger: logging.NewComponentLogger(logger, "archive")}
}

// Archive writes every regular file under dir to dest in sorted order with
// fixed timestamps, so an unchanged directory always yields the same bytes.
// Hidden files are skipped. dest is left alone when it is newer than the
// directory and all of its files.
func (a *Archiver) Archive(ctx context.Context, dir, dest string) error {
	logger := logging.WithContext(ctx, a.logger)
	files, err := List(dir)
	if err != nil {
		return services.Wrap(services.ErrIO, "archive", "list", dir, err)
	}

	inputs := []string{dir}
	for _, rel := range files {
		inputs = append(inputs, filepath.Join(dir, filepath.FromSlash(rel)))
	}
	if fileutil.IsNewer(dest, inputs...) {
		logger.Debug("archive up to date", logging.String("path", dest))
		return nil
	}

	err = fileutil.WriteAtomic(dest, 0o644, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		for _, rel := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := addFile(zw, dir, rel); err != nil {
				return err
			}
		}
		return zw.Close()
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrIO, "archive", "write", dest, err)
	}
	logger.Debug("archive written", logging.String("path", dest), logging.Int("files", len(files)))
	return nil
}

// List returns the slash-separated relative paths Archive would include.
func List(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(files)
	return files, err
}

func addFile(zw *zip.Writer, dir, rel string) error {
	header := &zip.FileHeader{
		Name:     rel,
		Method:   zip.Deflate,
		Modified: Epoch,
	}
	if storedExtensions[strings.ToLower(filepath.Ext(rel))] {
		header.Method = zip.Store
	}
	header.SetMode(0o644)

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
