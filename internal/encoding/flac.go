package encoding

import (
	"context"
	"log/slog"
	"os"

	"pressing/internal/services"
)

func (t *Tagger) writeFLACTags(ctx context.Context, logger *slog.Logger, path string, md Metadata) (bool, error) {
	digest := md.Digest()
	existing, err := output(ctx, logger, t.tools.Metaflac, "--show-tag="+DigestKey, path)
	if err != nil {
		return false, err
	}
	if commentValue(existing, DigestKey) == digest {
		return false, nil
	}

	if err := run(ctx, logger, t.tools.Metaflac, "--remove", "--block-type=PICTURE", path); err != nil {
		return false, err
	}

	args := []string{"--remove-all-tags"}
	for _, f := range md.VorbisFields() {
		args = append(args, "--set-tag="+f.Key+"="+f.Value)
	}
	args = append(args, "--set-tag="+DigestKey+"="+digest)

	if len(md.Cover) > 0 {
		coverFile, err := os.CreateTemp("", "pressing-cover-*.jpg")
		if err != nil {
			return false, services.Wrap(services.ErrIO, "metaflac", "cover", "", err)
		}
		coverPath := coverFile.Name()
		defer os.Remove(coverPath)
		_, werr := coverFile.Write(md.Cover)
		cerr := coverFile.Close()
		if werr != nil || cerr != nil {
			return false, services.Wrap(services.ErrIO, "metaflac", "cover", coverPath, firstErr(werr, cerr))
		}
		args = append(args, "--import-picture-from=3|image/jpeg|||"+coverPath)
	}
	args = append(args, path)

	if err := run(ctx, logger, t.tools.Metaflac, args...); err != nil {
		return false, err
	}
	return true, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
