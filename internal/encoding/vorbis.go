package encoding

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"log/slog"
	"os"
	"strings"

	"pressing/internal/artwork"
	"pressing/internal/services"
)

// pictureFrontCover is the APIC/FLAC picture type for a front cover.
const pictureFrontCover = 3

func (t *Tagger) writeVorbisComments(ctx context.Context, logger *slog.Logger, path string, md Metadata) (bool, error) {
	digest := md.Digest()
	listing, err := output(ctx, logger, t.tools.Vorbiscomment, "-l", "-R", "-e", path)
	if err != nil {
		return false, err
	}
	if commentValue(listing, DigestKey) == digest {
		return false, nil
	}

	fields := md.VorbisFields()
	if len(md.Cover) > 0 {
		block, err := PictureBlock(md.Cover)
		if err != nil {
			return false, services.Wrap(services.ErrValidation, "vorbiscomment", "cover", "", err)
		}
		fields = append(fields, Field{"METADATA_BLOCK_PICTURE", base64.StdEncoding.EncodeToString(block)})
	}
	fields = append(fields, Field{DigestKey, digest})

	commentFile, err := writeCommentFile(fields)
	if err != nil {
		return false, services.Wrap(services.ErrIO, "vorbiscomment", "comment file", "", err)
	}
	defer os.Remove(commentFile)

	if err := run(ctx, logger, t.tools.Vorbiscomment, "-w", "-R", "-e", "-c", commentFile, path); err != nil {
		return false, err
	}
	return true, nil
}

func writeCommentFile(fields []Field) (string, error) {
	f, err := os.CreateTemp("", "pressing-comments-*.txt")
	if err != nil {
		return "", err
	}
	w := bufio.NewWriter(f)
	for _, field := range fields {
		w.WriteString(field.Key)
		w.WriteByte('=')
		w.WriteString(EscapeComment(field.Value))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

var commentEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`, "\x00", `\0`)

// EscapeComment applies vorbiscomment's -e escaping.
func EscapeComment(value string) string {
	return commentEscaper.Replace(value)
}

func commentValue(listing, key string) string {
	prefix := key + "="
	for _, line := range strings.Split(listing, "\n") {
		if len(line) >= len(prefix) && strings.EqualFold(line[:len(prefix)], prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}

// PictureBlock builds a FLAC METADATA_BLOCK_PICTURE body for a JPEG front
// cover.
func PictureBlock(jpegData []byte) ([]byte, error) {
	width, height, err := artwork.Dimensions(jpegData)
	if err != nil {
		return nil, err
	}
	const mime = "image/jpeg"
	out := make([]byte, 0, 32+len(mime)+len(jpegData))
	out = binary.BigEndian.AppendUint32(out, pictureFrontCover)
	out = binary.BigEndian.AppendUint32(out, uint32(len(mime)))
	out = append(out, mime...)
	out = binary.BigEndian.AppendUint32(out, 0) // description length
	out = binary.BigEndian.AppendUint32(out, uint32(width))
	out = binary.BigEndian.AppendUint32(out, uint32(height))
	out = binary.BigEndian.AppendUint32(out, 24)
	out = binary.BigEndian.AppendUint32(out, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(len(jpegData)))
	out = append(out, jpegData...)
	return out, nil
}
