package encoding

import (
	"strconv"

	"github.com/bogem/id3v2/v2"

	"pressing/internal/services"
)

// writeID3 replaces the ID3v2.3 tag of an mp3 file. It reports false when the
// existing tag already carries md's digest.
func writeID3(path string, md Metadata) (bool, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true, ParseFrames: []string{"TXXX"}})
	if err != nil {
		return false, services.Wrap(services.ErrIO, "id3", "open", path, err)
	}
	defer tag.Close()

	digest := md.Digest()
	if id3Digest(tag) == digest {
		return false, nil
	}

	tag.DeleteAllFrames()
	tag.SetVersion(3)
	tag.SetDefaultEncoding(id3v2.EncodingUTF16)
	enc := tag.DefaultEncoding()

	tag.SetTitle(md.Title)
	tag.SetArtist(md.Artist)
	tag.SetAlbum(md.Album)
	setText(tag, "TPE2", md.AlbumArtist)
	setText(tag, "TOPE", md.OriginalArtist)
	setText(tag, "TCOM", md.Composer)
	setText(tag, "TIT1", md.Group)
	if md.Year != "" {
		tag.SetYear(md.Year)
	}
	if md.Genre != "" {
		tag.SetGenre(md.Genre)
	}
	if md.Track > 0 {
		position := strconv.Itoa(md.Track)
		if md.Total > 0 {
			position += "/" + strconv.Itoa(md.Total)
		}
		setText(tag, "TRCK", position)
	}
	if md.Lyrics != "" {
		tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding:          enc,
			Language:          "eng",
			ContentDescriptor: "",
			Lyrics:            md.Lyrics,
		})
	}
	if md.Comment != "" {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    enc,
			Language:    "eng",
			Description: "",
			Text:        md.Comment,
		})
	}
	if len(md.Cover) > 0 {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    enc,
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     md.Cover,
		})
	}
	tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
		Encoding:    enc,
		Description: DigestKey,
		Value:       digest,
	})

	if err := tag.Save(); err != nil {
		return false, services.Wrap(services.ErrIO, "id3", "save", path, err)
	}
	return true, nil
}

func setText(tag *id3v2.Tag, id, value string) {
	if value == "" {
		return
	}
	tag.AddTextFrame(id, tag.DefaultEncoding(), value)
}

func id3Digest(tag *id3v2.Tag) string {
	for _, frame := range tag.GetFrames("TXXX") {
		udtf, ok := frame.(id3v2.UserDefinedTextFrame)
		if ok && udtf.Description == DigestKey {
			return udtf.Value
		}
	}
	return ""
}
