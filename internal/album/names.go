package album

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	slugSeparator = '-'
	slugSafeChars = " ._"
	slugMaxLength = 64
)

var trackNumberPattern = regexp.MustCompile(`^([0-9]+)([^0-9]*)$`)

// GuessTitle derives a track number and display title from a filename such as
// "03 the long walk.wav". Files without a numeric prefix report number 0.
func GuessTitle(filename string) (int, string) {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	caser := cases.Title(language.Und)
	if m := trackNumberPattern.FindStringSubmatch(base); m != nil {
		number, _ := strconv.Atoi(m[1])
		rest := strings.TrimLeft(strings.TrimSpace(m[2]), "-_. ")
		return number, caser.String(strings.TrimSpace(rest))
	}
	return 0, caser.String(base)
}

// Slugify produces a filesystem-safe ASCII name: accents are stripped,
// characters other than letters, digits, and " ._" become '-', runs of
// separators collapse, and the result is capped at 64 characters.
func Slugify(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, name)
	if err != nil {
		ascii = name
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range ascii {
		keep := r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(slugSafeChars, r))
		if !keep {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteRune(slugSeparator)
			pendingSep = false
		}
		b.WriteRune(r)
	}

	slug := b.String()
	if len(slug) > slugMaxLength {
		slug = slug[:slugMaxLength]
	}
	return strings.TrimRight(slug, " -")
}

// BaseFilename returns the output name stem shared by every rendition of the
// track at 1-based position index: "NN [artist - ]title", slugified.
func BaseFilename(index int, t *Track) string {
	var b strings.Builder
	if index < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.Itoa(index))
	b.WriteByte(' ')
	if t.Artist != "" {
		b.WriteString(t.Artist)
		b.WriteString(" - ")
	}
	b.WriteString(DisplayTitle(index, t))
	return Slugify(b.String())
}

// DisplayTitle returns the track title or "track N" when none is set.
func DisplayTitle(index int, t *Track) string {
	if strings.TrimSpace(t.Title) != "" {
		return t.Title
	}
	return "track " + strconv.Itoa(index)
}
