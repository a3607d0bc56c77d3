package album

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pressing/internal/services"
)

var (
	audioExtensions = map[string]bool{".wav": true, ".aif": true, ".aiff": true, ".flac": true}
	imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}
	coverHints      = []string{"cover", "album", "artwork"}
)

// Populate adds audio files from dir that the album does not list yet and
// fills in missing titles, lyric files, and artwork. Existing fields are never
// overwritten. A nil album starts from New.
func Populate(dir string, a *Album) (*Album, error) {
	if a == nil {
		a = New(dir)
	}
	if a.Dir == "" {
		a.Dir = dir
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "album", "populate", dir, err)
	}

	known := make(map[string]bool, len(a.Tracks))
	for _, t := range a.Tracks {
		if t != nil && t.Filename != "" {
			known[t.Filename] = true
		}
	}

	var discovered []string
	var art []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if audioExtensions[ext] && !known[name] {
			discovered = append(discovered, name)
		}
		if imageExtensions[ext] {
			art = append(art, name)
		}
	}

	sort.SliceStable(discovered, func(i, j int) bool {
		ni, ti := GuessTitle(discovered[i])
		nj, tj := GuessTitle(discovered[j])
		if ni != nj {
			return ni < nj
		}
		return ti < tj
	})
	for _, name := range discovered {
		a.Tracks = append(a.Tracks, &Track{Filename: name})
	}

	for _, t := range a.Tracks {
		if t == nil || t.Filename == "" {
			continue
		}
		stem := strings.TrimSuffix(t.Filename, filepath.Ext(t.Filename))
		if t.Title == "" {
			_, t.Title = GuessTitle(t.Filename)
		}
		if t.Lyrics == nil {
			if info, err := os.Stat(filepath.Join(dir, stem+".txt")); err == nil && !info.IsDir() {
				t.Lyrics = LyricsFile(stem + ".txt")
			}
		}
		if t.Artwork == "" {
			for i, candidate := range art {
				if strings.EqualFold(strings.TrimSuffix(candidate, filepath.Ext(candidate)), stem) {
					t.Artwork = candidate
					art = append(art[:i], art[i+1:]...)
					break
				}
			}
		}
	}

	if a.Artwork == "" {
		for i, candidate := range art {
			if hasCoverHint(candidate) {
				a.Artwork = candidate
				art = append(art[:i], art[i+1:]...)
				break
			}
		}
	}
	if a.Artwork == "" && len(art) == 1 {
		a.Artwork = art[0]
	}
	return a, nil
}

func hasCoverHint(name string) bool {
	lower := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	for _, hint := range coverHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
