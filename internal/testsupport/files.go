package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"pressing/internal/album"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// NewAlbumDir creates a source directory with count stub wav files named
// "NN song.wav" and returns an album describing them.
func NewAlbumDir(t testing.TB, count int) *album.Album {
	t.Helper()

	dir := t.TempDir()
	a := &album.Album{Title: "Test Album", Artist: "Tester", Dir: dir}
	for i := 1; i <= count; i++ {
		name := fmt.Sprintf("%02d song.wav", i)
		WriteFile(t, filepath.Join(dir, name), 44)
		a.Tracks = append(a.Tracks, &album.Track{Filename: name, Title: fmt.Sprintf("Song %d", i)})
	}
	return a
}
