package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// IsNewer reports whether output exists and was modified after every input.
// A missing input counts as stale so the caller rebuilds and surfaces the error.
func IsNewer(output string, inputs ...string) bool {
	outInfo, err := os.Stat(output)
	if err != nil || outInfo.IsDir() {
		return false
	}
	for _, input := range inputs {
		if input == "" {
			continue
		}
		inInfo, err := os.Stat(input)
		if err != nil {
			return false
		}
		if !outInfo.ModTime().After(inInfo.ModTime()) {
			return false
		}
	}
	return true
}

// WriteFileAtomic writes data to a temporary file next to path and renames it
// into place, so readers never observe a truncated file.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	return WriteAtomic(path, mode, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteAtomic streams content produced by fill into a temporary file next to
// path and renames it into place. The temporary file is removed on any error.
func WriteAtomic(path string, mode os.FileMode, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// HashFile returns the hex-encoded SHA-256 digest of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
