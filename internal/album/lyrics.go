package album

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"gopkg.in/yaml.v3"
)

// Lyrics is either an inline list of lines or the name of a text file.
type Lyrics struct {
	Lines []string
	File  string
}

// LyricsFile references a lyrics text file.
func LyricsFile(name string) *Lyrics { return &Lyrics{File: name} }

// UnmarshalJSON implements json.Unmarshaler.
func (l *Lyrics) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &l.File)
	case data[0] == '[':
		return json.Unmarshal(data, &l.Lines)
	default:
		return fmt.Errorf("lyrics must be a filename or a list of lines")
	}
}

// MarshalJSON implements json.Marshaler.
func (l Lyrics) MarshalJSON() ([]byte, error) {
	if l.File != "" {
		return json.Marshal(l.File)
	}
	if l.Lines == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.Lines)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Lyrics) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		l.File = node.Value
		return nil
	case yaml.SequenceNode:
		return node.Decode(&l.Lines)
	default:
		return fmt.Errorf("line %d: lyrics must be a filename or a list of lines", node.Line)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (l Lyrics) MarshalYAML() (any, error) {
	if l.File != "" {
		return l.File, nil
	}
	return l.Lines, nil
}

// Resolve returns the lyric lines, reading the referenced file relative to dir
// when the lyrics name a file. A nil receiver yields no lines.
func (l *Lyrics) Resolve(dir string) ([]string, error) {
	if l == nil {
		return nil, nil
	}
	if l.File == "" {
		return append([]string(nil), l.Lines...), nil
	}
	path := l.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	return ReadLines(path)
}

// ReadLines reads a text file into right-trimmed lines. Input that is not
// valid UTF-8 is decoded as Windows-1252.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		data = decoded
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRightFunc(scanner.Text(), isTrailingSpace))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func isTrailingSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r'
}
