package targets

import (
	"fmt"
	"strings"

	"pressing/internal/config"
)

// Target is an output rendition or build switch.
type Target string

const (
	MP3     Target = "mp3"
	Ogg     Target = "ogg"
	FLAC    Target = "flac"
	Preview Target = "preview"
	CDDA    Target = "cdda"
	Zip     Target = "zip"
	Publish Target = "publish"
	Cleanup Target = "cleanup"
)

// All lists every target in canonical order.
var All = []Target{Preview, MP3, Ogg, FLAC, CDDA, Zip, Publish, Cleanup}

// Formats lists the targets that produce an output directory, in the order
// their phase groups are created.
var Formats = []Target{Preview, MP3, Ogg, FLAC, CDDA}

// IsFormat reports whether t produces its own output directory.
func (t Target) IsFormat() bool {
	switch t {
	case Preview, MP3, Ogg, FLAC, CDDA:
		return true
	default:
		return false
	}
}

// Default returns the built-in enabled state for t.
func (t Target) Default() bool {
	return t != CDDA
}

func (t Target) String() string { return string(t) }

// Parse converts a user-supplied name into a Target.
func Parse(value string) (Target, error) {
	candidate := Target(strings.ToLower(strings.TrimSpace(value)))
	for _, t := range All {
		if t == candidate {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown target %q", value)
}

// RequiredTools returns the binaries t invokes, resolved through the
// configured tool names.
func RequiredTools(t Target, tools config.Tools) []string {
	switch t {
	case MP3, Preview:
		return []string{tools.Lame}
	case Ogg:
		return []string{tools.Oggenc, tools.Vorbiscomment}
	case FLAC:
		return []string{tools.FLAC, tools.Metaflac}
	case CDDA:
		return []string{tools.FFmpeg}
	case Publish:
		return []string{tools.Butler}
	default:
		return nil
	}
}

// Choices holds tri-state target switches: a missing key means unset.
type Choices map[Target]bool

// Set records an explicit value for t.
func (c Choices) Set(t Target, value bool) {
	c[t] = value
}

// Lookup returns the explicit value for t, if any.
func (c Choices) Lookup(t Target) (bool, bool) {
	if c == nil {
		return false, false
	}
	value, ok := c[t]
	return value, ok
}

// Merge returns a copy of c with every explicit value of override applied.
func (c Choices) Merge(override Choices) Choices {
	out := make(Choices, len(c)+len(override))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// ChoicesFromConfig converts the [targets] config section.
func ChoicesFromConfig(cfg config.Targets) Choices {
	out := Choices{}
	pairs := []struct {
		target Target
		value  *bool
	}{
		{MP3, cfg.MP3}, {Ogg, cfg.Ogg}, {FLAC, cfg.FLAC}, {Preview, cfg.Preview},
		{CDDA, cfg.CDDA}, {Zip, cfg.Zip}, {Publish, cfg.Publish}, {Cleanup, cfg.Cleanup},
	}
	for _, pair := range pairs {
		if pair.value != nil {
			out[pair.target] = *pair.value
		}
	}
	return out
}
