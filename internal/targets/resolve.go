package targets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pressing/internal/config"
	"pressing/internal/services"
)

// Probe reports whether a binary can be executed. A nil error means available.
type Probe func(binary string) error

// Diagnostic is a recoverable resolution warning.
type Diagnostic struct {
	Target Target
	Tool   string
	Err    error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s disabled: %v", d.Target, d.Err)
}

// Request carries everything Resolve needs besides the two choice levels.
type Request struct {
	Tools config.Tools
	Probe Probe
	// ButlerTarget is the effective itch.io project; publishing is disabled
	// without one.
	ButlerTarget string
}

// Resolution is the immutable enabled-target set for one run.
type Resolution struct {
	enabled     map[Target]bool
	diagnostics []Diagnostic
}

// Enabled reports whether t is enabled.
func (r Resolution) Enabled(t Target) bool {
	return r.enabled[t]
}

// Formats returns the enabled format targets in phase creation order.
func (r Resolution) Formats() []Target {
	var out []Target
	for _, t := range Formats {
		if r.enabled[t] {
			out = append(out, t)
		}
	}
	return out
}

// Targets returns every enabled target in canonical order.
func (r Resolution) Targets() []Target {
	var out []Target
	for _, t := range All {
		if r.enabled[t] {
			out = append(out, t)
		}
	}
	return out
}

// Diagnostics returns the warnings produced while resolving.
func (r Resolution) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), r.diagnostics...)
}

// NewResolution builds a resolution directly from a target set without any
// tool gating. It is intended for callers that have already validated tools.
func NewResolution(enabled ...Target) Resolution {
	r := Resolution{enabled: make(map[Target]bool, len(enabled))}
	for _, t := range enabled {
		r.enabled[t] = true
	}
	return r
}

// Resolve merges caller and album choices over the built-in defaults, gates
// format and publish targets on tool availability, and fails with a
// configuration error when no format remains enabled.
func Resolve(caller, album Choices, req Request) (Resolution, error) {
	r := Resolution{enabled: make(map[Target]bool, len(All))}
	for _, t := range All {
		value := t.Default()
		if v, ok := album.Lookup(t); ok {
			value = v
		}
		if v, ok := caller.Lookup(t); ok {
			value = v
		}
		r.enabled[t] = value
	}

	if r.enabled[Publish] && strings.TrimSpace(req.ButlerTarget) == "" {
		r.enabled[Publish] = false
		r.diagnostics = append(r.diagnostics, Diagnostic{
			Target: Publish,
			Err:    fmt.Errorf("no butler target configured"),
		})
	}

	if req.Probe != nil {
		for _, t := range All {
			if !r.enabled[t] {
				continue
			}
			for _, tool := range RequiredTools(t, req.Tools) {
				if err := req.Probe(tool); err != nil {
					r.enabled[t] = false
					r.diagnostics = append(r.diagnostics, Diagnostic{
						Target: t,
						Tool:   tool,
						Err:    services.Wrap(services.ErrToolUnavailable, "resolve", tool, "", err),
					})
					break
				}
			}
		}
	}

	if len(r.Formats()) == 0 {
		return Resolution{}, services.Wrap(services.ErrConfiguration, "resolve", "targets", "no output formats enabled", nil)
	}
	return r, nil
}

// OutputDir returns the directory a format target writes into.
func OutputDir(root string, t Target) string {
	return filepath.Join(root, string(t))
}

// EnsureOutputDirs creates the output subdirectory of every enabled format.
func EnsureOutputDirs(root string, r Resolution) error {
	for _, t := range r.Formats() {
		dir := OutputDir(root, t)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrIO, "resolve", "create output dir", dir, err)
		}
	}
	return nil
}
