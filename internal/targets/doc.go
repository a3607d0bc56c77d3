// Package targets resolves which output renditions a build produces.
//
// Each target's enabled state comes from the caller (CLI flags over the
// [targets] config section), then the album file, then the built-in default
// (everything except cdda). Targets whose tools are missing are disabled with
// a diagnostic, and a run with no remaining format fails before any work is
// scheduled.
package targets
