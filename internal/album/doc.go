// Package album models the album description a build reads: album metadata,
// the ordered track list, album-level target defaults, and player theme.
//
// Descriptions are JSON or YAML. Resolve adds the derived per-track fields the
// pipeline consumes (absolute source and artwork paths, decoded lyric lines)
// without modifying anything the author wrote. Populate implements
// `pressing init`, discovering audio, lyric, and artwork files in the input
// directory.
package album
