// Package encoding runs the external audio encoders and writes tags into
// their output.
//
// Encoder wraps lame (mp3 and preview), oggenc and flac. Each encode writes a
// hidden partial file next to the output and renames it into place, and is
// skipped when the output is already newer than its source. Tagger writes
// ID3v2.3 tags in-process and drives vorbiscomment and metaflac for Ogg and
// FLAC. Every tag set carries a digest so re-tagging an unchanged file leaves
// it untouched.
//
// Subprocesses run in their own process group; cancelling the context sends
// SIGTERM to the whole group.
package encoding
