// Package preview renders the static web player published alongside the
// preview-quality MP3 renditions. The player is a single index.html plus a
// stylesheet and a small script, all embedded in the binary.
package preview
