// Package ffprobe provides a typed wrapper around ffprobe JSON output and the
// duration prober used for the web player.
package ffprobe
