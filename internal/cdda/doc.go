// Package cdda writes a Red Book style bin/cue disc image: 44.1kHz 16-bit
// stereo PCM decoded by ffmpeg, a two-second pregap before the first track,
// and every track padded to whole 2352-byte sectors.
package cdda
