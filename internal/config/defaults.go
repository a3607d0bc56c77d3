package config

const (
	defaultConfigPath           = "~/.config/pressing/config.toml"
	defaultStateDir             = "~/.local/share/pressing"
	defaultLogDir               = "~/.local/share/pressing/logs"
	defaultLogRetentionDays     = 30
	defaultHistoryRetentionDays = 365
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultAlbumFile            = "album.json"
	defaultNotifyTimeout        = 10
	defaultPreviewEncodeArgs    = "-b 32 -V 5 -q 5 -m j"
	defaultMP3EncodeArgs        = "-V 0 -q 0 -m j"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Build: Build{
			AlbumFile: defaultAlbumFile,
		},
		Tools: defaultTools(),
		Encoders: Encoders{
			PreviewArgs: defaultPreviewEncodeArgs,
			MP3Args:     defaultMP3EncodeArgs,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			OnSuccess:      true,
			OnFailure:      true,
		},
		History: History{
			Enabled:       true,
			RetentionDays: defaultHistoryRetentionDays,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultTools() Tools {
	return Tools{
		Lame:          "lame",
		Oggenc:        "oggenc",
		Vorbiscomment: "vorbiscomment",
		FLAC:          "flac",
		Metaflac:      "metaflac",
		FFmpeg:        "ffmpeg",
		FFprobe:       "ffprobe",
		Butler:        "butler",
	}
}
