package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pressing/internal/album"
)

func newInitCommand(ctx *commandContext) *cobra.Command {
	var (
		fileName string
		title    string
		artist   string
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create or extend the album file from the audio files in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if dir, err = filepath.Abs(dir); err != nil {
				return fmt.Errorf("resolve directory: %w", err)
			}
			name := strings.TrimSpace(fileName)
			if name == "" {
				name = cfg.Build.AlbumFile
			}
			path := filepath.Join(dir, name)

			var existing *album.Album
			if _, statErr := os.Stat(path); statErr == nil {
				if existing, err = album.Load(path); err != nil {
					return err
				}
			} else if !errors.Is(statErr, os.ErrNotExist) {
				return fmt.Errorf("inspect album file: %w", statErr)
			}
			before := 0
			if existing != nil {
				before = len(existing.Tracks)
			}

			a, err := album.Populate(dir, existing)
			if err != nil {
				return err
			}
			if title = strings.TrimSpace(title); title != "" {
				a.Title = title
			}
			if artist = strings.TrimSpace(artist); artist != "" {
				a.Artist = artist
			}
			if err := album.Save(path, a); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s (%d tracks, %d new)\n", path, len(a.Tracks), len(a.Tracks)-before)
			if a.Artwork != "" {
				fmt.Fprintf(out, "Album art: %s\n", a.Artwork)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&fileName, "file", "f", "", "Album file name (default: build.album_file)")
	cmd.Flags().StringVar(&title, "title", "", "Album title")
	cmd.Flags().StringVar(&artist, "artist", "", "Album artist")
	return cmd
}
