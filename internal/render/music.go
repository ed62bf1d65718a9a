package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// moodTracks maps a script mood to the stock music file used under it.
// Filenames are resolved against the configured music library directory.
var moodTracks = map[string]string{
	"horror":    "horror_drone.mp3",
	"mystery":   "mystery_pulse.mp3",
	"uplifting": "uplifting_keys.mp3",
	"epic":      "epic_percussion.mp3",
	"calm":      "calm_pads.mp3",
	"tension":   "tension_strings.mp3",
}

const defaultMusicFade = 3.0

// TrackForMood resolves a mood string to a music file inside libraryDir.
// Unknown moods fall back to "calm" so a misspelled mood degrades the video
// instead of failing the render.
func TrackForMood(libraryDir, mood string) string {
	name, ok := moodTracks[strings.ToLower(strings.TrimSpace(mood))]
	if !ok {
		name = moodTracks["calm"]
	}
	return filepath.Join(libraryDir, name)
}

// BackgroundMusic produces a music bed for the given mood trimmed to
// exactly duration seconds with a fade-out tail.
func BackgroundMusic(ctx context.Context, libraryDir, mood string, duration float64, output string) error {
	if duration <= defaultMusicFade {
		return fmt.Errorf("music duration %.2fs must exceed the %.0fs fade tail", duration, defaultMusicFade)
	}

	track := TrackForMood(libraryDir, mood)
	if _, err := os.Stat(track); err != nil {
		return fmt.Errorf("music track for mood %q not found: %w", mood, err)
	}

	return Run(ctx, TrimFadeArgs(track, output, duration, defaultMusicFade))
}
