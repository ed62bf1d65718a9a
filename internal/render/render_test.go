package render

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecCommand substitutes the test binary for ffmpeg/ffprobe.
func fakeExecCommand(ctx context.Context, command string, args ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", command}
	cs = append(cs, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd
}

func failingExecCommand(ctx context.Context, command string, args ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", command}
	cs = append(cs, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "GO_HELPER_FAIL=1")
	return cmd
}

// TestHelperProcess is not a real test; it mocks the encoder binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if os.Getenv("GO_HELPER_FAIL") == "1" {
		os.Stderr.WriteString("Invalid data found when processing input")
		os.Exit(1)
	}
	os.Exit(0)
}

func TestRunSurfacesEncoderFailure(t *testing.T) {
	execCommand = failingExecCommand
	defer func() { execCommand = exec.CommandContext }()

	err := Run(context.Background(), []string{"-i", "broken.mp4", "out.mp4"})
	require.Error(t, err)

	var encErr *EncoderError
	require.ErrorAs(t, err, &encErr)
	assert.Contains(t, encErr.Stderr, "Invalid data")
	assert.Contains(t, encErr.Args, "broken.mp4")
}

func TestRunSucceeds(t *testing.T) {
	execCommand = fakeExecCommand
	defer func() { execCommand = exec.CommandContext }()

	assert.NoError(t, Run(context.Background(), []string{"-i", "in.mp4", "out.mp4"}))
}

func TestMixArgsBuildsSidechainDucking(t *testing.T) {
	args := MixArgs("voice.mp3", "music.mp3", "mixed.mp3", 0.3)
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "sidechaincompress")
	assert.Contains(t, joined, "volume=0.30")
	assert.Contains(t, joined, "amix=inputs=2")
	assert.Equal(t, "mixed.mp3", args[len(args)-1])
}

func TestTrimFadeArgs(t *testing.T) {
	args := TrimFadeArgs("track.mp3", "bed.mp3", 30.0, 3.0)
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-t 30.00")
	assert.Contains(t, joined, "afade=t=out:st=27.00:d=3.00")
}

func TestCrossfadeArgsOffsets(t *testing.T) {
	args := CrossfadeArgs(
		[]string{"a.mp4", "b.mp4", "c.mp4"},
		[]float64{5, 5, 5},
		1.0,
		"out.mp4", 1080, 1920,
	)
	joined := strings.Join(args, " ")

	// First transition starts at 4s, second at 8s (accumulated minus fade).
	assert.Contains(t, joined, "xfade=transition=fade:duration=1.00:offset=4.00")
	assert.Contains(t, joined, "xfade=transition=fade:duration=1.00:offset=8.00")
	assert.Contains(t, joined, "[v]")
}

func TestKenBurnsArgsFrameCount(t *testing.T) {
	args := KenBurnsArgs("still.png", "clip.mp4", 4.0, 1080, 1920)
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "zoompan")
	assert.Contains(t, joined, "d=100", "4s at 25fps is 100 frames")
	assert.Contains(t, joined, "s=1080x1920")
}

func TestSubtitleArgsEscapesPath(t *testing.T) {
	args := SubtitleArgs("in.mp4", "/tmp/run's/subs.srt", "out.mp4")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, `run\'s`)
}

func TestTrackForMood(t *testing.T) {
	lib := "/assets/music"
	assert.Equal(t, filepath.Join(lib, "horror_drone.mp3"), TrackForMood(lib, "horror"))
	assert.Equal(t, filepath.Join(lib, "horror_drone.mp3"), TrackForMood(lib, " Horror "))
	assert.Equal(t, filepath.Join(lib, "calm_pads.mp3"), TrackForMood(lib, "unknown-mood"))
}

func TestBackgroundMusicTrimsToDuration(t *testing.T) {
	execCommand = fakeExecCommand
	defer func() { execCommand = exec.CommandContext }()

	lib := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(lib, "horror_drone.mp3"), []byte("audio"), 0644))

	out := filepath.Join(t.TempDir(), "bed.mp3")
	err := BackgroundMusic(context.Background(), lib, "horror", 30.0, out)
	require.NoError(t, err)
}

func TestBackgroundMusicRejectsTinyDurations(t *testing.T) {
	err := BackgroundMusic(context.Background(), t.TempDir(), "horror", 2.0, "bed.mp3")
	assert.Error(t, err)
}

func TestBackgroundMusicMissingTrack(t *testing.T) {
	err := BackgroundMusic(context.Background(), t.TempDir(), "horror", 30.0, "bed.mp3")
	assert.Error(t, err)
}
