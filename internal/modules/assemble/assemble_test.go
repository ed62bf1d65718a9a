package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamreel/dreamreel/internal/modules/script"
)

func setup(t *testing.T) (*[][]string, string, string) {
	tempDir := t.TempDir()
	scriptPath := filepath.Join(tempDir, "script.json")
	require.NoError(t, os.WriteFile(scriptPath, []byte(`{
		"title": "T",
		"scenes": [
			{"narration": "one", "imagePrompt": "x", "durationSec": 5},
			{"narration": "two", "imagePrompt": "y", "durationSec": 7}
		]
	}`), 0644))

	narration := filepath.Join(tempDir, "narration.mp3")
	require.NoError(t, os.WriteFile(narration, []byte("mp3"), 0644))

	var invocations [][]string
	orig := runRender
	runRender = func(ctx context.Context, args []string) error {
		invocations = append(invocations, args)
		return os.WriteFile(args[len(args)-1], []byte("out"), 0644)
	}
	t.Cleanup(func() { runRender = orig })

	return &invocations, tempDir, scriptPath
}

func makeClips(t *testing.T, dir string, scenes ...int) string {
	clipsDir := filepath.Join(dir, "clips")
	require.NoError(t, os.MkdirAll(clipsDir, 0755))
	for _, n := range scenes {
		path := filepath.Join(clipsDir, fmt.Sprintf("scene_%02d.mp4", n))
		require.NoError(t, os.WriteFile(path, []byte("mp4"), 0644))
	}
	return clipsDir
}

func makeStills(t *testing.T, dir string, scenes ...int) string {
	imagesDir := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(imagesDir, 0755))
	for _, n := range scenes {
		path := filepath.Join(imagesDir, fmt.Sprintf("scene_%02d.png", n))
		require.NoError(t, os.WriteFile(path, []byte("png"), 0644))
	}
	return imagesDir
}

func TestModule_Name(t *testing.T) {
	assert.Equal(t, "assemble", New().Name())
}

func TestExecuteAssemblesFromClips(t *testing.T) {
	invocations, tempDir, scriptPath := setup(t)
	clipsDir := makeClips(t, tempDir, 1, 2)

	result, err := New().Execute(context.Background(), map[string]interface{}{
		"input":     scriptPath,
		"clipsDir":  clipsDir,
		"narration": filepath.Join(tempDir, "narration.mp3"),
		"output":    tempDir,
	})
	require.NoError(t, err)
	assert.FileExists(t, result.Outputs["video"])

	// Without music or subtitles: one crossfade join and one mux.
	require.Len(t, *invocations, 2)
	joined := strings.Join((*invocations)[0], " ")
	assert.Contains(t, joined, "xfade")
	assert.Contains(t, strings.Join((*invocations)[1], " "), "-shortest")
}

func TestExecuteFallsBackToKenBurns(t *testing.T) {
	invocations, tempDir, scriptPath := setup(t)
	clipsDir := makeClips(t, tempDir, 1)
	imagesDir := makeStills(t, tempDir, 1, 2)

	_, err := New().Execute(context.Background(), map[string]interface{}{
		"input":     scriptPath,
		"clipsDir":  clipsDir,
		"imagesDir": imagesDir,
		"narration": filepath.Join(tempDir, "narration.mp3"),
		"output":    tempDir,
	})
	require.NoError(t, err)

	// Scene 2 has no clip, so a zoompan pass runs before the join.
	first := strings.Join((*invocations)[0], " ")
	assert.Contains(t, first, "zoompan")
	assert.Contains(t, first, "scene_02.png")
}

func TestExecuteMixesMusicWhenGiven(t *testing.T) {
	invocations, tempDir, scriptPath := setup(t)
	clipsDir := makeClips(t, tempDir, 1, 2)
	music := filepath.Join(tempDir, "music.mp3")
	require.NoError(t, os.WriteFile(music, []byte("mp3"), 0644))

	_, err := New().Execute(context.Background(), map[string]interface{}{
		"input":     scriptPath,
		"clipsDir":  clipsDir,
		"narration": filepath.Join(tempDir, "narration.mp3"),
		"music":     music,
		"output":    tempDir,
	})
	require.NoError(t, err)

	var sawDucking bool
	for _, args := range *invocations {
		if strings.Contains(strings.Join(args, " "), "sidechaincompress") {
			sawDucking = true
		}
	}
	assert.True(t, sawDucking, "music mix must duck under narration")
}

func TestExecuteBurnsSubtitles(t *testing.T) {
	invocations, tempDir, scriptPath := setup(t)
	clipsDir := makeClips(t, tempDir, 1, 2)

	_, err := New().Execute(context.Background(), map[string]interface{}{
		"input":     scriptPath,
		"clipsDir":  clipsDir,
		"narration": filepath.Join(tempDir, "narration.mp3"),
		"output":    tempDir,
		"subtitles": true,
	})
	require.NoError(t, err)

	last := strings.Join((*invocations)[len(*invocations)-1], " ")
	assert.Contains(t, last, "subtitles=")

	srt, err := os.ReadFile(filepath.Join(tempDir, "assembly", "subtitles.srt"))
	require.NoError(t, err)
	assert.Contains(t, string(srt), "00:00:00,000 --> 00:00:05,000")
}

func TestExecuteFailsWhenSceneHasNoSource(t *testing.T) {
	_, tempDir, scriptPath := setup(t)
	clipsDir := makeClips(t, tempDir, 1)
	imagesDir := makeStills(t, tempDir, 1)

	_, err := New().Execute(context.Background(), map[string]interface{}{
		"input":     scriptPath,
		"clipsDir":  clipsDir,
		"imagesDir": imagesDir,
		"narration": filepath.Join(tempDir, "narration.mp3"),
		"output":    tempDir,
	})
	assert.ErrorContains(t, err, "neither a clip nor a still")
}

func TestBuildSRT(t *testing.T) {
	srt := BuildSRT([]script.Scene{
		{Narration: "The light went out.", DurationSec: 4.5},
		{Narration: "Nobody answered.", DurationSec: 3},
	})

	assert.Contains(t, srt, "1\n00:00:00,000 --> 00:00:04,500\nThe light went out.")
	assert.Contains(t, srt, "2\n00:00:04,500 --> 00:00:07,500\nNobody answered.")
}

func TestSrtTimestampRollover(t *testing.T) {
	assert.Equal(t, "00:01:05,250", srtTimestamp(65.25))
	assert.Equal(t, "01:00:00,000", srtTimestamp(3600))
}
