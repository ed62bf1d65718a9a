package animate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamreel/dreamreel/internal/agent"
	"github.com/dreamreel/dreamreel/internal/browser"
)

type fakeGenerator struct {
	results []agent.GenerationResult
	reqs    []agent.GenerationRequest
}

func (f *fakeGenerator) GenerateBatch(ctx context.Context, reqs []agent.GenerationRequest) []agent.GenerationResult {
	f.reqs = reqs
	if f.results != nil {
		return f.results
	}
	out := make([]agent.GenerationResult, len(reqs))
	for i := range reqs {
		out[i] = agent.GenerationResult{Data: []byte("mp4-bytes")}
	}
	return out
}

func (f *fakeGenerator) Close() {}

func setup(t *testing.T, fake *fakeGenerator, stills ...int) (string, string) {
	tempDir := t.TempDir()

	scriptPath := filepath.Join(tempDir, "script.json")
	require.NoError(t, os.WriteFile(scriptPath, []byte(`{
		"title": "T",
		"scenes": [
			{"narration": "one", "imagePrompt": "a foggy pier", "durationSec": 5},
			{"narration": "two", "imagePrompt": "an empty boat", "durationSec": 5},
			{"narration": "three", "imagePrompt": "a closed door", "durationSec": 5}
		]
	}`), 0644))

	imagesDir := filepath.Join(tempDir, "images")
	require.NoError(t, os.MkdirAll(imagesDir, 0755))
	for _, n := range stills {
		still := filepath.Join(imagesDir, fmt.Sprintf("scene_%02d.png", n))
		require.NoError(t, os.WriteFile(still, []byte("png"), 0644))
	}

	orig := newGenerator
	newGenerator = func(sessionCfg browser.Config, cfg agent.Config) generator { return fake }
	t.Cleanup(func() { newGenerator = orig })

	return tempDir, scriptPath
}

func TestModule_Name(t *testing.T) {
	assert.Equal(t, "animate", New().Name())
}

func TestExecuteAnimatesScenesWithStills(t *testing.T) {
	fake := &fakeGenerator{}
	tempDir, scriptPath := setup(t, fake, 1, 2, 3)

	result, err := New().Execute(context.Background(), map[string]interface{}{
		"input":      scriptPath,
		"imagesDir":  filepath.Join(tempDir, "images"),
		"output":     tempDir,
		"profileDir": filepath.Join(tempDir, "profile"),
	})
	require.NoError(t, err)

	clipsDir := result.Outputs["clips"]
	assert.FileExists(t, filepath.Join(clipsDir, "scene_01.mp4"))
	assert.FileExists(t, filepath.Join(clipsDir, "scene_03.mp4"))
	assert.Equal(t, 3, result.Statistics["animated"])

	// The still is passed as the image reference for each request.
	require.Len(t, fake.reqs, 3)
	assert.Contains(t, fake.reqs[0].RefImages["image"][0], "scene_01.png")
}

func TestExecuteSkipsScenesWithoutStills(t *testing.T) {
	fake := &fakeGenerator{}
	tempDir, scriptPath := setup(t, fake, 1, 3)

	result, err := New().Execute(context.Background(), map[string]interface{}{
		"input":      scriptPath,
		"imagesDir":  filepath.Join(tempDir, "images"),
		"output":     tempDir,
		"profileDir": filepath.Join(tempDir, "profile"),
	})
	require.NoError(t, err)

	// Clip numbering follows scene numbers, not request order.
	clipsDir := result.Outputs["clips"]
	assert.FileExists(t, filepath.Join(clipsDir, "scene_01.mp4"))
	assert.NoFileExists(t, filepath.Join(clipsDir, "scene_02.mp4"))
	assert.FileExists(t, filepath.Join(clipsDir, "scene_03.mp4"))
	assert.Equal(t, 2, result.Statistics["requested"])
}

func TestExecuteToleratesFailedClips(t *testing.T) {
	fake := &fakeGenerator{results: []agent.GenerationResult{
		{Data: []byte("mp4")},
		{Err: errors.New("failed")},
		{Data: nil},
	}}
	tempDir, scriptPath := setup(t, fake, 1, 2, 3)

	result, err := New().Execute(context.Background(), map[string]interface{}{
		"input":      scriptPath,
		"imagesDir":  filepath.Join(tempDir, "images"),
		"output":     tempDir,
		"profileDir": filepath.Join(tempDir, "profile"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Statistics["animated"])
}

func TestExecuteFailsWithoutAnyStill(t *testing.T) {
	fake := &fakeGenerator{}
	tempDir, scriptPath := setup(t, fake)

	_, err := New().Execute(context.Background(), map[string]interface{}{
		"input":      scriptPath,
		"imagesDir":  filepath.Join(tempDir, "images"),
		"output":     tempDir,
		"profileDir": filepath.Join(tempDir, "profile"),
	})
	assert.ErrorContains(t, err, "no scene stills")
}
