package images

import (
	"context"
	"errors"
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
	closed  bool
}

func (f *fakeGenerator) GenerateBatch(ctx context.Context, reqs []agent.GenerationRequest) []agent.GenerationResult {
	f.reqs = reqs
	if f.results != nil {
		return f.results
	}
	out := make([]agent.GenerationResult, len(reqs))
	for i := range reqs {
		out[i] = agent.GenerationResult{Data: []byte("png-bytes")}
	}
	return out
}

func (f *fakeGenerator) Close() { f.closed = true }

func withFakeGenerator(t *testing.T, fake *fakeGenerator) {
	orig := newGenerator
	newGenerator = func(sessionCfg browser.Config, cfg agent.Config) generator { return fake }
	t.Cleanup(func() { newGenerator = orig })
}

const scriptJSON = `{
	"title": "T",
	"style": "film grain",
	"scenes": [
		{"narration": "one", "imagePrompt": "a foggy pier", "durationSec": 5},
		{"narration": "two", "imagePrompt": "an empty boat", "durationSec": 5}
	]
}`

func writeScript(t *testing.T, dir string) string {
	path := filepath.Join(dir, "script.json")
	require.NoError(t, os.WriteFile(path, []byte(scriptJSON), 0644))
	return path
}

func TestModule_Name(t *testing.T) {
	assert.Equal(t, "images", New().Name())
}

func TestExecuteWritesSceneImages(t *testing.T) {
	tempDir := t.TempDir()
	scriptPath := writeScript(t, tempDir)

	fake := &fakeGenerator{}
	withFakeGenerator(t, fake)

	result, err := New().Execute(context.Background(), map[string]interface{}{
		"input":      scriptPath,
		"output":     tempDir,
		"profileDir": filepath.Join(tempDir, "profile"),
	})
	require.NoError(t, err)

	imagesDir := result.Outputs["images"]
	assert.FileExists(t, filepath.Join(imagesDir, "scene_01.png"))
	assert.FileExists(t, filepath.Join(imagesDir, "scene_02.png"))
	assert.True(t, fake.closed)
	assert.Equal(t, 2, result.Statistics["generated"])

	// Prompt and style come from the script; aspect defaults to vertical.
	require.Len(t, fake.reqs, 2)
	assert.Equal(t, "a foggy pier", fake.reqs[0].Prompt)
	assert.Equal(t, "film grain", fake.reqs[0].StyleSuffix)
	assert.Equal(t, "9:16", fake.reqs[0].AspectRatio)
}

func TestExecuteToleratesPartialFailure(t *testing.T) {
	tempDir := t.TempDir()
	scriptPath := writeScript(t, tempDir)

	fake := &fakeGenerator{results: []agent.GenerationResult{
		{Data: []byte("png-bytes")},
		{Err: errors.New("generation failed")},
	}}
	withFakeGenerator(t, fake)

	result, err := New().Execute(context.Background(), map[string]interface{}{
		"input":      scriptPath,
		"output":     tempDir,
		"profileDir": filepath.Join(tempDir, "profile"),
	})
	require.NoError(t, err)

	imagesDir := result.Outputs["images"]
	assert.FileExists(t, filepath.Join(imagesDir, "scene_01.png"))
	assert.NoFileExists(t, filepath.Join(imagesDir, "scene_02.png"))
	assert.Equal(t, 1, result.Statistics["generated"])
}

func TestExecuteFailsWhenNothingGenerated(t *testing.T) {
	tempDir := t.TempDir()
	scriptPath := writeScript(t, tempDir)

	fake := &fakeGenerator{results: []agent.GenerationResult{
		{Err: errors.New("boom")},
		{Err: errors.New("boom")},
	}}
	withFakeGenerator(t, fake)

	_, err := New().Execute(context.Background(), map[string]interface{}{
		"input":      scriptPath,
		"output":     tempDir,
		"profileDir": filepath.Join(tempDir, "profile"),
	})
	assert.ErrorContains(t, err, "no scene images")
}

func TestValidateRequiresProfileDir(t *testing.T) {
	tempDir := t.TempDir()
	scriptPath := writeScript(t, tempDir)

	err := New().Validate(map[string]interface{}{
		"input":  scriptPath,
		"output": tempDir,
	})
	assert.ErrorContains(t, err, "profileDir")
}
