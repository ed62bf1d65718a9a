package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamreel/dreamreel/internal/services/llm"
)

type fakeCompleter struct {
	response string
	err      error
	lastUser string
}

func (f *fakeCompleter) GetContent(ctx context.Context, messages []llm.ChatMessage, opts llm.CompletionOptions) (string, error) {
	for _, m := range messages {
		if m.Role == "user" {
			f.lastUser = m.Content
		}
	}
	return f.response, f.err
}

const validScriptJSON = `{
	"title": "The Lighthouse Keeper",
	"description": "A night that never ended.",
	"tags": "horror,story,shorts",
	"mood": "horror",
	"style": "cinematic, volumetric fog, 35mm",
	"scenes": [
		{"narration": "The light went out at midnight.", "imagePrompt": "dark lighthouse at night", "durationSec": 5},
		{"narration": "Nobody answered the radio.", "imagePrompt": "old radio room, flickering lamp", "durationSec": 5}
	]
}`

func TestModule_Name(t *testing.T) {
	module := New()
	assert.Equal(t, "script", module.Name())
}

func TestExecuteWritesScriptJSON(t *testing.T) {
	tempDir := t.TempDir()
	fake := &fakeCompleter{response: validScriptJSON}
	module := NewWithCompleter(fake)

	result, err := module.Execute(context.Background(), map[string]interface{}{
		"topic":  "a lighthouse keeper who vanished",
		"output": tempDir,
	})
	require.NoError(t, err)

	scriptPath := result.Outputs["script"]
	require.FileExists(t, scriptPath)
	assert.Equal(t, filepath.Join(tempDir, "script.json"), scriptPath)

	s, err := Load(scriptPath)
	require.NoError(t, err)
	assert.Equal(t, "The Lighthouse Keeper", s.Title)
	assert.Len(t, s.Scenes, 2)
	assert.InDelta(t, 10.0, s.TotalDuration(), 0.01)

	assert.Contains(t, fake.lastUser, "a lighthouse keeper who vanished")
	assert.Equal(t, 2, result.Statistics["scenes"])
}

func TestExecuteRepairsFencedOutput(t *testing.T) {
	fenced := "```json\n" + validScriptJSON + "\n```"
	module := NewWithCompleter(&fakeCompleter{response: fenced})

	result, err := module.Execute(context.Background(), map[string]interface{}{
		"topic":  "test",
		"output": t.TempDir(),
	})
	require.NoError(t, err)

	s, err := Load(result.Outputs["script"])
	require.NoError(t, err)
	assert.Equal(t, "horror", s.Mood)
}

func TestExecuteRejectsEmptyScenes(t *testing.T) {
	module := NewWithCompleter(&fakeCompleter{response: `{"title": "Empty", "scenes": []}`})

	_, err := module.Execute(context.Background(), map[string]interface{}{
		"topic":  "test",
		"output": t.TempDir(),
	})
	assert.ErrorContains(t, err, "no scenes")
}

func TestExecuteReadsTopicFile(t *testing.T) {
	tempDir := t.TempDir()
	topicFile := filepath.Join(tempDir, "topic.txt")
	require.NoError(t, os.WriteFile(topicFile, []byte("abandoned subway stations\n"), 0644))

	fake := &fakeCompleter{response: validScriptJSON}
	module := NewWithCompleter(fake)

	_, err := module.Execute(context.Background(), map[string]interface{}{
		"topicFile": topicFile,
		"output":    tempDir,
	})
	require.NoError(t, err)
	assert.Contains(t, fake.lastUser, "abandoned subway stations")
}

func TestExecuteUsesPromptTemplate(t *testing.T) {
	tempDir := t.TempDir()
	tmplFile := filepath.Join(tempDir, "prompt.txt")
	require.NoError(t, os.WriteFile(tmplFile, []byte("Tell me about {topic} in {sceneCount} beats."), 0644))

	fake := &fakeCompleter{response: validScriptJSON}
	module := NewWithCompleter(fake)

	_, err := module.Execute(context.Background(), map[string]interface{}{
		"topic":          "deep sea vents",
		"output":         tempDir,
		"promptTemplate": tmplFile,
		"sceneCount":     4,
	})
	require.NoError(t, err)
	assert.Equal(t, "Tell me about deep sea vents in 4 beats.", fake.lastUser)
}

func TestValidateRequiresTopic(t *testing.T) {
	module := New()
	err := module.Validate(map[string]interface{}{
		"output": t.TempDir(),
	})
	assert.ErrorContains(t, err, "topic")
}
