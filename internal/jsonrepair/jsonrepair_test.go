package jsonrepair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "fenced with language tag",
			input: "Here is the script:\n```json\n{\"a\": 1}\n```\nLet me know!",
			want:  `{"a": 1}`,
		},
		{
			name:  "fenced without language tag",
			input: "```\n[1, 2]\n```",
			want:  "[1, 2]",
		},
		{
			name:  "unfenced with surrounding prose",
			input: "Sure! {\"scenes\": []} Hope this helps.",
			want:  `{"scenes": []}`,
		},
		{
			name:  "no json at all",
			input: "  I cannot do that.  ",
			want:  "I cannot do that.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.input))
		})
	}
}

func TestBalanceBraces(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "already balanced",
			input: `{"a": [1, 2]}`,
			want:  `{"a": [1, 2]}`,
		},
		{
			name:  "truncated object",
			input: `{"scenes": [{"prompt": "a castle"`,
			want:  `{"scenes": [{"prompt": "a castle"}]}`,
		},
		{
			name:  "truncated mid string",
			input: `{"title": "The Hau`,
			want:  `{"title": "The Hau"}`,
		},
		{
			name:  "braces inside strings ignored",
			input: `{"text": "use { and ["}`,
			want:  `{"text": "use { and ["}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BalanceBraces(tt.input))
		})
	}
}

func TestNormalizeQuotes(t *testing.T) {
	in := "{“title”: ‘ok’}"
	assert.Equal(t, `{"title": 'ok'}`, NormalizeQuotes(in))
}

func TestPatchPunctuation(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, PatchPunctuation(`{"a": 1,}`))
	assert.Equal(t, "[1, 2]", PatchPunctuation("[1, 2,]"))
}

func TestDecode(t *testing.T) {
	type script struct {
		Title  string `json:"title"`
		Scenes []struct {
			Prompt string `json:"prompt"`
		} `json:"scenes"`
	}

	t.Run("clean json passes through", func(t *testing.T) {
		var s script
		err := Decode(`{"title": "ok", "scenes": []}`, &s)
		require.NoError(t, err)
		assert.Equal(t, "ok", s.Title)
	})

	t.Run("fenced truncated output is repaired", func(t *testing.T) {
		raw := "```json\n{\"title\": \"Night\", \"scenes\": [{\"prompt\": \"a dark hallway\"\n```"
		var s script
		err := Decode(raw, &s)
		require.NoError(t, err)
		assert.Equal(t, "Night", s.Title)
		require.Len(t, s.Scenes, 1)
		assert.Equal(t, "a dark hallway", s.Scenes[0].Prompt)
	})

	t.Run("unrepairable output fails", func(t *testing.T) {
		var s script
		err := Decode("I'm sorry, I can't help with that.", &s)
		assert.Error(t, err)
	})
}
