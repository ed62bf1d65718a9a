// Package script turns a topic into a structured scene script using a chat
// model. The model is asked for strict JSON; its output is decoded through
// the repair pipeline because fences and truncation are routine.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	modules "github.com/dreamreel/dreamreel/internal/mod"
	"github.com/dreamreel/dreamreel/internal/jsonrepair"
	"github.com/dreamreel/dreamreel/internal/services/llm"
	"github.com/dreamreel/dreamreel/internal/utils"
)

// Scene is one narrated beat of the video.
type Scene struct {
	Narration   string  `json:"narration"`   // Voice-over text for the scene
	ImagePrompt string  `json:"imagePrompt"` // Visual description fed to the image agent
	DurationSec float64 `json:"durationSec"` // Target on-screen duration
}

// Script is the structured output of the generation stage and the contract
// every downstream stage reads.
type Script struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Tags        string  `json:"tags"`  // Comma-separated upload tags
	Mood        string  `json:"mood"`  // Music mood keyword
	Style       string  `json:"style"` // Style suffix appended to image prompts
	Scenes      []Scene `json:"scenes"`
}

// TotalDuration returns the summed scene durations in seconds.
func (s *Script) TotalDuration() float64 {
	var total float64
	for _, scene := range s.Scenes {
		total += scene.DurationSec
	}
	return total
}

// Load reads a script JSON file written by a previous run of this module.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script file: %w", err)
	}
	return &s, nil
}

// Module implements the script generation functionality
type Module struct {
	completer llm.Completer
}

// Params contains the parameters for script generation
type Params struct {
	Topic            string  `json:"topic"`            // Topic or idea text
	TopicFile        string  `json:"topicFile"`        // Path to a file holding the topic (overrides topic)
	Output           string  `json:"output"`           // Path to output directory
	OutputFileName   string  `json:"outputFileName"`   // Custom output file name (default: "script")
	PromptTemplate   string  `json:"promptTemplate"`   // Path to prompt template file
	Model            string  `json:"model"`            // OpenAI model to use (default: "gpt-4o")
	Temperature      float64 `json:"temperature"`      // Model temperature (default: 0.7)
	MaxTokens        int     `json:"maxTokens"`        // Maximum tokens for the response (default: 4000)
	SceneCount       int     `json:"sceneCount"`       // Number of scenes to request (default: 6)
	Language         string  `json:"language"`         // Narration language (default: "English")
	RequestTimeoutMS int     `json:"requestTimeoutMs"` // API request timeout in milliseconds (default: 120000)
}

// New creates a new script module
func New() modules.Module {
	return &Module{}
}

// NewWithCompleter creates a script module backed by a specific completer.
func NewWithCompleter(c llm.Completer) modules.Module {
	return &Module{completer: c}
}

// Name returns the module name
func (m *Module) Name() string {
	return "script"
}

// Validate checks if the parameters are valid
func (m *Module) Validate(params map[string]interface{}) error {
	var p Params
	if err := modules.ParseParams(params, &p); err != nil {
		return err
	}

	if p.Topic == "" && p.TopicFile == "" {
		return fmt.Errorf("either topic or topicFile is required")
	}

	if err := utils.ValidateOutputPath(p.Output); err != nil {
		return err
	}

	if p.TopicFile != "" {
		if _, err := os.Stat(p.TopicFile); os.IsNotExist(err) {
			return fmt.Errorf("topic file %s does not exist", p.TopicFile)
		}
	}

	// Check if the prompt template exists
	if p.PromptTemplate != "" {
		if _, err := os.Stat(p.PromptTemplate); os.IsNotExist(err) {
			return fmt.Errorf("prompt template %s does not exist", p.PromptTemplate)
		}
	}

	if !llm.IsAPIKeySet() {
		return fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}

	return nil
}

// Execute generates the scene script and writes it as JSON
func (m *Module) Execute(ctx context.Context, params map[string]interface{}) (modules.ModuleResult, error) {
	var p Params
	if err := modules.ParseParams(params, &p); err != nil {
		return modules.ModuleResult{}, err
	}

	// Set default values
	if p.Model == "" {
		p.Model = "gpt-4o"
	}
	if p.Temperature == 0 {
		p.Temperature = 0.7
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = 4000
	}
	if p.SceneCount == 0 {
		p.SceneCount = 6
	}
	if p.Language == "" {
		p.Language = "English"
	}
	if p.RequestTimeoutMS == 0 {
		p.RequestTimeoutMS = 120000
	}
	if p.OutputFileName == "" {
		p.OutputFileName = "script"
	}

	if err := os.MkdirAll(p.Output, 0755); err != nil {
		return modules.ModuleResult{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	topic := p.Topic
	if p.TopicFile != "" {
		data, err := os.ReadFile(p.TopicFile)
		if err != nil {
			return modules.ModuleResult{}, fmt.Errorf("failed to read topic file: %w", err)
		}
		topic = strings.TrimSpace(string(data))
	}

	prompt, err := m.buildPrompt(p, topic)
	if err != nil {
		return modules.ModuleResult{}, err
	}

	completer := m.completer
	if completer == nil {
		service, err := llm.NewService()
		if err != nil {
			return modules.ModuleResult{}, err
		}
		completer = service
	}

	utils.LogInfo("Generating script for topic: %s", topic)
	content, err := completer.GetContent(ctx, []llm.ChatMessage{
		{Role: "system", Content: "You are a scriptwriter for short-form vertical videos. Respond with JSON only, no commentary."},
		{Role: "user", Content: prompt},
	}, llm.CompletionOptions{
		Model:            p.Model,
		Temperature:      p.Temperature,
		MaxTokens:        p.MaxTokens,
		RequestTimeoutMS: p.RequestTimeoutMS,
	})
	if err != nil {
		return modules.ModuleResult{}, fmt.Errorf("script generation failed: %w", err)
	}

	var s Script
	if err := jsonrepair.Decode(content, &s); err != nil {
		return modules.ModuleResult{}, err
	}
	if err := validateScript(&s); err != nil {
		return modules.ModuleResult{}, err
	}

	outputPath := filepath.Join(p.Output, p.OutputFileName+".json")
	encoded, err := json.MarshalIndent(&s, "", "  ")
	if err != nil {
		return modules.ModuleResult{}, fmt.Errorf("failed to encode script: %w", err)
	}
	if err := os.WriteFile(outputPath, encoded, 0644); err != nil {
		return modules.ModuleResult{}, fmt.Errorf("failed to write script file: %w", err)
	}

	utils.LogSuccess("Generated script %q with %d scenes (%.0fs)", s.Title, len(s.Scenes), s.TotalDuration())
	return modules.ModuleResult{
		Outputs: map[string]string{
			"script": outputPath,
		},
		Statistics: map[string]interface{}{
			"scenes":   len(s.Scenes),
			"duration": s.TotalDuration(),
		},
	}, nil
}

// buildPrompt renders the request either from a template file or the
// built-in default.
func (m *Module) buildPrompt(p Params, topic string) (string, error) {
	if p.PromptTemplate != "" {
		data, err := os.ReadFile(p.PromptTemplate)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt template: %w", err)
		}
		tmpl := string(data)
		tmpl = strings.ReplaceAll(tmpl, "{topic}", topic)
		tmpl = strings.ReplaceAll(tmpl, "{sceneCount}", fmt.Sprintf("%d", p.SceneCount))
		tmpl = strings.ReplaceAll(tmpl, "{language}", p.Language)
		return tmpl, nil
	}

	return fmt.Sprintf(`Write a short-form video script about: %s

Produce exactly %d scenes in %s. Return a single JSON object with this shape:
{
  "title": "...",
  "description": "...",
  "tags": "comma,separated,tags",
  "mood": "one of: horror, mystery, uplifting, epic, calm, tension",
  "style": "a visual style suffix for image prompts",
  "scenes": [
    {"narration": "...", "imagePrompt": "...", "durationSec": 5}
  ]
}`, topic, p.SceneCount, p.Language), nil
}

func validateScript(s *Script) error {
	if s.Title == "" {
		return fmt.Errorf("script is missing a title")
	}
	if len(s.Scenes) == 0 {
		return fmt.Errorf("script has no scenes")
	}
	for i, scene := range s.Scenes {
		if scene.Narration == "" {
			return fmt.Errorf("scene %d has no narration", i+1)
		}
		if scene.ImagePrompt == "" {
			return fmt.Errorf("scene %d has no image prompt", i+1)
		}
		if scene.DurationSec <= 0 {
			return fmt.Errorf("scene %d has a non-positive duration", i+1)
		}
	}
	return nil
}

// GetIO returns the module's input/output specification
func (m *Module) GetIO() modules.ModuleIO {
	return modules.ModuleIO{
		RequiredInputs: []modules.ModuleInput{
			{
				Name:        "output",
				Description: "Path to output directory",
				Type:        string(modules.InputTypeDirectory),
			},
		},
		OptionalInputs: []modules.ModuleInput{
			{
				Name:        "topic",
				Description: "Topic or idea text",
				Type:        string(modules.InputTypeData),
			},
			{
				Name:        "topicFile",
				Description: "Path to a file holding the topic",
				Patterns:    []string{".txt", ".md"},
				Type:        string(modules.InputTypeFile),
			},
			{
				Name:        "promptTemplate",
				Description: "Path to prompt template file",
				Type:        string(modules.InputTypeFile),
			},
			{
				Name:        "sceneCount",
				Description: "Number of scenes to request (default: 6)",
				Type:        string(modules.InputTypeData),
			},
		},
		ProducedOutputs: []modules.ModuleOutput{
			{
				Name:        "script",
				Description: "Structured scene script",
				Patterns:    []string{".json"},
				Type:        string(modules.OutputTypeFile),
			},
		},
	}
}
