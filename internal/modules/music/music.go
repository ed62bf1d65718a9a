// Package music selects a background track for the script's mood and trims
// it to the video's length.
package music

import (
	"context"
	"fmt"
	"path/filepath"

	modules "github.com/dreamreel/dreamreel/internal/mod"
	"github.com/dreamreel/dreamreel/internal/modules/script"
	"github.com/dreamreel/dreamreel/internal/render"
	"github.com/dreamreel/dreamreel/internal/utils"
)

// backgroundMusic is a test seam over the render call.
var backgroundMusic = render.BackgroundMusic

// Module implements the background music functionality
type Module struct{}

// Params contains the parameters for background music selection
type Params struct {
	Input       string  `json:"input"`       // Path to the scene script JSON
	Output      string  `json:"output"`      // Path to output directory
	LibraryDir  string  `json:"libraryDir"`  // Directory holding the mood track library
	Mood        string  `json:"mood"`        // Override the script's mood (optional)
	DurationSec float64 `json:"durationSec"` // Override the script's total duration (optional)
}

// New creates a new music module
func New() modules.Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return "music"
}

// Validate checks if the parameters are valid
func (m *Module) Validate(params map[string]interface{}) error {
	var p Params
	if err := modules.ParseParams(params, &p); err != nil {
		return err
	}

	if err := utils.ValidateInputPath(p.Input, p.Output, ""); err != nil {
		return err
	}
	if err := utils.ValidateOutputPath(p.Output); err != nil {
		return err
	}
	if p.LibraryDir == "" {
		return fmt.Errorf("libraryDir is required")
	}
	if err := utils.ValidateRequiredDependency("ffmpeg"); err != nil {
		return err
	}

	return nil
}

// Execute produces the trimmed music bed
func (m *Module) Execute(ctx context.Context, params map[string]interface{}) (modules.ModuleResult, error) {
	var p Params
	if err := modules.ParseParams(params, &p); err != nil {
		return modules.ModuleResult{}, err
	}

	resolvedInput := utils.ResolveOutputPath(p.Input, p.Output)
	s, err := script.Load(resolvedInput)
	if err != nil {
		return modules.ModuleResult{}, err
	}

	mood := p.Mood
	if mood == "" {
		mood = s.Mood
	}
	duration := p.DurationSec
	if duration == 0 {
		duration = s.TotalDuration()
	}

	outputPath := filepath.Join(p.Output, "music.mp3")
	utils.LogInfo("Preparing %s music bed (%.0fs)", mood, duration)
	if err := backgroundMusic(ctx, p.LibraryDir, mood, duration, outputPath); err != nil {
		return modules.ModuleResult{}, err
	}

	utils.LogSuccess("Music bed ready: %s", outputPath)
	return modules.ModuleResult{
		Outputs: map[string]string{
			"music": outputPath,
		},
		Metadata: map[string]interface{}{
			"mood":     mood,
			"duration": duration,
		},
	}, nil
}

// GetIO returns the module's input/output specification
func (m *Module) GetIO() modules.ModuleIO {
	return modules.ModuleIO{
		RequiredInputs: []modules.ModuleInput{
			{
				Name:        "input",
				Description: "Path to the scene script JSON",
				Patterns:    []string{".json"},
				Type:        string(modules.InputTypeFile),
			},
			{
				Name:        "output",
				Description: "Path to output directory",
				Type:        string(modules.InputTypeDirectory),
			},
			{
				Name:        "libraryDir",
				Description: "Directory holding the mood track library",
				Type:        string(modules.InputTypeDirectory),
			},
		},
		OptionalInputs: []modules.ModuleInput{
			{
				Name:        "mood",
				Description: "Override the script's mood",
				Type:        string(modules.InputTypeData),
			},
			{
				Name:        "durationSec",
				Description: "Override the script's total duration",
				Type:        string(modules.InputTypeData),
			},
		},
		ProducedOutputs: []modules.ModuleOutput{
			{
				Name:        "music",
				Description: "Trimmed background music bed",
				Patterns:    []string{".mp3"},
				Type:        string(modules.OutputTypeFile),
			},
		},
	}
}
