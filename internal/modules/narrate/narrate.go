// Package narrate synthesizes the voice-over for each scene through a
// hosted TTS endpoint, then joins the per-scene tracks into one narration
// file for the mix stage.
package narrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	modules "github.com/dreamreel/dreamreel/internal/mod"
	"github.com/dreamreel/dreamreel/internal/modules/script"
	"github.com/dreamreel/dreamreel/internal/quota"
	"github.com/dreamreel/dreamreel/internal/render"
	"github.com/dreamreel/dreamreel/internal/services/inference"
	"github.com/dreamreel/dreamreel/internal/utils"
)

// synthesizer abstracts the inference client for tests.
type synthesizer interface {
	Generate(ctx context.Context, payload interface{}) ([]byte, error)
}

var (
	newSynthesizer = func(p Params, tracker *quota.Tracker) synthesizer {
		return inference.NewClient(
			inference.Endpoint{
				Name:        "tts-primary",
				URL:         p.EndpointURL,
				APIKeyEnv:   p.APIKeyEnv,
				CostPerCall: p.CostPerCall,
			},
			inference.Endpoint{
				Name:      "tts-fallback",
				URL:       p.FallbackURL,
				APIKeyEnv: p.FallbackKeyEnv,
			},
			tracker,
			nil,
		)
	}
	runRender = render.Run
)

// Module implements the narration synthesis functionality
type Module struct{}

// Params contains the parameters for narration synthesis
type Params struct {
	Input          string  `json:"input"`          // Path to the scene script JSON
	Output         string  `json:"output"`         // Path to output directory
	EndpointURL    string  `json:"endpointUrl"`    // TTS inference endpoint
	APIKeyEnv      string  `json:"apiKeyEnv"`      // Env var holding the bearer token (default: HF_API_TOKEN)
	FallbackURL    string  `json:"fallbackUrl"`    // Optional fallback endpoint
	FallbackKeyEnv string  `json:"fallbackKeyEnv"` // Env var for the fallback token
	Voice          string  `json:"voice"`          // Optional voice preset passed to the endpoint
	CostPerCall    float64 `json:"costPerCall"`    // Spend recorded per call
	QuotaDir       string  `json:"quotaDir"`       // Directory for usage counters (optional)
}

// ttsPayload is the request body sent to the endpoint.
type ttsPayload struct {
	Inputs     string            `json:"inputs"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// New creates a new narrate module
func New() modules.Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return "narrate"
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
	if p.EndpointURL == "" {
		return fmt.Errorf("endpointUrl is required")
	}
	if err := utils.ValidateRequiredDependency("ffmpeg"); err != nil {
		return err
	}

	return nil
}

// Execute synthesizes per-scene narration and joins it into one track
func (m *Module) Execute(ctx context.Context, params map[string]interface{}) (modules.ModuleResult, error) {
	var p Params
	if err := modules.ParseParams(params, &p); err != nil {
		return modules.ModuleResult{}, err
	}

	if p.APIKeyEnv == "" {
		p.APIKeyEnv = "HF_API_TOKEN"
	}

	resolvedInput := utils.ResolveOutputPath(p.Input, p.Output)
	s, err := script.Load(resolvedInput)
	if err != nil {
		return modules.ModuleResult{}, err
	}

	audioDir := filepath.Join(p.Output, "narration")
	if err := os.MkdirAll(audioDir, 0755); err != nil {
		return modules.ModuleResult{}, fmt.Errorf("failed to create narration directory: %w", err)
	}

	var tracker *quota.Tracker
	if p.QuotaDir != "" {
		tracker, err = quota.NewTracker(p.QuotaDir, nil)
		if err != nil {
			return modules.ModuleResult{}, err
		}
	}
	synth := newSynthesizer(p, tracker)

	var segments []string
	for i, scene := range s.Scenes {
		payload := ttsPayload{Inputs: scene.Narration}
		if p.Voice != "" {
			payload.Parameters = map[string]string{"voice": p.Voice}
		}

		utils.LogVerbose("Synthesizing narration for scene %d/%d", i+1, len(s.Scenes))
		data, err := synth.Generate(ctx, payload)
		if err != nil {
			return modules.ModuleResult{}, fmt.Errorf("narration for scene %d failed: %w", i+1, err)
		}

		segPath := filepath.Join(audioDir, fmt.Sprintf("narration_%02d.mp3", i+1))
		if err := os.WriteFile(segPath, data, 0644); err != nil {
			return modules.ModuleResult{}, fmt.Errorf("failed to write narration segment: %w", err)
		}
		segments = append(segments, segPath)
	}

	narrationPath := filepath.Join(p.Output, "narration.mp3")
	if err := m.joinSegments(ctx, segments, audioDir, narrationPath); err != nil {
		return modules.ModuleResult{}, err
	}

	utils.LogSuccess("Narration synthesized: %s (%d scenes)", narrationPath, len(segments))
	return modules.ModuleResult{
		Outputs: map[string]string{
			"narration": narrationPath,
			"segments":  audioDir,
		},
		Statistics: map[string]interface{}{
			"scenes": len(segments),
		},
	}, nil
}

// joinSegments concatenates the per-scene tracks via the concat demuxer.
func (m *Module) joinSegments(ctx context.Context, segments []string, audioDir, output string) error {
	var list strings.Builder
	for _, seg := range segments {
		abs, err := filepath.Abs(seg)
		if err != nil {
			return fmt.Errorf("failed to resolve segment path: %w", err)
		}
		fmt.Fprintf(&list, "file '%s'\n", abs)
	}

	listFile := filepath.Join(audioDir, "segments.txt")
	if err := utils.WriteTextFile(listFile, list.String()); err != nil {
		return fmt.Errorf("failed to write segment list: %w", err)
	}

	return runRender(ctx, render.AudioConcatArgs(listFile, output))
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
				Name:        "endpointUrl",
				Description: "TTS inference endpoint URL",
				Type:        string(modules.InputTypeData),
			},
		},
		OptionalInputs: []modules.ModuleInput{
			{
				Name:        "voice",
				Description: "Voice preset passed to the endpoint",
				Type:        string(modules.InputTypeData),
			},
			{
				Name:        "fallbackUrl",
				Description: "Fallback endpoint when the primary is unavailable",
				Type:        string(modules.InputTypeData),
			},
			{
				Name:        "quotaDir",
				Description: "Directory for usage counters",
				Type:        string(modules.InputTypeDirectory),
			},
		},
		ProducedOutputs: []modules.ModuleOutput{
			{
				Name:        "narration",
				Description: "Joined narration track",
				Patterns:    []string{".mp3"},
				Type:        string(modules.OutputTypeFile),
			},
			{
				Name:        "segments",
				Description: "Directory of per-scene narration segments",
				Patterns:    []string{".mp3"},
				Type:        string(modules.OutputTypeDirectory),
			},
		},
	}
}
