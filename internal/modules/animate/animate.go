// Package animate turns scene stills into short motion clips through the
// Grok imagine web agent. A scene whose clip fails is left without one;
// the assembly stage falls back to animating the still directly.
package animate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dreamreel/dreamreel/internal/agent"
	"github.com/dreamreel/dreamreel/internal/browser"
	modules "github.com/dreamreel/dreamreel/internal/mod"
	"github.com/dreamreel/dreamreel/internal/modules/script"
	"github.com/dreamreel/dreamreel/internal/utils"
)

type generator interface {
	GenerateBatch(ctx context.Context, reqs []agent.GenerationRequest) []agent.GenerationResult
	Close()
}

var newGenerator = func(sessionCfg browser.Config, cfg agent.Config) generator {
	return agent.NewGrok(sessionCfg, cfg)
}

// Module implements the scene animation functionality
type Module struct{}

// Params contains the parameters for scene animation
type Params struct {
	Input       string `json:"input"`       // Path to the scene script JSON
	ImagesDir   string `json:"imagesDir"`   // Directory of scene stills from the images stage
	Output      string `json:"output"`      // Path to output directory
	ProfileDir  string `json:"profileDir"`  // Browser profile directory for the persistent session
	BrowserBin  string `json:"browserBin"`  // Chromium binary (optional)
	Headless    bool   `json:"headless"`    // Run the browser headless
	AspectRatio string `json:"aspectRatio"` // "16:9", "9:16" or "1:1" (default: "9:16")
}

// New creates a new animate module
func New() modules.Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return "animate"
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
	if p.ImagesDir == "" {
		return fmt.Errorf("imagesDir is required")
	}
	if p.ProfileDir == "" {
		return fmt.Errorf("profileDir is required")
	}
	if p.AspectRatio != "" {
		if err := utils.ValidateAspectRatio(p.AspectRatio); err != nil {
			return err
		}
	}

	return nil
}

// Execute animates each scene still into a motion clip
func (m *Module) Execute(ctx context.Context, params map[string]interface{}) (modules.ModuleResult, error) {
	var p Params
	if err := modules.ParseParams(params, &p); err != nil {
		return modules.ModuleResult{}, err
	}

	if p.AspectRatio == "" {
		p.AspectRatio = "9:16"
	}

	resolvedInput := utils.ResolveOutputPath(p.Input, p.Output)
	s, err := script.Load(resolvedInput)
	if err != nil {
		return modules.ModuleResult{}, err
	}

	resolvedImages := utils.ResolveOutputPath(p.ImagesDir, p.Output)
	clipsDir := filepath.Join(p.Output, "clips")
	if err := os.MkdirAll(clipsDir, 0755); err != nil {
		return modules.ModuleResult{}, fmt.Errorf("failed to create clips directory: %w", err)
	}

	// Only scenes that have a still can be animated.
	var reqs []agent.GenerationRequest
	var sceneIdx []int
	for i, scene := range s.Scenes {
		still := filepath.Join(resolvedImages, fmt.Sprintf("scene_%02d.png", i+1))
		if _, err := os.Stat(still); err != nil {
			utils.LogWarning("Scene %d has no still, skipping animation", i+1)
			continue
		}
		reqs = append(reqs, agent.GenerationRequest{
			Prompt:      scene.ImagePrompt,
			RefImages:   map[string][]string{"image": {still}},
			AspectRatio: p.AspectRatio,
			StyleSuffix: s.Style,
		})
		sceneIdx = append(sceneIdx, i)
	}

	if len(reqs) == 0 {
		return modules.ModuleResult{}, fmt.Errorf("no scene stills found in %s", resolvedImages)
	}

	gen := newGenerator(browser.Config{
		ProfileDir: p.ProfileDir,
		Bin:        p.BrowserBin,
		Headless:   p.Headless,
	}, agent.Config{})
	defer gen.Close()

	utils.LogInfo("Animating %d scene stills", len(reqs))
	results := gen.GenerateBatch(ctx, reqs)

	animated := 0
	for ri, res := range results {
		sceneNo := sceneIdx[ri] + 1
		if res.Err != nil {
			utils.LogWarning("Scene %d animation failed: %v", sceneNo, res.Err)
			continue
		}
		if res.Data == nil {
			continue
		}
		clipPath := filepath.Join(clipsDir, fmt.Sprintf("scene_%02d.mp4", sceneNo))
		if err := os.WriteFile(clipPath, res.Data, 0644); err != nil {
			return modules.ModuleResult{}, fmt.Errorf("failed to write scene clip: %w", err)
		}
		animated++
	}

	utils.LogSuccess("Animated %d/%d scenes", animated, len(reqs))
	return modules.ModuleResult{
		Outputs: map[string]string{
			"clips": clipsDir,
		},
		Statistics: map[string]interface{}{
			"requested": len(reqs),
			"animated":  animated,
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
				Name:        "imagesDir",
				Description: "Directory of scene stills",
				Type:        string(modules.InputTypeDirectory),
			},
			{
				Name:        "output",
				Description: "Path to output directory",
				Type:        string(modules.InputTypeDirectory),
			},
			{
				Name:        "profileDir",
				Description: "Browser profile directory for the persistent session",
				Type:        string(modules.InputTypeDirectory),
			},
		},
		OptionalInputs: []modules.ModuleInput{
			{
				Name:        "aspectRatio",
				Description: "Output aspect ratio (default: 9:16)",
				Type:        string(modules.InputTypeData),
			},
			{
				Name:        "headless",
				Description: "Run the browser headless",
				Type:        string(modules.InputTypeData),
			},
		},
		ProducedOutputs: []modules.ModuleOutput{
			{
				Name:        "clips",
				Description: "Directory of animated scene clips",
				Patterns:    []string{".mp4"},
				Type:        string(modules.OutputTypeDirectory),
			},
		},
	}
}
