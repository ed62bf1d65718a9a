// Package images renders each scene's image prompt through the Whisk web
// agent, producing one still per scene.
package images

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

// generator abstracts the browser agent so tests can run without Chromium.
type generator interface {
	GenerateBatch(ctx context.Context, reqs []agent.GenerationRequest) []agent.GenerationResult
	Close()
}

// newGenerator is swapped in tests.
var newGenerator = func(sessionCfg browser.Config, cfg agent.Config) generator {
	return agent.NewWhisk(sessionCfg, cfg)
}

// Module implements the scene image generation functionality
type Module struct{}

// Params contains the parameters for image generation
type Params struct {
	Input       string `json:"input"`       // Path to the scene script JSON
	Output      string `json:"output"`      // Path to output directory
	ProfileDir  string `json:"profileDir"`  // Browser profile directory for the persistent session
	BrowserBin  string `json:"browserBin"`  // Chromium binary (optional)
	Headless    bool   `json:"headless"`    // Run the browser headless
	AspectRatio string `json:"aspectRatio"` // "16:9", "9:16" or "1:1" (default: "9:16")
	RefImageDir string `json:"refImageDir"` // Directory of style reference images (optional)
}

// New creates a new images module
func New() modules.Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return "images"
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
	if p.ProfileDir == "" {
		return fmt.Errorf("profileDir is required")
	}
	if p.AspectRatio != "" {
		if err := utils.ValidateAspectRatio(p.AspectRatio); err != nil {
			return err
		}
	}
	if p.RefImageDir != "" {
		if _, err := os.Stat(p.RefImageDir); os.IsNotExist(err) {
			return fmt.Errorf("reference image directory %s does not exist", p.RefImageDir)
		}
	}

	return nil
}

// Execute generates one image per scene through the Whisk agent
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

	imagesDir := filepath.Join(p.Output, "images")
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return modules.ModuleResult{}, fmt.Errorf("failed to create images directory: %w", err)
	}

	refs, err := referenceImages(p.RefImageDir)
	if err != nil {
		return modules.ModuleResult{}, err
	}

	reqs := make([]agent.GenerationRequest, len(s.Scenes))
	for i, scene := range s.Scenes {
		reqs[i] = agent.GenerationRequest{
			Prompt:      scene.ImagePrompt,
			RefImages:   refs,
			AspectRatio: p.AspectRatio,
			StyleSuffix: s.Style,
		}
	}

	gen := newGenerator(browser.Config{
		ProfileDir: p.ProfileDir,
		Bin:        p.BrowserBin,
		Headless:   p.Headless,
	}, agent.Config{})
	defer gen.Close()

	utils.LogInfo("Generating %d scene images", len(reqs))
	results := gen.GenerateBatch(ctx, reqs)

	outputs := map[string]string{"images": imagesDir}
	generated := 0
	for i, res := range results {
		if res.Err != nil {
			utils.LogWarning("Scene %d image failed: %v", i+1, res.Err)
			continue
		}
		if res.Data == nil {
			continue
		}
		imagePath := filepath.Join(imagesDir, fmt.Sprintf("scene_%02d.png", i+1))
		if err := os.WriteFile(imagePath, res.Data, 0644); err != nil {
			return modules.ModuleResult{}, fmt.Errorf("failed to write scene image: %w", err)
		}
		generated++
	}

	if generated == 0 {
		return modules.ModuleResult{}, fmt.Errorf("no scene images were generated")
	}

	utils.LogSuccess("Generated %d/%d scene images", generated, len(s.Scenes))
	return modules.ModuleResult{
		Outputs: outputs,
		Statistics: map[string]interface{}{
			"requested": len(s.Scenes),
			"generated": generated,
		},
	}, nil
}

// referenceImages maps every image in dir to the style reference section.
func referenceImages(dir string) (map[string][]string, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference image directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".png" && ext != ".jpg" && ext != ".jpeg" && ext != ".webp" {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	if len(paths) == 0 {
		return nil, nil
	}
	return map[string][]string{"style": paths}, nil
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
				Name:        "refImageDir",
				Description: "Directory of style reference images",
				Type:        string(modules.InputTypeDirectory),
			},
			{
				Name:        "headless",
				Description: "Run the browser headless",
				Type:        string(modules.InputTypeData),
			},
		},
		ProducedOutputs: []modules.ModuleOutput{
			{
				Name:        "images",
				Description: "Directory of generated scene images",
				Patterns:    []string{".png"},
				Type:        string(modules.OutputTypeDirectory),
			},
		},
	}
}
