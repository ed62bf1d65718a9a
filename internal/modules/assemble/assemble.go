// Package assemble stitches the per-scene clips, narration and music into
// the final video. Scenes without an animated clip fall back to a Ken Burns
// pass over the still, so a partially failed animation stage still yields a
// complete video.
package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	modules "github.com/dreamreel/dreamreel/internal/mod"
	"github.com/dreamreel/dreamreel/internal/modules/script"
	"github.com/dreamreel/dreamreel/internal/render"
	"github.com/dreamreel/dreamreel/internal/utils"
)

// runRender is a test seam over ffmpeg execution.
var runRender = render.Run

// Module implements the final assembly functionality
type Module struct{}

// Params contains the parameters for final assembly
type Params struct {
	Input       string  `json:"input"`       // Path to the scene script JSON
	ClipsDir    string  `json:"clipsDir"`    // Directory of animated scene clips (optional)
	ImagesDir   string  `json:"imagesDir"`   // Directory of scene stills, used as fallback
	Narration   string  `json:"narration"`   // Path to the narration track
	Music       string  `json:"music"`       // Path to the music bed (optional)
	Output      string  `json:"output"`      // Path to output directory
	OutputName  string  `json:"outputName"`  // Final video file name (default: "final.mp4")
	AspectRatio string  `json:"aspectRatio"` // "16:9", "9:16" or "1:1" (default: "9:16")
	FadeSec     float64 `json:"fadeSec"`     // Crossfade length between scenes (default: 0.5)
	MusicVolume float64 `json:"musicVolume"` // Music level under narration (default: 0.25)
	Subtitles   bool    `json:"subtitles"`   // Burn scene narration as subtitles
}

// New creates a new assemble module
func New() modules.Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return "assemble"
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
	if p.Narration == "" {
		return fmt.Errorf("narration is required")
	}
	if p.ClipsDir == "" && p.ImagesDir == "" {
		return fmt.Errorf("at least one of clipsDir or imagesDir is required")
	}
	if p.AspectRatio != "" {
		if err := utils.ValidateAspectRatio(p.AspectRatio); err != nil {
			return err
		}
	}
	if err := utils.ValidateRequiredDependency("ffmpeg"); err != nil {
		return err
	}

	return nil
}

// dimensions maps an aspect ratio to output pixel dimensions.
func dimensions(ratio string) (int, int) {
	switch ratio {
	case "16:9":
		return 1920, 1080
	case "1:1":
		return 1080, 1080
	default:
		return 1080, 1920
	}
}

// Execute builds the final video
func (m *Module) Execute(ctx context.Context, params map[string]interface{}) (modules.ModuleResult, error) {
	var p Params
	if err := modules.ParseParams(params, &p); err != nil {
		return modules.ModuleResult{}, err
	}

	// Set default values
	if p.AspectRatio == "" {
		p.AspectRatio = "9:16"
	}
	if p.FadeSec == 0 {
		p.FadeSec = 0.5
	}
	if p.MusicVolume == 0 {
		p.MusicVolume = 0.25
	}
	if p.OutputName == "" {
		p.OutputName = "final.mp4"
	}

	resolvedInput := utils.ResolveOutputPath(p.Input, p.Output)
	s, err := script.Load(resolvedInput)
	if err != nil {
		return modules.ModuleResult{}, err
	}

	width, height := dimensions(p.AspectRatio)
	workDir := filepath.Join(p.Output, "assembly")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return modules.ModuleResult{}, fmt.Errorf("failed to create assembly directory: %w", err)
	}

	clips, durations, err := m.sceneClips(ctx, p, s, workDir, width, height)
	if err != nil {
		return modules.ModuleResult{}, err
	}

	// Join the scene clips.
	videoPath := filepath.Join(workDir, "video.mp4")
	if err := runRender(ctx, render.CrossfadeArgs(clips, durations, p.FadeSec, videoPath, width, height)); err != nil {
		return modules.ModuleResult{}, err
	}

	// Mix narration over the music bed, or take narration as is.
	audioPath := utils.ResolveOutputPath(p.Narration, p.Output)
	if p.Music != "" {
		mixPath := filepath.Join(workDir, "mix.mp3")
		musicPath := utils.ResolveOutputPath(p.Music, p.Output)
		if err := runRender(ctx, render.MixArgs(audioPath, musicPath, mixPath, p.MusicVolume)); err != nil {
			return modules.ModuleResult{}, err
		}
		audioPath = mixPath
	}

	muxPath := filepath.Join(workDir, "muxed.mp4")
	if err := runRender(ctx, render.MuxArgs(videoPath, audioPath, muxPath)); err != nil {
		return modules.ModuleResult{}, err
	}

	finalPath := filepath.Join(p.Output, p.OutputName)
	if p.Subtitles {
		srtPath := filepath.Join(workDir, "subtitles.srt")
		if err := utils.WriteTextFile(srtPath, BuildSRT(s.Scenes)); err != nil {
			return modules.ModuleResult{}, fmt.Errorf("failed to write subtitles: %w", err)
		}
		if err := runRender(ctx, render.SubtitleArgs(muxPath, srtPath, finalPath)); err != nil {
			return modules.ModuleResult{}, err
		}
	} else {
		if err := utils.CopyFile(muxPath, finalPath); err != nil {
			return modules.ModuleResult{}, fmt.Errorf("failed to place final video: %w", err)
		}
	}

	utils.LogSuccess("Assembled final video: %s", finalPath)
	return modules.ModuleResult{
		Outputs: map[string]string{
			"video": finalPath,
		},
		Statistics: map[string]interface{}{
			"scenes":   len(clips),
			"duration": s.TotalDuration(),
		},
	}, nil
}

// sceneClips returns the clip path and duration for every scene, producing
// Ken Burns fallbacks for scenes without an animated clip.
func (m *Module) sceneClips(ctx context.Context, p Params, s *script.Script, workDir string, width, height int) ([]string, []float64, error) {
	resolvedClips := utils.ResolveOutputPath(p.ClipsDir, p.Output)
	resolvedImages := utils.ResolveOutputPath(p.ImagesDir, p.Output)

	var clips []string
	var durations []float64
	for i, scene := range s.Scenes {
		name := fmt.Sprintf("scene_%02d", i+1)

		if p.ClipsDir != "" {
			clip := filepath.Join(resolvedClips, name+".mp4")
			if _, err := os.Stat(clip); err == nil {
				clips = append(clips, clip)
				durations = append(durations, scene.DurationSec)
				continue
			}
		}

		if p.ImagesDir == "" {
			return nil, nil, fmt.Errorf("scene %d has no clip and no stills directory was given", i+1)
		}
		still := filepath.Join(resolvedImages, name+".png")
		if _, err := os.Stat(still); err != nil {
			return nil, nil, fmt.Errorf("scene %d has neither a clip nor a still", i+1)
		}

		utils.LogVerbose("Scene %d falls back to Ken Burns over the still", i+1)
		fallback := filepath.Join(workDir, name+"_kb.mp4")
		if err := runRender(ctx, render.KenBurnsArgs(still, fallback, scene.DurationSec, width, height)); err != nil {
			return nil, nil, err
		}
		clips = append(clips, fallback)
		durations = append(durations, scene.DurationSec)
	}

	return clips, durations, nil
}

// BuildSRT renders scene narration as an SRT subtitle document using the
// scripted scene durations for timing.
func BuildSRT(scenes []script.Scene) string {
	var b strings.Builder
	var offset float64
	for i, scene := range scenes {
		start := offset
		offset += scene.DurationSec
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(start), srtTimestamp(offset), scene.Narration)
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	total := int(seconds * 1000)
	ms := total % 1000
	sec := (total / 1000) % 60
	min := (total / 60000) % 60
	hour := total / 3600000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hour, min, sec, ms)
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
				Name:        "narration",
				Description: "Path to the narration track",
				Patterns:    []string{".mp3"},
				Type:        string(modules.InputTypeFile),
			},
			{
				Name:        "output",
				Description: "Path to output directory",
				Type:        string(modules.InputTypeDirectory),
			},
		},
		OptionalInputs: []modules.ModuleInput{
			{
				Name:        "clipsDir",
				Description: "Directory of animated scene clips",
				Type:        string(modules.InputTypeDirectory),
			},
			{
				Name:        "imagesDir",
				Description: "Directory of scene stills used as fallback",
				Type:        string(modules.InputTypeDirectory),
			},
			{
				Name:        "music",
				Description: "Path to the music bed",
				Patterns:    []string{".mp3"},
				Type:        string(modules.InputTypeFile),
			},
			{
				Name:        "subtitles",
				Description: "Burn scene narration as subtitles",
				Type:        string(modules.InputTypeData),
			},
			{
				Name:        "aspectRatio",
				Description: "Output aspect ratio (default: 9:16)",
				Type:        string(modules.InputTypeData),
			},
		},
		ProducedOutputs: []modules.ModuleOutput{
			{
				Name:        "video",
				Description: "Final assembled video",
				Patterns:    []string{".mp4"},
				Type:        string(modules.OutputTypeFile),
			},
		},
	}
}
