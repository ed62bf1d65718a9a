// Package validator checks the host environment before a production run
// starts, so missing tools fail fast instead of mid-pipeline.
package validator

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/dreamreel/dreamreel/internal/utils"
)

// ExternalTool represents an external command-line tool requirement
type ExternalTool struct {
	Name        string
	VersionArgs []string
	Validate    func(output string) bool
}

// requiredTools is a list of external tools that must be installed
var requiredTools = []ExternalTool{
	{
		Name:        "ffmpeg",
		VersionArgs: []string{"-version"},
		Validate: func(output string) bool {
			return strings.Contains(output, "ffmpeg version")
		},
	},
	{
		Name:        "ffprobe",
		VersionArgs: []string{"-version"},
		Validate: func(output string) bool {
			return strings.Contains(output, "ffprobe version")
		},
	},
}

// optionalTools lists browsers the generation agents can drive. Only one
// needs to be present, and rod can also download its own.
var optionalTools = []ExternalTool{
	{
		Name:        "chromium",
		VersionArgs: []string{"--version"},
		Validate: func(output string) bool {
			return strings.Contains(output, "Chromium")
		},
	},
	{
		Name:        "google-chrome",
		VersionArgs: []string{"--version"},
		Validate: func(output string) bool {
			return strings.Contains(output, "Chrome")
		},
	},
}

// requiredEnvVars lists required environment variables
var requiredEnvVars = []string{
	"OPENAI_API_KEY",
}

// optionalEnvVars are only needed when the matching step is in the workflow
var optionalEnvVars = []string{
	"HF_API_TOKEN",
	"S3_ENDPOINT",
}

// ValidateExternalTools checks if all required external tools are installed
func ValidateExternalTools() error {
	for _, tool := range requiredTools {
		path, err := exec.LookPath(tool.Name)
		if err != nil {
			return fmt.Errorf("tool %s not found in PATH: %w", tool.Name, err)
		}

		cmd := exec.Command(path, tool.VersionArgs...)
		output, err := cmd.Output()
		if err != nil {
			return fmt.Errorf("failed to run %s: %w", tool.Name, err)
		}

		if !tool.Validate(string(output)) {
			return fmt.Errorf("invalid version of %s detected", tool.Name)
		}

		utils.LogVerbose("✓ %s found at %s", tool.Name, path)
	}

	for _, tool := range optionalTools {
		path, err := exec.LookPath(tool.Name)
		if err != nil {
			utils.LogVerbose("Optional tool %s not found: %v", tool.Name, err)
			continue
		}

		cmd := exec.Command(path, tool.VersionArgs...)
		output, err := cmd.CombinedOutput()
		if err != nil {
			utils.LogVerbose("Optional tool %s found but couldn't verify version: %v", tool.Name, err)
			continue
		}

		if !tool.Validate(string(output)) {
			utils.LogVerbose("Optional tool %s found but may not be the correct version", tool.Name)
			continue
		}

		utils.LogVerbose("✓ Optional tool %s found at %s", tool.Name, path)
	}

	return nil
}

// ValidateEnvVars checks if all required environment variables are set
func ValidateEnvVars() error {
	for _, envVar := range requiredEnvVars {
		value := os.Getenv(envVar)
		if value == "" {
			return fmt.Errorf("environment variable %s not set", envVar)
		}

		// Don't print the actual value
		utils.LogVerbose("✓ %s is set", envVar)
	}

	for _, envVar := range optionalEnvVars {
		if os.Getenv(envVar) == "" {
			utils.LogVerbose("Optional variable %s is not set", envVar)
		}
	}

	return nil
}
