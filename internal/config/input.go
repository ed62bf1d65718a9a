package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InputConfig holds the configuration for a production run
type InputConfig struct {
	TopicPath    string // Optional topic/idea file seeding the script stage
	OutputPath   string
	WorkflowPath string
	RetryMode    bool
	WorkflowName string
	TopicFile    string
	TopicExt     string
}

// NewInputConfig creates a new input configuration
func NewInputConfig(topicPath, outputPath, workflowPath string, retryMode bool, workflowName string) (*InputConfig, error) {
	config := &InputConfig{
		TopicPath:    topicPath,
		OutputPath:   outputPath,
		WorkflowPath: workflowPath,
		RetryMode:    retryMode,
		WorkflowName: workflowName,
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate performs comprehensive validation of the input configuration
func (c *InputConfig) validate() error {
	// Validate workflow path
	if c.WorkflowPath == "" {
		return fmt.Errorf("workflow path is required")
	}
	if _, err := os.Stat(c.WorkflowPath); os.IsNotExist(err) {
		return fmt.Errorf("workflow file does not exist: %s", c.WorkflowPath)
	}

	// Validate topic path if provided
	if c.TopicPath != "" {
		fileInfo, err := os.Stat(c.TopicPath)
		if err != nil {
			return fmt.Errorf("topic path does not exist: %w", err)
		}
		if fileInfo.IsDir() {
			return fmt.Errorf("topic must be a file, not a directory: %s", c.TopicPath)
		}
		c.TopicFile = filepath.Base(c.TopicPath)
		c.TopicExt = strings.ToLower(filepath.Ext(c.TopicPath))
	}

	// Validate output path
	if c.OutputPath != "" {
		fileInfo, err := os.Stat(c.OutputPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to access output path: %w", err)
			}
			// Create output directory if it doesn't exist
			if err := os.MkdirAll(c.OutputPath, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		} else if !fileInfo.IsDir() {
			return fmt.Errorf("output must be a directory, not a file: %s", c.OutputPath)
		}
	}

	// Validate retry mode requirements
	if c.RetryMode {
		if c.OutputPath == "" {
			return fmt.Errorf("output path is required when using retry mode")
		}
		if c.WorkflowName == "" {
			return fmt.Errorf("workflow name is required when using retry mode")
		}
	}

	return nil
}

// IsValidTopicFile checks if the topic file has a supported extension
func (c *InputConfig) IsValidTopicFile() bool {
	validExts := map[string]bool{
		".txt":  true,
		".md":   true,
		".yaml": true,
		".yml":  true,
	}
	return validExts[c.TopicExt]
}
