package cmd

import (
	"fmt"

	"github.com/dreamreel/dreamreel/internal/config"
	"github.com/dreamreel/dreamreel/internal/utils"
	"github.com/dreamreel/dreamreel/internal/validator"
	"github.com/dreamreel/dreamreel/internal/workflow"

	"github.com/spf13/cobra"
)

var validateWorkflowPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate environment setup",
	Long:  `Check if all required external tools and configurations are properly set up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		utils.LogInfo("Validating environment...")

		// Validate external tools (ffmpeg, etc.)
		if err := validator.ValidateExternalTools(); err != nil {
			return fmt.Errorf("external tools validation failed: %w", err)
		}
		utils.LogSuccess("External tools: OK")

		// Validate environment variables for the LLM stages
		if err := validator.ValidateEnvVars(); err != nil {
			return fmt.Errorf("environment variables validation failed: %w", err)
		}
		utils.LogSuccess("Environment variables: OK")

		// Optionally validate a workflow file step by step
		if validateWorkflowPath != "" {
			inputConfig, err := config.NewInputConfig("", "", validateWorkflowPath, false, "")
			if err != nil {
				return fmt.Errorf("invalid workflow path: %w", err)
			}
			wf, err := workflow.LoadFromFile(inputConfig)
			if err != nil {
				return fmt.Errorf("failed to load workflow: %w", err)
			}
			if err := wf.Validate(); err != nil {
				return fmt.Errorf("workflow validation failed: %w", err)
			}
			utils.LogSuccess("Workflow %s: OK", wf.Name)
		}

		utils.LogSuccess("Environment validation completed successfully")
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateWorkflowPath, "workflow", "w", "", "Workflow YAML file to validate step by step")
	rootCmd.AddCommand(validateCmd)
}
