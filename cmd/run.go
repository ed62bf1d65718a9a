package cmd

import (
	"fmt"

	"github.com/dreamreel/dreamreel/internal/config"
	"github.com/dreamreel/dreamreel/internal/utils"
	"github.com/dreamreel/dreamreel/internal/validator"
	"github.com/dreamreel/dreamreel/internal/workflow"

	"github.com/spf13/cobra"
)

var (
	workflowFilePath string
	topicFilePath    string
	outputFolderPath string
	retryFlag        bool
	workflowName     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a video production workflow",
	Long:  `Execute a video production workflow defined in a YAML file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Validate that external dependencies are installed
		if err := validator.ValidateExternalTools(); err != nil {
			return fmt.Errorf("dependency validation failed: %w", err)
		}

		inputConfig, err := config.NewInputConfig(topicFilePath, outputFolderPath, workflowFilePath, retryFlag, workflowName)
		if err != nil {
			return fmt.Errorf("invalid arguments: %w", err)
		}

		wf, err := workflow.LoadFromFile(inputConfig)
		if err != nil {
			return fmt.Errorf("failed to load workflow: %w", err)
		}

		if retryFlag {
			utils.LogInfo("Retrying workflow %s in output folder %s", workflowName, outputFolderPath)
			if err := wf.ExecuteRetry(); err != nil {
				return fmt.Errorf("workflow retry execution failed: %w", err)
			}
		} else {
			if err := wf.Execute(); err != nil {
				return fmt.Errorf("workflow execution failed: %w", err)
			}
		}

		utils.LogSuccess("Workflow completed successfully")
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&workflowFilePath, "workflow", "w", "", "Path to workflow YAML file (required)")
	runCmd.Flags().StringVarP(&topicFilePath, "topic", "t", "", "Topic file path (overrides the topic in the workflow file)")
	runCmd.Flags().StringVarP(&outputFolderPath, "output-folder", "o", "", "Output folder for run artifacts")
	runCmd.Flags().BoolVarP(&retryFlag, "retry", "r", false, "Retry a failed workflow execution")
	runCmd.Flags().StringVarP(&workflowName, "workflow-name", "n", "", "Name of the workflow that failed (required with --retry)")
	_ = runCmd.MarkFlagRequired("workflow")
	rootCmd.AddCommand(runCmd)
}
