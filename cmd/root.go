package cmd

import (
	"github.com/dreamreel/dreamreel/internal/utils"
	"github.com/spf13/cobra"
)

var (
	// verbosityLevel is the command-line flag for setting the log level
	verbosityLevel string
)

var rootCmd = &cobra.Command{
	Use:   "dreamreel",
	Short: "An automated short-form video production pipeline",
	Long: `DreamReel turns a one-line topic into a published vertical video.
It scripts with an LLM, generates imagery and motion through browser
agents, narrates, scores, renders with ffmpeg and publishes to YouTube,
all driven by configurable YAML workflows.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set the global log level based on the flag
		logLevel := utils.LogLevelFromString(verbosityLevel)
		utils.SetLogLevel(logLevel)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Initialize global flags
	rootCmd.PersistentFlags().StringVarP(&verbosityLevel, "log-level", "l", "normal",
		"Set the logging verbosity level: quiet, normal, verbose, debug")
}
