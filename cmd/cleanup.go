package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dreamreel/dreamreel/internal/browser"
	"github.com/dreamreel/dreamreel/internal/utils"

	"github.com/spf13/cobra"
)

var (
	outputDir     string
	profileDir    string
	keepLatest    int
	olderThanDays int
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up old run directories and stale browser locks",
	Long:  `Remove old workflow run folders based on age or count, and clear stale Chromium profile locks left by crashed runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if profileDir != "" {
			browser.ClearStaleLocks(profileDir)
			utils.LogSuccess("Cleared stale locks from profile %s", profileDir)
		}

		if outputDir == "" {
			if profileDir == "" {
				return fmt.Errorf("nothing to do: provide --dir or --profile")
			}
			return nil
		}

		entries, err := os.ReadDir(outputDir)
		if err != nil {
			return fmt.Errorf("failed to read output directory: %w", err)
		}

		type runDir struct {
			name    string
			modTime time.Time
		}
		var runs []runDir
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			runs = append(runs, runDir{name: entry.Name(), modTime: info.ModTime()})
		}

		if len(runs) == 0 {
			fmt.Println("No run directories found.")
			return nil
		}

		// Oldest first
		sort.Slice(runs, func(i, j int) bool {
			return runs[i].modTime.Before(runs[j].modTime)
		})

		toDelete := make(map[string]bool)

		if keepLatest > 0 && len(runs) > keepLatest {
			for _, run := range runs[:len(runs)-keepLatest] {
				toDelete[run.name] = true
			}
		}

		if olderThanDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -olderThanDays)
			for _, run := range runs {
				if run.modTime.Before(cutoff) {
					toDelete[run.name] = true
				}
			}
		}

		if len(toDelete) == 0 {
			fmt.Println("No directories to delete.")
			return nil
		}

		fmt.Printf("Found %d directories to delete:\n", len(toDelete))
		for _, run := range runs {
			if toDelete[run.name] {
				fmt.Printf("- %s\n", run.name)
			}
		}

		if cleanupDryRun {
			fmt.Println("Dry run - no directories were deleted.")
			return nil
		}

		for _, run := range runs {
			if !toDelete[run.name] {
				continue
			}
			fullPath := filepath.Join(outputDir, run.name)
			fmt.Printf("Deleting %s...\n", fullPath)
			if err := os.RemoveAll(fullPath); err != nil {
				fmt.Printf("Error deleting %s: %v\n", fullPath, err)
			}
		}

		fmt.Println("Cleanup completed.")
		return nil
	},
}

func init() {
	cleanupCmd.Flags().StringVarP(&outputDir, "dir", "d", "", "Output directory holding run folders")
	cleanupCmd.Flags().StringVarP(&profileDir, "profile", "p", "", "Browser profile directory to clear stale locks from")
	cleanupCmd.Flags().IntVarP(&keepLatest, "keep-latest", "k", 0, "Keep this many latest run directories")
	cleanupCmd.Flags().IntVarP(&olderThanDays, "older-than", "o", 0, "Delete run directories older than this many days")
	cleanupCmd.Flags().BoolVarP(&cleanupDryRun, "dry-run", "n", false, "Show what would be deleted without actually deleting")

	rootCmd.AddCommand(cleanupCmd)
}
