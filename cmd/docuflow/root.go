package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docuflow",
	Short: "Intelligent document workflow routing",
	Long: `Docuflow routes document processing tasks to the cheapest execution
framework that can handle them, builds the matching agent workflow,
and runs it within the caller's tier quotas.

Submit a task with 'docuflow run', inspect quotas with
'docuflow tiers', and view configuration with 'docuflow config'.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tiersCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
