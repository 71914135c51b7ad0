package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags.
	verbose bool
	output  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "A workflow graph executor",
	Long: `Relay executes directed workflow graphs: nodes do the work,
conditional edges pick the path, and every run returns a structured
result with the full node history.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format (text, json, yaml)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
