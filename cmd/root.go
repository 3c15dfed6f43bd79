// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for mindstudio-local.
// It implements subcommands to run the tunnel, inspect local model servers, manage the
// API key and edit configuration, using the Cobra CLI framework with a pterm terminal UI.
package cmd

import (
	"fmt"
	"os"

	"mindstudio/local/internal/backend"

	"github.com/spf13/cobra"
)

var (
	showVersion bool
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mindstudio-local",
	Short: "Run MindStudio models on your own machine",
	Long: `mindstudio-local connects model servers running on this machine (Ollama, LM Studio,
Stable Diffusion web UI, ComfyUI) to MindStudio. Requests made in MindStudio for a local
model are picked up by this tunnel, executed locally, and streamed back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		backend.UserAgent = "mindstudio-local/" + Version
		if verbose {
			os.Setenv("MINDSTUDIO_VERBOSE", "1")
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			printVersion()
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, presentError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
