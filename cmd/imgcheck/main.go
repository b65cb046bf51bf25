package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/anime-shed/profile-image-analyzer/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := NewCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// NewCLI builds the imgcheck command tree.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "imgcheck",
		Short:         "Score profile images for quality, crops and content",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze PATH|URL [PATH|URL...]",
		Short: "Analyze one or more images",
		Args:  cobra.MinimumNArgs(1),
		RunE:  AnalyzeHandler,
	}
	analyzeCmd.Flags().Bool("no-quality", false, "Skip the quality assessment")
	analyzeCmd.Flags().Bool("no-crops", false, "Skip crop suggestions")
	analyzeCmd.Flags().Bool("no-nsfw", false, "Skip content detection")
	analyzeCmd.Flags().String("mode", "full", "Analysis mode (full, quality, crops, content, fast)")
	analyzeCmd.Flags().StringP("format", "f", "table", "Output format (table, json, yaml)")
	analyzeCmd.Flags().String("export-crops", "", "Write every suggested crop as PNG into this directory")
	analyzeCmd.Flags().IntP("workers", "w", runtime.NumCPU(), "Number of images analyzed concurrently")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "imgcheck version %s\n", config.Version)
		},
	}

	rootCmd.AddCommand(analyzeCmd, versionCmd)
	return rootCmd
}
