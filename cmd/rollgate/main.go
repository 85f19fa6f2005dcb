// Package main provides the entry point for the rollgate CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rollgate/cmd/rollgate/commands"
	"github.com/Sumatoshi-tech/rollgate/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rollgate",
		Short: "Rollgate - quality-gated rollout controller",
		Long: `Rollgate controls per-category publish limits for an automated content
pipeline. Trailing quality metrics drive promotions up a publish-limit
ladder; policy and deploy cutoffs disable categories.

Commands:
  run       Execute one daily rollout cycle
  backfill  Replay historical metrics through the evaluation path
  report    Summarize trailing quality and rollout state
  mcp       Serve rollout status tools over MCP stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewBackfillCommand())
	rootCmd.AddCommand(commands.NewReportCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "rollgate %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
