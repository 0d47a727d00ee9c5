// Package cli implements the ghostxp command-line interface using Cobra.
// Every subcommand opens the configured store directly; only serve starts
// the HTTP API and the background loops.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "ghostxp",
	Short: "ghostxp: progression and rules engine",
	Long: `ghostxp tracks XP, levels, streaks, quests, evolution stages and
leaderboards for Ghost accounts.

Run 'ghostxp serve' for the HTTP API, or use the subcommands to inspect and
adjust accounts from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warn")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
