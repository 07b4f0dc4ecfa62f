package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	demoMode    bool
	fixturePath string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "moves",
	Short: "moves - thesis-driven signal engine",
	Long: `moves Unified CLI

Turns investment theses into reviewable trade signals behind a
pre-trade risk gate, and learns from realized outcomes.

Usage:
  go run ./cmd/moves [command]

Examples:
  go run ./cmd/moves migrate
  go run ./cmd/moves api
  go run ./cmd/moves scan --demo
  go run ./cmd/moves signals list
  go run ./cmd/moves killswitch on --reason "drawdown"`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "use the in-memory store and the static oracle fixture")
	rootCmd.PersistentFlags().StringVar(&fixturePath, "fixture", "config/demo_book.yaml", "static oracle fixture (with --demo)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
