// Package cli implements the awardd command-line interface using Cobra.
// Each subcommand maps to one daemon capability (serve, eval, awards, etc.).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "awardd",
	Short: "awardd: household award evaluation engine",
	Long: `awardd evaluates badges, achievements and challenges for household
members whenever their points, chores or rewards change.

Configuration lives in ~/.awardd/config.toml (AWARDD_HOME overrides the
directory) and AWARDD_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at info level for one-shot commands")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
