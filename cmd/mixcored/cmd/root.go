package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mixcored",
	Short: "Multi-stream audio mixing engine",
	Long: `mixcored drives the mixing engine core: open a sink, add one or more
decoded streams, mix them in real time, and report playback status.

Commands:
  - play: decode one file and play it through the default output device`,
}

// Execute runs the root command. Called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
