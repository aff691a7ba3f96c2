package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/upkeep-sh/upkeep/internal/common/logger"
	"github.com/upkeep-sh/upkeep/internal/common/output"
	"github.com/upkeep-sh/upkeep/internal/common/version"
)

var (
	verbose    bool
	quiet      bool
	noColor    bool
	configFile string

	force  bool
	dryRun bool
)

var rootCmd = &cobra.Command{
	Use:   "upkeep",
	Short: "Periodic system maintenance for Debian-based hosts",
	Long: `upkeep keeps a Debian-based system current by running the full apt
(and optionally Flatpak) update sequence once enough time has passed
since the last successful run.

Invoked with no arguments it checks whether maintenance is due and, if
so, runs the sequence: pre-flight checks, index refresh, upgrade, full
upgrade, Flatpak update, autoremove and cache clean. Wire it into a
login script, cron or a systemd timer; invocations that find nothing
due exit quickly.`,
	Version: version.Short(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Configure logging and color based on flags
		if verbose {
			logger.SetVerbose(true)
		}
		if quiet {
			logger.SetQuiet(true)
		}
		if noColor {
			output.NoColor()
		}
	},
	Run: runCycle,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.config/upkeep/config.yaml)")

	// Flags for the maintenance run itself
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "Run even when no maintenance is due")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the steps that would run without executing them")
}

func main() {
	defer logger.Close()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
