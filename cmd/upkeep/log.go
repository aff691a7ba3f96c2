package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upkeep-sh/upkeep/internal/common/logger"
	"github.com/upkeep-sh/upkeep/internal/common/output"
)

var (
	// logLines caps how many log lines are shown
	logLines int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the tail of the maintenance log",
	Long:  `Print the most recent lines of the maintenance log file. Rotated backups are not included.`,
	Run:   runLog,
}

func init() {
	logCmd.Flags().IntVarP(&logLines, "lines", "n", 20, "Number of lines to show (0 for all)")

	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("loading config: %v", err)
		os.Exit(1)
	}

	path, err := cfg.LogPath()
	if err != nil {
		logger.Error("resolving log path: %v", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			output.PrintInfo("No log written yet (%s)", path)
			return
		}
		logger.Error("reading log: %v", err)
		os.Exit(1)
	}

	for _, line := range tailLines(string(data), logLines) {
		fmt.Println(line)
	}
}

// tailLines returns the last n lines of s, ignoring a trailing newline.
// A non-positive n returns all lines.
func tailLines(s string, n int) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
