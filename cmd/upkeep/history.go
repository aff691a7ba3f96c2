package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/upkeep-sh/upkeep/internal/common/logger"
	"github.com/upkeep-sh/upkeep/internal/common/output"
	"github.com/upkeep-sh/upkeep/internal/history"
	"github.com/upkeep-sh/upkeep/internal/schedule"
)

var (
	// historyLimit caps how many cycles are shown
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the outcomes of recent maintenance cycles",
	Long:  `List recent maintenance cycles with their outcome, trigger, and duration, newest first.`,
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of cycles to show (0 for all)")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("loading config: %v", err)
		os.Exit(1)
	}

	histPath, err := cfg.HistoryPath()
	if err != nil {
		logger.Error("resolving history path: %v", err)
		os.Exit(1)
	}

	entries := history.Open(histPath).List()
	displayHistory(entries, historyLimit)
}

// displayHistory formats and displays recorded cycles, newest first
func displayHistory(entries []history.Entry, limit int) {
	if len(entries) == 0 {
		logger.Info("No maintenance cycles recorded yet")
		return
	}

	total := len(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	fmt.Println()
	output.Header.Println("Maintenance History")
	fmt.Println()

	for _, e := range entries {
		statusStr := output.Sprintf(output.OutcomeColor(string(e.Status)), "[%s]", e.Status)
		fmt.Printf("  %s %s %s, %d steps, %s\n",
			e.StartedAt.Format("2006-01-02 15:04"),
			statusStr,
			e.Trigger,
			len(e.Steps),
			schedule.FormatDuration(e.FinishedAt.Sub(e.StartedAt)))
		if e.FailedStep != "" {
			output.Error.Printf("    failed at %s: %s\n", e.FailedStep, e.Error)
		}
	}

	fmt.Println()
	output.Info.Printf("Showing %d of %d recorded cycle(s)\n", len(entries), total)
}
