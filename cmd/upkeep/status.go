package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/upkeep-sh/upkeep/internal/common/logger"
	"github.com/upkeep-sh/upkeep/internal/common/output"
	"github.com/upkeep-sh/upkeep/internal/history"
	"github.com/upkeep-sh/upkeep/internal/schedule"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show when maintenance last ran and when it is next due",
	Long:  `Display the last successful maintenance run, whether a new cycle is due, and the outcome of the most recent attempt.`,
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("loading config: %v", err)
		os.Exit(1)
	}

	gate, err := buildGate(cfg)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	d := gate.Check()

	// --quiet keeps the output to one parseable line
	if quiet {
		if d.Due {
			fmt.Printf("due last_run=%s\n", runStamp(d.LastRun))
		} else {
			fmt.Printf("not-due last_run=%s next_due=%s\n",
				runStamp(d.LastRun), d.NextDue.Format(time.RFC3339))
		}
		return
	}

	fmt.Println()
	output.Header.Println("Maintenance Status")
	fmt.Println()

	if d.LastRun.IsZero() {
		fmt.Println("  Last run: never")
	} else {
		fmt.Printf("  Last run: %s (%s ago)\n",
			d.LastRun.Format("2006-01-02 15:04"),
			schedule.FormatDuration(time.Since(d.LastRun)))
	}
	fmt.Printf("  Interval: %s\n", schedule.FormatDuration(gate.Threshold()))

	if histPath, err := cfg.HistoryPath(); err == nil {
		if last, ok := history.Open(histPath).Last(); ok {
			statusStr := output.Sprintf(output.OutcomeColor(string(last.Status)), "[%s]", last.Status)
			fmt.Printf("  Last cycle: %s %s, %d steps\n", statusStr, last.Trigger, len(last.Steps))
			if last.FailedStep != "" {
				output.Error.Printf("    failed at %s (exit %d)\n", last.FailedStep, last.ExitCode)
			}
		}
	}

	if recordPath, err := cfg.RecordPath(); err == nil {
		output.Dim.Printf("  Record: %s\n", recordPath)
	}

	fmt.Println()
	if d.Due {
		output.PrintWarning("Maintenance is due (%s)", d.Reason)
		output.Info.Println("Run 'upkeep' to start a cycle now")
	} else {
		output.PrintSuccess("Up to date, next due %s", d.NextDue.Format("2006-01-02 15:04"))
	}
}

// runStamp renders a last-run time for the machine-friendly status line
func runStamp(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
