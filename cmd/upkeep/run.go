package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/upkeep-sh/upkeep/internal/common/config"
	"github.com/upkeep-sh/upkeep/internal/common/logger"
	"github.com/upkeep-sh/upkeep/internal/common/output"
	"github.com/upkeep-sh/upkeep/internal/common/sysexec"
	"github.com/upkeep-sh/upkeep/internal/cycle"
	"github.com/upkeep-sh/upkeep/internal/history"
	"github.com/upkeep-sh/upkeep/internal/hooks"
	"github.com/upkeep-sh/upkeep/internal/notify"
	"github.com/upkeep-sh/upkeep/internal/preflight"
	"github.com/upkeep-sh/upkeep/internal/schedule"
	"github.com/upkeep-sh/upkeep/internal/syspkg"
)

// app bundles the components one invocation needs
type app struct {
	cfg     *config.Config
	gate    *schedule.Gate
	runner  *cycle.Runner
	cleanup func()
}

// loadConfig reads and validates the config, honoring the --config flag
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFrom(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setupFileLog attaches the rotating log file. Failure keeps the run
// alive; terminal output still works.
func setupFileLog(cfg *config.Config) {
	path, err := cfg.LogPath()
	if err != nil || path == "" {
		return
	}

	if err := logger.EnableFileLogging(path, logger.FileOptions{
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		logger.Warn("file logging disabled: %v", err)
	}
}

// buildGate wires the update gate from configuration
func buildGate(cfg *config.Config) (*schedule.Gate, error) {
	recordPath, err := cfg.RecordPath()
	if err != nil {
		return nil, err
	}
	store := schedule.NewStore(recordPath)
	return schedule.NewGate(store, schedule.WithThreshold(cfg.Interval())), nil
}

// buildApp wires everything a maintenance run needs
func buildApp(cfg *config.Config) (*app, error) {
	gate, err := buildGate(cfg)
	if err != nil {
		return nil, err
	}

	checker := preflight.NewChecker(preflight.Config{
		ProbeURL:     cfg.Preflight.ProbeURL,
		ProbeTimeout: cfg.ProbeTimeout(),
		DiskPath:     cfg.Preflight.DiskPath,
		MinFreeBytes: uint64(cfg.Preflight.MinFreeMB) * 1024 * 1024,
	})

	apt := syspkg.NewAptRunner(cfg.Apt.Binary, os.Stdout, os.Stderr)

	var flatpak syspkg.FlatpakExecutor
	if cfg.Flatpak.Enabled {
		flatpak = syspkg.NewFlatpakRunner(cfg.Flatpak.Binary, os.Stdout, os.Stderr)
	}

	// A malformed hook catalog is fatal: silently running a cycle while
	// skipping the user's snapshot hook would be worse than stopping.
	hooksPath, err := cfg.HooksPath()
	if err != nil {
		return nil, err
	}
	catalog, err := hooks.Load(hooksPath)
	if err != nil {
		return nil, err
	}

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Notify.Enabled {
		notifier = notify.New()
	}
	cleanup := func() {
		if c, ok := notifier.(io.Closer); ok {
			c.Close()
		}
	}

	opts := []cycle.RunnerOption{
		cycle.WithHooks(catalog, hooks.NewShellRunner(os.Stdout, os.Stderr)),
		cycle.WithNotifier(notifier),
		cycle.WithStepTimeout(cfg.StepTimeout()),
	}

	if histPath, err := cfg.HistoryPath(); err == nil && histPath != "" {
		opts = append(opts, cycle.WithHistory(history.Open(histPath)))
	}

	return &app{
		cfg:     cfg,
		gate:    gate,
		runner:  cycle.NewRunner(gate, checker, apt, flatpak, opts...),
		cleanup: cleanup,
	}, nil
}

// runCycle is the root command: check the gate and, when due, run the
// full update sequence
func runCycle(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("loading config: %v", err)
		os.Exit(1)
	}

	setupFileLog(cfg)

	a, err := buildApp(cfg)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	if dryRun {
		printPlan(a)
		a.cleanup()
		return
	}

	res, runErr := a.runner.Run(cmd.Context(), force)
	a.cleanup()
	printRunOutcome(res, runErr)

	if runErr != nil {
		logger.Close()
		os.Exit(sysexec.ExitCode(runErr))
	}
}

// printPlan shows the gate decision and the steps a run would execute
func printPlan(a *app) {
	d := a.gate.Check()
	if d.Due {
		output.PrintInfo("Maintenance is due: %s", d.Reason)
	} else {
		output.PrintInfo("No maintenance due (%s); the steps below would need --force", d.Reason)
	}

	output.Println(output.Header, "Planned steps:")
	for i, p := range a.runner.Plan() {
		if p.Skipped {
			output.Printf(output.Dim, "  %2d. %s (skipped: %s)\n", i+1, p.Name, p.SkipReason)
		} else {
			fmt.Printf("  %2d. %s\n", i+1, p.Name)
		}
	}
}

// printRunOutcome renders the end-of-run summary
func printRunOutcome(res *cycle.Result, runErr error) {
	if runErr != nil {
		if res.Status == history.StatusAborted {
			output.PrintWarning("Maintenance aborted: %v", runErr)
		} else {
			output.PrintError("Maintenance failed: %v", runErr)
		}
		return
	}

	// An empty status means the gate said not due and nothing ran
	if res.Status == "" {
		output.PrintInfo("No maintenance due (%s)", res.Decision.Reason)
		if !res.Decision.NextDue.IsZero() {
			output.Printf(output.Dim, "Next due %s\n", res.Decision.NextDue.Format("2006-01-02 15:04"))
		}
		return
	}

	for _, w := range res.Warnings {
		output.PrintWarning("%s", w)
	}
	output.PrintSuccess("Maintenance complete: %d steps in %s",
		len(res.ExecutedSteps()),
		schedule.FormatDuration(res.FinishedAt.Sub(res.StartedAt)))
}
