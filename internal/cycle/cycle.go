// Package cycle orchestrates one maintenance cycle: the gate decision,
// pre-flight checks, the fixed update sequence, and the bookkeeping and
// notifications around it.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upkeep-sh/upkeep/internal/common/logger"
	"github.com/upkeep-sh/upkeep/internal/common/sysexec"
	"github.com/upkeep-sh/upkeep/internal/history"
	"github.com/upkeep-sh/upkeep/internal/hooks"
	"github.com/upkeep-sh/upkeep/internal/notify"
	"github.com/upkeep-sh/upkeep/internal/schedule"
	"github.com/upkeep-sh/upkeep/internal/syspkg"
)

// Step names as they appear in logs, history and error messages
const (
	StepNetworkProbe   = "network probe"
	StepDiskSpace      = "disk space"
	StepAptUpdate      = "apt-get update"
	StepAptUpgrade     = "apt-get upgrade"
	StepAptFullUpgrade = "apt-get full-upgrade"
	StepFlatpakUpdate  = "flatpak update"
	StepAptAutoremove  = "apt-get autoremove"
	StepAptClean       = "apt-get clean"
)

// PreflightChecker validates the host before the sequence runs
type PreflightChecker interface {
	CheckNetwork(ctx context.Context) error
	CheckDisk() error
}

// StepResult is one step of an executed cycle
type StepResult struct {
	// Name is the step's fixed name
	Name string
	// Duration is how long the step ran
	Duration time.Duration
	// Skipped is true when the step did not run at all
	Skipped bool
	// SkipReason says why a skipped step was skipped
	SkipReason string
}

// Result describes the outcome of one Run invocation
type Result struct {
	// RunID identifies the cycle in the history log; empty when nothing ran
	RunID string
	// Due is the gate's verdict
	Due bool
	// Decision carries the gate's full reasoning
	Decision schedule.Decision
	// Trigger is why the cycle ran
	Trigger history.Trigger
	// Status is the recorded outcome; empty when the gate said not due
	Status history.Status
	// Steps lists every step in sequence order, executed or skipped
	Steps []StepResult
	// FailedStep names the step that stopped the cycle, if any
	FailedStep string
	// Warnings lists non-fatal problems (record write, notification, history)
	Warnings []string
	// StartedAt and FinishedAt bound the cycle
	StartedAt  time.Time
	FinishedAt time.Time
}

// ExecutedSteps returns the names of the steps that actually ran
func (r *Result) ExecutedSteps() []string {
	var names []string
	for _, s := range r.Steps {
		if !s.Skipped {
			names = append(names, s.Name)
		}
	}
	return names
}

// Runner executes maintenance cycles with injected collaborators, so the
// whole sequence can be tested without touching a real system.
type Runner struct {
	gate       *schedule.Gate
	checker    PreflightChecker
	apt        syspkg.AptExecutor
	flatpak    syspkg.FlatpakExecutor
	catalog    *hooks.Catalog
	hookRunner hooks.Runner
	notifier   notify.Notifier
	log        *history.Log
	// stepTimeout bounds each step; zero disables the limit
	stepTimeout time.Duration
	// nowFunc allows injecting time for testing
	nowFunc func() time.Time
}

// RunnerOption is a functional option for configuring Runner
type RunnerOption func(*Runner)

// WithHooks sets the hook catalog and the runner that executes it
func WithHooks(catalog *hooks.Catalog, runner hooks.Runner) RunnerOption {
	return func(r *Runner) {
		r.catalog = catalog
		r.hookRunner = runner
	}
}

// WithNotifier sets the desktop notifier
func WithNotifier(n notify.Notifier) RunnerOption {
	return func(r *Runner) {
		r.notifier = n
	}
}

// WithHistory sets the history log cycles are recorded to
func WithHistory(l *history.Log) RunnerOption {
	return func(r *Runner) {
		r.log = l
	}
}

// WithStepTimeout bounds each step with a deadline
func WithStepTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.stepTimeout = d
	}
}

// WithNowFunc sets a custom time function for testing
func WithNowFunc(fn func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.nowFunc = fn
	}
}

// NewRunner creates a Runner. A nil flatpak executor means the Flatpak
// step is disabled by configuration rather than by absence.
func NewRunner(gate *schedule.Gate, checker PreflightChecker, apt syspkg.AptExecutor, flatpak syspkg.FlatpakExecutor, opts ...RunnerOption) *Runner {
	r := &Runner{
		gate:     gate,
		checker:  checker,
		apt:      apt,
		flatpak:  flatpak,
		catalog:  &hooks.Catalog{},
		notifier: notify.NoopNotifier{},
		nowFunc:  time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// step is one element of the fixed sequence
type step struct {
	name string
	// preflight steps run before any system state is touched; their
	// failure aborts rather than fails the cycle
	preflight bool
	// skip, when set, lets a step excuse itself
	skip func() (bool, string)
	run  func(context.Context) error
}

// sequence builds the fixed step list in execution order
func (r *Runner) sequence() []step {
	steps := []step{
		{name: StepNetworkProbe, preflight: true, run: r.checker.CheckNetwork},
		{name: StepDiskSpace, preflight: true, run: func(context.Context) error { return r.checker.CheckDisk() }},
	}

	for _, h := range r.catalog.Pre {
		hook := h
		steps = append(steps, step{
			name: "pre hook: " + hook.Name,
			run:  func(ctx context.Context) error { return r.hookRunner.Run(ctx, hook) },
		})
	}

	steps = append(steps,
		step{name: StepAptUpdate, run: r.apt.Update},
		step{name: StepAptUpgrade, run: r.apt.Upgrade},
		step{name: StepAptFullUpgrade, run: r.apt.FullUpgrade},
		step{
			name: StepFlatpakUpdate,
			skip: func() (bool, string) {
				if r.flatpak == nil {
					return true, "disabled in configuration"
				}
				if !r.flatpak.Available() {
					return true, "flatpak not installed"
				}
				return false, ""
			},
			run: func(ctx context.Context) error { return r.flatpak.Update(ctx) },
		},
		step{name: StepAptAutoremove, run: r.apt.Autoremove},
		step{name: StepAptClean, run: r.apt.Clean},
	)

	for _, h := range r.catalog.Post {
		hook := h
		steps = append(steps, step{
			name: "post hook: " + hook.Name,
			run:  func(ctx context.Context) error { return r.hookRunner.Run(ctx, hook) },
		})
	}

	return steps
}

// StepPlan is one entry of the dry-run plan
type StepPlan struct {
	Name       string
	Skipped    bool
	SkipReason string
}

// Plan returns the steps a cycle would execute, without running anything
func (r *Runner) Plan() []StepPlan {
	var plan []StepPlan
	for _, s := range r.sequence() {
		p := StepPlan{Name: s.name}
		if s.skip != nil {
			p.Skipped, p.SkipReason = s.skip()
		}
		plan = append(plan, p)
	}
	return plan
}

// Run executes one maintenance cycle. When the gate says not due and
// force is false, nothing runs and the returned error is nil. When the
// cycle runs, the error reflects the first failing step, if any; the
// Result always describes what happened in full.
func (r *Runner) Run(ctx context.Context, force bool) (*Result, error) {
	decision := r.gate.Check()

	res := &Result{
		Due:       decision.Due,
		Decision:  decision,
		Trigger:   history.TriggerDue,
		StartedAt: r.nowFunc(),
	}
	if force {
		res.Trigger = history.TriggerForced
	}

	if !decision.Due && !force {
		logger.Info("no maintenance due: %s", decision.Reason)
		res.FinishedAt = r.nowFunc()
		return res, nil
	}

	if force && !decision.Due {
		logger.Info("maintenance forced (%s)", decision.Reason)
	} else {
		logger.Info("maintenance due: %s", decision.Reason)
	}

	steps := r.sequence()
	total := len(steps)

	for i, s := range steps {
		if s.skip != nil {
			if skipped, reason := s.skip(); skipped {
				logger.Info("step %d/%d: %s skipped (%s)", i+1, total, s.name, reason)
				res.Steps = append(res.Steps, StepResult{Name: s.name, Skipped: true, SkipReason: reason})
				continue
			}
		}

		logger.Info("step %d/%d: %s", i+1, total, s.name)

		start := r.nowFunc()
		err := r.runStep(ctx, s)
		elapsed := r.nowFunc().Sub(start)

		if err != nil {
			logger.Error("step %s failed: %v", s.name, err)
			res.FailedStep = s.name
			res.FinishedAt = r.nowFunc()
			if s.preflight {
				res.Status = history.StatusAborted
			} else {
				res.Status = history.StatusFailed
			}

			stepErr := fmt.Errorf("%s: %w", s.name, err)
			r.finish(ctx, res, stepErr)
			return res, stepErr
		}

		res.Steps = append(res.Steps, StepResult{Name: s.name, Duration: elapsed})
	}

	res.Status = history.StatusSuccess
	res.FinishedAt = r.nowFunc()

	// The cycle succeeded; a record write failure must not undo that
	if err := r.gate.RecordSuccess(); err != nil {
		logger.Warn("run record not updated: %v", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("run record not updated: %v", err))
	}

	r.finish(ctx, res, nil)
	logger.Info("maintenance cycle complete (%d steps, %s)",
		len(res.ExecutedSteps()), schedule.FormatDuration(res.FinishedAt.Sub(res.StartedAt)))

	return res, nil
}

// runStep executes a single step, applying the per-step timeout when set
func (r *Runner) runStep(ctx context.Context, s step) error {
	if r.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
	}
	return s.run(ctx)
}

// finish records the cycle in the history log and notifies the user.
// Both are best-effort; problems become warnings on the Result.
func (r *Runner) finish(ctx context.Context, res *Result, stepErr error) {
	if r.log != nil {
		entry := history.Entry{
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
			Status:     res.Status,
			Trigger:    res.Trigger,
			Steps:      res.ExecutedSteps(),
			FailedStep: res.FailedStep,
		}
		if stepErr != nil {
			entry.Error = stepErr.Error()
			entry.ExitCode = sysexec.ExitCode(stepErr)
		}

		stored, err := r.log.Append(entry)
		if err != nil {
			logger.Warn("history not recorded: %v", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("history not recorded: %v", err))
		} else {
			res.RunID = stored.ID
		}
	}

	summary, body, urgency := notification(res, stepErr)
	if err := r.notifier.Notify(ctx, summary, body, urgency); err != nil {
		logger.Debug("notification not delivered: %v", err)
	}
}

// notification builds the user-facing message for a finished cycle
func notification(res *Result, stepErr error) (summary, body string, urgency notify.Urgency) {
	switch res.Status {
	case history.StatusSuccess:
		summary = "System maintenance complete"
		body = fmt.Sprintf("%d steps finished in %s",
			len(res.ExecutedSteps()), schedule.FormatDuration(res.FinishedAt.Sub(res.StartedAt)))
		urgency = notify.UrgencyNormal
	case history.StatusAborted:
		summary = "System maintenance skipped"
		body = fmt.Sprintf("%s check did not pass: %v", res.FailedStep, errors.Unwrap(stepErr))
		urgency = notify.UrgencyNormal
	default:
		summary = "System maintenance failed"
		body = fmt.Sprintf("%s failed: %v", res.FailedStep, errors.Unwrap(stepErr))
		urgency = notify.UrgencyCritical
	}
	return summary, body, urgency
}
