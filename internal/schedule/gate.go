package schedule

import (
	"errors"
	"fmt"
	"time"
)

// DefaultThreshold is how long after a successful cycle the next one
// becomes due. Six days rather than seven, so a weekly cadence never
// drifts into being permanently a little late.
const DefaultThreshold = 6 * 24 * time.Hour

// IsDue reports whether a new cycle is due. A zero lastRun means no cycle
// has ever succeeded, which is always due. Otherwise the elapsed time
// must strictly exceed the threshold.
func IsDue(now, lastRun time.Time, threshold time.Duration) bool {
	if lastRun.IsZero() {
		return true
	}
	return now.Sub(lastRun) > threshold
}

// Decision describes the gate's verdict for one invocation
type Decision struct {
	// Due is true when a cycle should run now
	Due bool
	// Reason is a human-readable explanation of the verdict
	Reason string
	// LastRun is the recorded last success; zero when no usable record exists
	LastRun time.Time
	// NextDue is when the next cycle becomes due; zero when already due
	NextDue time.Time
}

// Gate combines the run-record store with the threshold policy.
// Read failures of any kind fail open: a host that cannot prove it
// updated recently gets updated.
type Gate struct {
	store     *Store
	threshold time.Duration
	// nowFunc allows injecting time for testing
	nowFunc func() time.Time
}

// GateOption is a functional option for configuring Gate
type GateOption func(*Gate)

// WithThreshold overrides the default six-day threshold
func WithThreshold(d time.Duration) GateOption {
	return func(g *Gate) {
		g.threshold = d
	}
}

// WithNowFunc sets a custom time function for testing
func WithNowFunc(fn func() time.Time) GateOption {
	return func(g *Gate) {
		g.nowFunc = fn
	}
}

// NewGate creates a Gate over the given store
func NewGate(store *Store, opts ...GateOption) *Gate {
	g := &Gate{
		store:     store,
		threshold: DefaultThreshold,
		nowFunc:   time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Threshold returns the configured threshold
func (g *Gate) Threshold() time.Duration {
	return g.threshold
}

// Check reads the run record and decides whether a cycle is due
func (g *Gate) Check() Decision {
	now := g.nowFunc()

	lastRun, err := g.store.Load()
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			return Decision{Due: true, Reason: "no previous run recorded"}
		}
		return Decision{Due: true, Reason: fmt.Sprintf("run record unreadable (%v)", err)}
	}

	elapsed := now.Sub(lastRun)
	if IsDue(now, lastRun, g.threshold) {
		return Decision{
			Due:     true,
			Reason:  fmt.Sprintf("last run %s ago exceeds %s threshold", FormatDuration(elapsed), FormatDuration(g.threshold)),
			LastRun: lastRun,
		}
	}

	return Decision{
		Due:     false,
		Reason:  fmt.Sprintf("last run %s ago, within %s threshold", FormatDuration(elapsed), FormatDuration(g.threshold)),
		LastRun: lastRun,
		NextDue: lastRun.Add(g.threshold),
	}
}

// RecordSuccess persists the current time as the new last-run timestamp.
// Called only after the whole update sequence has completed.
func (g *Gate) RecordSuccess() error {
	return g.store.Save(g.nowFunc())
}

// FormatDuration renders a duration in the coarse units people think in:
// "6d", "3d 4h", "5h 12m", "42m", "<1m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return "<1m"
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0 && hours > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case days > 0:
		return fmt.Sprintf("%dd", days)
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
