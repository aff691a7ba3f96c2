package cycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/upkeep-sh/upkeep/internal/common/logger"
	"github.com/upkeep-sh/upkeep/internal/common/sysexec"
	"github.com/upkeep-sh/upkeep/internal/history"
	"github.com/upkeep-sh/upkeep/internal/hooks"
	"github.com/upkeep-sh/upkeep/internal/notify"
	"github.com/upkeep-sh/upkeep/internal/schedule"
	"github.com/upkeep-sh/upkeep/internal/syspkg"
)

func TestMain(m *testing.M) {
	logger.Default().SetLevel(logger.LevelQuiet)
	os.Exit(m.Run())
}

// mockChecker implements PreflightChecker with recording and overrides
type mockChecker struct {
	calls       *[]string
	NetworkFunc func(ctx context.Context) error
	DiskFunc    func() error
}

func (m *mockChecker) CheckNetwork(ctx context.Context) error {
	if m.calls != nil {
		*m.calls = append(*m.calls, StepNetworkProbe)
	}
	if m.NetworkFunc != nil {
		return m.NetworkFunc(ctx)
	}
	return nil
}

func (m *mockChecker) CheckDisk() error {
	if m.calls != nil {
		*m.calls = append(*m.calls, StepDiskSpace)
	}
	if m.DiskFunc != nil {
		return m.DiskFunc()
	}
	return nil
}

// recordingApt returns a MockApt that appends each invoked step to calls
// and fails the steps named in fail.
func recordingApt(calls *[]string, fail map[string]error) *syspkg.MockApt {
	rec := func(name string) func(context.Context) error {
		return func(context.Context) error {
			*calls = append(*calls, name)
			return fail[name]
		}
	}
	return &syspkg.MockApt{
		UpdateFunc:      rec(StepAptUpdate),
		UpgradeFunc:     rec(StepAptUpgrade),
		FullUpgradeFunc: rec(StepAptFullUpgrade),
		AutoremoveFunc:  rec(StepAptAutoremove),
		CleanFunc:       rec(StepAptClean),
	}
}

func recordingFlatpak(calls *[]string, fail error) *syspkg.MockFlatpak {
	return &syspkg.MockFlatpak{
		UpdateFunc: func(context.Context) error {
			*calls = append(*calls, StepFlatpakUpdate)
			return fail
		},
	}
}

func newGate(t *testing.T) (*schedule.Gate, *schedule.Store) {
	t.Helper()
	store := schedule.NewStore(filepath.Join(t.TempDir(), "lastrun"))
	return schedule.NewGate(store), store
}

func TestRunNotDue(t *testing.T) {
	store := schedule.NewStore(filepath.Join(t.TempDir(), "lastrun"))
	if err := store.Save(time.Now()); err != nil {
		t.Fatal(err)
	}

	var calls []string
	r := NewRunner(
		schedule.NewGate(store),
		&mockChecker{calls: &calls},
		recordingApt(&calls, nil),
		recordingFlatpak(&calls, nil),
	)

	res, err := r.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Due {
		t.Error("Due = true right after a recorded run")
	}
	if len(calls) != 0 {
		t.Errorf("steps ran while not due: %v", calls)
	}
}

func TestRunFullSequenceOrder(t *testing.T) {
	gate, _ := newGate(t)

	var calls []string
	catalog := &hooks.Catalog{
		Pre:  []hooks.Hook{{Name: "snapshot", Command: "true"}},
		Post: []hooks.Hook{{Name: "cleanup", Command: "true"}},
	}
	hookRunner := &hooks.MockRunner{
		RunFunc: func(ctx context.Context, h hooks.Hook) error {
			calls = append(calls, "hook "+h.Name)
			return nil
		},
	}

	r := NewRunner(
		gate,
		&mockChecker{calls: &calls},
		recordingApt(&calls, nil),
		recordingFlatpak(&calls, nil),
		WithHooks(catalog, hookRunner),
	)

	res, err := r.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != history.StatusSuccess {
		t.Errorf("Status = %s, want success", res.Status)
	}

	want := []string{
		StepNetworkProbe,
		StepDiskSpace,
		"hook snapshot",
		StepAptUpdate,
		StepAptUpgrade,
		StepAptFullUpgrade,
		StepFlatpakUpdate,
		StepAptAutoremove,
		StepAptClean,
		"hook cleanup",
	}
	if len(calls) != len(want) {
		t.Fatalf("ran %d steps %v, want %d", len(calls), calls, len(want))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestRunRecordsSuccessWithinOneSecond(t *testing.T) {
	gate, store := newGate(t)

	var calls []string
	r := NewRunner(gate, &mockChecker{}, recordingApt(&calls, nil), recordingFlatpak(&calls, nil))

	before := time.Now()
	res, err := r.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Due {
		t.Fatal("first run should be due")
	}

	recorded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() after success: %v", err)
	}
	if diff := recorded.Sub(before); diff < -time.Second || diff > time.Second {
		t.Errorf("recorded time %v is %v away from now", recorded, diff)
	}
}

func TestRunFailureLeavesRecordUntouched(t *testing.T) {
	gate, store := newGate(t)

	var calls []string
	fail := map[string]error{StepAptUpgrade: errors.New("exit status 100")}
	r := NewRunner(gate, &mockChecker{}, recordingApt(&calls, fail), recordingFlatpak(&calls, nil))

	_, err := r.Run(context.Background(), false)
	if err == nil {
		t.Fatal("expected error from failing step")
	}

	if _, err := store.Load(); !errors.Is(err, schedule.ErrNoRecord) {
		t.Errorf("run record exists after a failed cycle (load err = %v)", err)
	}
}

func TestRunShortCircuitsOnFailure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	sequence := []string{
		StepAptUpdate,
		StepAptUpgrade,
		StepAptFullUpgrade,
		StepFlatpakUpdate,
		StepAptAutoremove,
		StepAptClean,
	}

	properties.Property("no step runs after the first failure", prop.ForAll(
		func(failIdx int) bool {
			store := schedule.NewStore(filepath.Join(t.TempDir(), "lastrun"))
			failing := sequence[failIdx]

			var calls []string
			var flatpakErr error
			fail := map[string]error{}
			if failing == StepFlatpakUpdate {
				flatpakErr = errors.New("boom")
			} else {
				fail[failing] = errors.New("boom")
			}

			r := NewRunner(
				schedule.NewGate(store),
				&mockChecker{},
				recordingApt(&calls, fail),
				recordingFlatpak(&calls, flatpakErr),
			)

			res, err := r.Run(context.Background(), false)
			if err == nil {
				t.Log("expected a step failure")
				return false
			}
			if res.FailedStep != failing {
				t.Logf("FailedStep = %q, want %q", res.FailedStep, failing)
				return false
			}

			// Every step before the failing one ran, none after it
			want := sequence[:failIdx+1]
			if len(calls) != len(want) {
				t.Logf("calls = %v, want %v", calls, want)
				return false
			}
			for i := range want {
				if calls[i] != want[i] {
					return false
				}
			}

			// A failed cycle must not look like a success later
			if _, loadErr := store.Load(); !errors.Is(loadErr, schedule.ErrNoRecord) {
				t.Log("run record written despite failure")
				return false
			}
			return true
		},
		gen.IntRange(0, len(sequence)-1),
	))

	properties.TestingRun(t)
}

func TestRunPreflightFailureAborts(t *testing.T) {
	gate, _ := newGate(t)

	var calls []string
	checker := &mockChecker{
		calls:       &calls,
		NetworkFunc: func(context.Context) error { return errors.New("no route to host") },
	}
	histLog := history.Open(filepath.Join(t.TempDir(), "history.json"))

	r := NewRunner(gate, checker, recordingApt(&calls, nil), recordingFlatpak(&calls, nil),
		WithHistory(histLog))

	res, err := r.Run(context.Background(), false)
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Status != history.StatusAborted {
		t.Errorf("Status = %s, want aborted", res.Status)
	}
	if res.FailedStep != StepNetworkProbe {
		t.Errorf("FailedStep = %q, want %q", res.FailedStep, StepNetworkProbe)
	}

	// Nothing beyond the probe may have run
	if len(calls) != 1 || calls[0] != StepNetworkProbe {
		t.Errorf("calls = %v, want just the probe", calls)
	}

	last, ok := histLog.Last()
	if !ok {
		t.Fatal("aborted cycle not recorded in history")
	}
	if last.Status != history.StatusAborted {
		t.Errorf("history status = %s, want aborted", last.Status)
	}
}

func TestRunPropagatesCommandExitCode(t *testing.T) {
	gate, _ := newGate(t)

	var calls []string
	fail := map[string]error{
		StepAptFullUpgrade: &sysexec.CommandError{
			Name:     "apt-get",
			Args:     []string{"full-upgrade", "-y"},
			ExitCode: 100,
			Err:      errors.New("exit status 100"),
		},
	}
	histLog := history.Open(filepath.Join(t.TempDir(), "history.json"))

	r := NewRunner(gate, &mockChecker{}, recordingApt(&calls, fail), recordingFlatpak(&calls, nil),
		WithHistory(histLog))

	_, err := r.Run(context.Background(), false)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := sysexec.ExitCode(err); got != 100 {
		t.Errorf("ExitCode(err) = %d, want 100", got)
	}

	last, _ := histLog.Last()
	if last.ExitCode != 100 {
		t.Errorf("history exit code = %d, want 100", last.ExitCode)
	}
}

func TestRunFlatpakSkippedWhenUnavailable(t *testing.T) {
	gate, _ := newGate(t)

	var calls []string
	flatpak := recordingFlatpak(&calls, nil)
	flatpak.AvailableFunc = func() bool { return false }

	r := NewRunner(gate, &mockChecker{}, recordingApt(&calls, nil), flatpak)

	res, err := r.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != history.StatusSuccess {
		t.Errorf("Status = %s, want success despite missing flatpak", res.Status)
	}

	for _, c := range calls {
		if c == StepFlatpakUpdate {
			t.Error("flatpak update ran despite being unavailable")
		}
	}
	for _, s := range res.Steps {
		if s.Name == StepFlatpakUpdate {
			if !s.Skipped {
				t.Error("flatpak step not marked skipped")
			}
		}
	}
}

func TestRunFlatpakDisabled(t *testing.T) {
	gate, _ := newGate(t)

	var calls []string
	r := NewRunner(gate, &mockChecker{}, recordingApt(&calls, nil), nil)

	res, err := r.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != history.StatusSuccess {
		t.Errorf("Status = %s, want success", res.Status)
	}
}

func TestRunForcedWhenNotDue(t *testing.T) {
	store := schedule.NewStore(filepath.Join(t.TempDir(), "lastrun"))
	if err := store.Save(time.Now()); err != nil {
		t.Fatal(err)
	}
	histLog := history.Open(filepath.Join(t.TempDir(), "history.json"))

	var calls []string
	r := NewRunner(
		schedule.NewGate(store),
		&mockChecker{},
		recordingApt(&calls, nil),
		recordingFlatpak(&calls, nil),
		WithHistory(histLog),
	)

	res, err := r.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Due {
		t.Error("Due = true, the gate should still say not due")
	}
	if len(calls) == 0 {
		t.Fatal("forced run executed nothing")
	}

	last, _ := histLog.Last()
	if last.Trigger != history.TriggerForced {
		t.Errorf("history trigger = %s, want forced", last.Trigger)
	}
}

func TestRunNotifications(t *testing.T) {
	t.Run("success is normal urgency", func(t *testing.T) {
		gate, _ := newGate(t)
		notifier := &notify.MockNotifier{}

		var calls []string
		r := NewRunner(gate, &mockChecker{}, recordingApt(&calls, nil), recordingFlatpak(&calls, nil),
			WithNotifier(notifier))

		if _, err := r.Run(context.Background(), false); err != nil {
			t.Fatal(err)
		}
		if len(notifier.Sent) != 1 {
			t.Fatalf("sent %d notifications, want 1", len(notifier.Sent))
		}
		if notifier.Sent[0].Urgency != notify.UrgencyNormal {
			t.Errorf("urgency = %d, want normal", notifier.Sent[0].Urgency)
		}
	})

	t.Run("failure is critical and names the step", func(t *testing.T) {
		gate, _ := newGate(t)
		notifier := &notify.MockNotifier{}

		var calls []string
		fail := map[string]error{StepAptUpdate: errors.New("mirror unreachable")}
		r := NewRunner(gate, &mockChecker{}, recordingApt(&calls, fail), recordingFlatpak(&calls, nil),
			WithNotifier(notifier))

		if _, err := r.Run(context.Background(), false); err == nil {
			t.Fatal("expected error")
		}
		if len(notifier.Sent) != 1 {
			t.Fatalf("sent %d notifications, want 1", len(notifier.Sent))
		}
		sent := notifier.Sent[0]
		if sent.Urgency != notify.UrgencyCritical {
			t.Errorf("urgency = %d, want critical", sent.Urgency)
		}
		if !strings.Contains(sent.Body, StepAptUpdate) {
			t.Errorf("body = %q, should name the failed step", sent.Body)
		}
	})

	t.Run("notifier errors are not fatal", func(t *testing.T) {
		gate, _ := newGate(t)
		notifier := &notify.MockNotifier{
			NotifyFunc: func(context.Context, string, string, notify.Urgency) error {
				return errors.New("no daemon")
			},
		}

		var calls []string
		r := NewRunner(gate, &mockChecker{}, recordingApt(&calls, nil), recordingFlatpak(&calls, nil),
			WithNotifier(notifier))

		if _, err := r.Run(context.Background(), false); err != nil {
			t.Errorf("Run() error = %v, notification failure must not fail the cycle", err)
		}
	})
}

func TestRunHookFailureAborts(t *testing.T) {
	t.Run("failing pre hook stops the sequence", func(t *testing.T) {
		gate, store := newGate(t)

		var calls []string
		catalog := &hooks.Catalog{Pre: []hooks.Hook{{Name: "snapshot", Command: "false"}}}
		hookRunner := &hooks.MockRunner{
			RunFunc: func(ctx context.Context, h hooks.Hook) error {
				calls = append(calls, "hook "+h.Name)
				return errors.New("snapshot failed")
			},
		}

		r := NewRunner(gate, &mockChecker{calls: &calls}, recordingApt(&calls, nil), recordingFlatpak(&calls, nil),
			WithHooks(catalog, hookRunner))

		res, err := r.Run(context.Background(), false)
		if err == nil {
			t.Fatal("expected error from failing hook")
		}
		if res.Status != history.StatusFailed {
			t.Errorf("Status = %s, want failed", res.Status)
		}
		if res.FailedStep != "pre hook: snapshot" {
			t.Errorf("FailedStep = %q", res.FailedStep)
		}

		// No package operation may have run
		want := []string{StepNetworkProbe, StepDiskSpace, "hook snapshot"}
		if len(calls) != len(want) {
			t.Errorf("calls = %v, want %v", calls, want)
		}
		if _, loadErr := store.Load(); !errors.Is(loadErr, schedule.ErrNoRecord) {
			t.Error("run record written despite hook failure")
		}
	})

	t.Run("post hooks do not run after an apt failure", func(t *testing.T) {
		gate, _ := newGate(t)

		var calls []string
		catalog := &hooks.Catalog{Post: []hooks.Hook{{Name: "report", Command: "true"}}}
		hookRunner := &hooks.MockRunner{
			RunFunc: func(ctx context.Context, h hooks.Hook) error {
				calls = append(calls, "hook "+h.Name)
				return nil
			},
		}
		fail := map[string]error{StepAptClean: errors.New("cache locked")}

		r := NewRunner(gate, &mockChecker{}, recordingApt(&calls, fail), recordingFlatpak(&calls, nil),
			WithHooks(catalog, hookRunner))

		if _, err := r.Run(context.Background(), false); err == nil {
			t.Fatal("expected error")
		}
		for _, c := range calls {
			if c == "hook report" {
				t.Error("post hook ran after a failed apt step")
			}
		}
	})
}

func TestRunRecordWriteFailureIsWarning(t *testing.T) {
	// Point the record inside a path blocked by a regular file, so the
	// post-success save fails while everything else works.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	store := schedule.NewStore(filepath.Join(blocker, "lastrun"))

	var calls []string
	r := NewRunner(schedule.NewGate(store), &mockChecker{}, recordingApt(&calls, nil), recordingFlatpak(&calls, nil))

	res, err := r.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v, record write failure must stay a warning", err)
	}
	if res.Status != history.StatusSuccess {
		t.Errorf("Status = %s, want success", res.Status)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning about the unwritable run record")
	}
}

func TestRunStepTimeout(t *testing.T) {
	gate, _ := newGate(t)

	var calls []string
	apt := recordingApt(&calls, nil)
	apt.UpdateFunc = func(ctx context.Context) error {
		calls = append(calls, StepAptUpdate)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
			return nil
		}
	}

	r := NewRunner(gate, &mockChecker{}, apt, recordingFlatpak(&calls, nil),
		WithStepTimeout(50*time.Millisecond))

	res, err := r.Run(context.Background(), false)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded in chain", err)
	}
	if res.FailedStep != StepAptUpdate {
		t.Errorf("FailedStep = %q", res.FailedStep)
	}
}

func TestPlan(t *testing.T) {
	gate, _ := newGate(t)

	flatpak := &syspkg.MockFlatpak{AvailableFunc: func() bool { return false }}
	catalog := &hooks.Catalog{Post: []hooks.Hook{{Name: "report", Command: "true"}}}

	r := NewRunner(gate, &mockChecker{}, &syspkg.MockApt{}, flatpak,
		WithHooks(catalog, &hooks.MockRunner{}))

	plan := r.Plan()

	want := []string{
		StepNetworkProbe,
		StepDiskSpace,
		StepAptUpdate,
		StepAptUpgrade,
		StepAptFullUpgrade,
		StepFlatpakUpdate,
		StepAptAutoremove,
		StepAptClean,
		"post hook: report",
	}
	if len(plan) != len(want) {
		t.Fatalf("plan has %d steps, want %d", len(plan), len(want))
	}
	for i, p := range plan {
		if p.Name != want[i] {
			t.Errorf("plan[%d] = %q, want %q", i, p.Name, want[i])
		}
	}

	for _, p := range plan {
		if p.Name == StepFlatpakUpdate && !p.Skipped {
			t.Error("plan should mark the flatpak step skipped")
		}
	}
}

func TestRunHistoryOnSuccess(t *testing.T) {
	gate, _ := newGate(t)
	histLog := history.Open(filepath.Join(t.TempDir(), "history.json"))

	var calls []string
	r := NewRunner(gate, &mockChecker{}, recordingApt(&calls, nil), recordingFlatpak(&calls, nil),
		WithHistory(histLog))

	res, err := r.Run(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID == "" {
		t.Error("RunID not set after recording history")
	}

	last, ok := histLog.Last()
	if !ok {
		t.Fatal("cycle not recorded")
	}
	if last.ID != res.RunID {
		t.Errorf("history ID = %q, want %q", last.ID, res.RunID)
	}
	if last.Status != history.StatusSuccess || last.Trigger != history.TriggerDue {
		t.Errorf("entry = %+v", last)
	}
	if len(last.Steps) != len(res.ExecutedSteps()) {
		t.Errorf("history steps = %v", last.Steps)
	}
}
