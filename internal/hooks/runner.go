package hooks

import (
	"context"
	"io"

	"github.com/upkeep-sh/upkeep/internal/common/sysexec"
)

// Runner executes hooks.
// This interface allows for mocking hook execution in tests.
type Runner interface {
	// Run executes a single hook to completion
	Run(ctx context.Context, h Hook) error
}

// ShellRunner executes hooks through the shell, so catalog entries can
// use pipes, redirection and environment expansion.
type ShellRunner struct {
	exec *sysexec.Runner
}

// NewShellRunner creates a ShellRunner that streams hook output to the
// given writers.
func NewShellRunner(stdout, stderr io.Writer) *ShellRunner {
	return &ShellRunner{
		exec: sysexec.New(sysexec.WithOutput(stdout, stderr)),
	}
}

// Run executes the hook's command line via sh -c
func (r *ShellRunner) Run(ctx context.Context, h Hook) error {
	return r.exec.Run(ctx, "sh", "-c", h.Command)
}

// Ensure ShellRunner implements Runner interface
var _ Runner = (*ShellRunner)(nil)

// MockRunner implements Runner for testing
type MockRunner struct {
	RunFunc func(ctx context.Context, h Hook) error
	// Ran records the hooks passed to Run, in order
	Ran []Hook
}

// Run records the hook and delegates to RunFunc when set
func (m *MockRunner) Run(ctx context.Context, h Hook) error {
	m.Ran = append(m.Ran, h)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, h)
	}
	return nil
}

// Ensure MockRunner implements Runner interface
var _ Runner = (*MockRunner)(nil)
