package syspkg

import (
	"context"
	"io"
	"os/exec"

	"github.com/upkeep-sh/upkeep/internal/common/sysexec"
)

// DefaultFlatpakBinary is the flatpak executable used when none is configured
const DefaultFlatpakBinary = "flatpak"

// FlatpakRunner executes flatpak subcommands non-interactively
type FlatpakRunner struct {
	binary   string
	exec     *sysexec.Runner
	lookPath func(string) (string, error)
}

// NewFlatpakRunner creates a FlatpakRunner that streams command output to
// the given writers.
func NewFlatpakRunner(binary string, stdout, stderr io.Writer) *FlatpakRunner {
	if binary == "" {
		binary = DefaultFlatpakBinary
	}
	return &FlatpakRunner{
		binary:   binary,
		exec:     sysexec.New(sysexec.WithOutput(stdout, stderr)),
		lookPath: exec.LookPath,
	}
}

// Available reports whether the flatpak binary can be found.
// Hosts without Flatpak are common; absence is not an error.
func (f *FlatpakRunner) Available() bool {
	_, err := f.lookPath(f.binary)
	return err == nil
}

// Update updates all installed Flatpak applications and runtimes
func (f *FlatpakRunner) Update(ctx context.Context) error {
	return f.exec.Run(ctx, f.binary, "update", "-y")
}

// Ensure FlatpakRunner implements FlatpakExecutor interface
var _ FlatpakExecutor = (*FlatpakRunner)(nil)
