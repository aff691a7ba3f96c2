package syspkg

import (
	"context"
	"io"

	"github.com/upkeep-sh/upkeep/internal/common/sysexec"
)

// DefaultAptBinary is the apt executable used when none is configured
const DefaultAptBinary = "apt-get"

// AptRunner executes apt-get subcommands non-interactively
type AptRunner struct {
	binary string
	exec   *sysexec.Runner
}

// NewAptRunner creates an AptRunner that streams command output to the
// given writers. DEBIAN_FRONTEND=noninteractive is set for every command
// so apt never stops to prompt during an unattended run.
func NewAptRunner(binary string, stdout, stderr io.Writer) *AptRunner {
	if binary == "" {
		binary = DefaultAptBinary
	}
	return &AptRunner{
		binary: binary,
		exec: sysexec.New(
			sysexec.WithOutput(stdout, stderr),
			sysexec.WithEnv("DEBIAN_FRONTEND=noninteractive"),
		),
	}
}

// Update refreshes the package index
func (a *AptRunner) Update(ctx context.Context) error {
	return a.exec.Run(ctx, a.binary, "update")
}

// Upgrade installs available upgrades without removing packages
func (a *AptRunner) Upgrade(ctx context.Context) error {
	return a.exec.Run(ctx, a.binary, "upgrade", "-y")
}

// FullUpgrade installs upgrades, adding or removing packages as needed
func (a *AptRunner) FullUpgrade(ctx context.Context) error {
	return a.exec.Run(ctx, a.binary, "full-upgrade", "-y")
}

// Autoremove removes packages that are no longer required
func (a *AptRunner) Autoremove(ctx context.Context) error {
	return a.exec.Run(ctx, a.binary, "autoremove", "-y")
}

// Clean clears the downloaded package cache
func (a *AptRunner) Clean(ctx context.Context) error {
	return a.exec.Run(ctx, a.binary, "clean")
}

// Ensure AptRunner implements AptExecutor interface
var _ AptExecutor = (*AptRunner)(nil)
