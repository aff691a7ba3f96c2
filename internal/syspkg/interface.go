package syspkg

import "context"

// AptExecutor defines the interface for apt package operations.
// This interface allows for mocking apt invocations in tests.
type AptExecutor interface {
	// Update refreshes the package index
	Update(ctx context.Context) error

	// Upgrade installs available upgrades without removing packages
	Upgrade(ctx context.Context) error

	// FullUpgrade installs upgrades, adding or removing packages as needed
	FullUpgrade(ctx context.Context) error

	// Autoremove removes packages that are no longer required
	Autoremove(ctx context.Context) error

	// Clean clears the downloaded package cache
	Clean(ctx context.Context) error
}

// FlatpakExecutor defines the interface for Flatpak operations
type FlatpakExecutor interface {
	// Available reports whether the flatpak binary is installed.
	// A missing binary means the Flatpak step is skipped, not failed.
	Available() bool

	// Update updates all installed Flatpak applications and runtimes
	Update(ctx context.Context) error
}
