package syspkg

import "context"

// MockApt implements AptExecutor for testing.
// Each method can be configured with a custom function to control behavior.
type MockApt struct {
	UpdateFunc      func(ctx context.Context) error
	UpgradeFunc     func(ctx context.Context) error
	FullUpgradeFunc func(ctx context.Context) error
	AutoremoveFunc  func(ctx context.Context) error
	CleanFunc       func(ctx context.Context) error
}

// Update refreshes the package index
func (m *MockApt) Update(ctx context.Context) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx)
	}
	return nil
}

// Upgrade installs available upgrades without removing packages
func (m *MockApt) Upgrade(ctx context.Context) error {
	if m.UpgradeFunc != nil {
		return m.UpgradeFunc(ctx)
	}
	return nil
}

// FullUpgrade installs upgrades, adding or removing packages as needed
func (m *MockApt) FullUpgrade(ctx context.Context) error {
	if m.FullUpgradeFunc != nil {
		return m.FullUpgradeFunc(ctx)
	}
	return nil
}

// Autoremove removes packages that are no longer required
func (m *MockApt) Autoremove(ctx context.Context) error {
	if m.AutoremoveFunc != nil {
		return m.AutoremoveFunc(ctx)
	}
	return nil
}

// Clean clears the downloaded package cache
func (m *MockApt) Clean(ctx context.Context) error {
	if m.CleanFunc != nil {
		return m.CleanFunc(ctx)
	}
	return nil
}

// Ensure MockApt implements AptExecutor interface
var _ AptExecutor = (*MockApt)(nil)

// MockFlatpak implements FlatpakExecutor for testing.
// Available defaults to true when AvailableFunc is unset.
type MockFlatpak struct {
	AvailableFunc func() bool
	UpdateFunc    func(ctx context.Context) error
}

// Available reports whether the flatpak binary is installed
func (m *MockFlatpak) Available() bool {
	if m.AvailableFunc != nil {
		return m.AvailableFunc()
	}
	return true
}

// Update updates all installed Flatpak applications and runtimes
func (m *MockFlatpak) Update(ctx context.Context) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx)
	}
	return nil
}

// Ensure MockFlatpak implements FlatpakExecutor interface
var _ FlatpakExecutor = (*MockFlatpak)(nil)
