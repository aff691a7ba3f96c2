// Package preflight validates the host before any package state is mutated.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sys/unix"
)

// Error variables for pre-flight failures
var (
	// ErrNetworkUnreachable is returned when the probe URL cannot be reached
	ErrNetworkUnreachable = errors.New("network unreachable")
	// ErrLowDiskSpace is returned when free space is below the configured floor
	ErrLowDiskSpace = errors.New("insufficient disk space")
)

// DefaultProbeTimeout bounds the network probe when none is configured
const DefaultProbeTimeout = 10 * time.Second

// Config holds the endpoints and thresholds for pre-flight checks
type Config struct {
	// ProbeURL is requested once to confirm the network is up
	ProbeURL string
	// ProbeTimeout bounds the probe request
	ProbeTimeout time.Duration
	// DiskPath is the filesystem whose free space is checked
	DiskPath string
	// MinFreeBytes is the free-space floor below which the run aborts
	MinFreeBytes uint64
}

// Checker runs the pre-flight validations: one network probe and one
// free-space check. Both must pass before the update sequence starts.
type Checker struct {
	cfg    Config
	client *http.Client
	// statfs allows injecting filesystem stats for testing
	statfs func(path string, st *unix.Statfs_t) error
}

// CheckerOption is a functional option for configuring Checker
type CheckerOption func(*Checker)

// WithHTTPClient sets a custom HTTP client for the network probe
func WithHTTPClient(client *http.Client) CheckerOption {
	return func(c *Checker) {
		c.client = client
	}
}

// WithStatfs sets a custom statfs function for testing
func WithStatfs(fn func(path string, st *unix.Statfs_t) error) CheckerOption {
	return func(c *Checker) {
		c.statfs = fn
	}
}

// NewChecker creates a Checker for the given configuration
func NewChecker(cfg Config, opts ...CheckerOption) *Checker {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}

	c := &Checker{
		cfg:    cfg,
		statfs: unix.Statfs,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		c.client = &http.Client{Timeout: cfg.ProbeTimeout}
	}

	return c
}

// CheckNetwork performs a single HEAD request against the probe URL.
// Any HTTP response proves reachability, whatever its status; only a
// transport failure counts as unreachable. The probe runs once, as the
// point is a quick go/no-go answer, not endpoint health.
func (c *Checker) CheckNetwork(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.ProbeURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return nil
}

// CheckDisk verifies the free space on the download filesystem is not
// below the configured floor. A floor of zero disables the check.
func (c *Checker) CheckDisk() error {
	if c.cfg.MinFreeBytes == 0 {
		return nil
	}

	var st unix.Statfs_t
	if err := c.statfs(c.cfg.DiskPath, &st); err != nil {
		return fmt.Errorf("failed to stat filesystem %s: %w", c.cfg.DiskPath, err)
	}

	free := st.Bavail * uint64(st.Bsize)
	if free < c.cfg.MinFreeBytes {
		return fmt.Errorf("%w: %s free on %s, floor is %s",
			ErrLowDiskSpace, formatBytes(free), c.cfg.DiskPath, formatBytes(c.cfg.MinFreeBytes))
	}

	return nil
}

// formatBytes renders a byte count in binary units
func formatBytes(n uint64) string {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)

	switch {
	case n >= gib:
		return fmt.Sprintf("%.1f GiB", float64(n)/gib)
	case n >= mib:
		return fmt.Sprintf("%.1f MiB", float64(n)/mib)
	case n >= kib:
		return fmt.Sprintf("%.1f KiB", float64(n)/kib)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
