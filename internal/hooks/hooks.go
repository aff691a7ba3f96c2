// Package hooks loads and runs the user's pre/post commands from the
// hooks catalog. Hooks are optional; an absent catalog means none.
package hooks

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Error variables for catalog errors
var (
	// ErrMissingHookName is returned when a hook has no name
	ErrMissingHookName = errors.New("missing required field: name")
	// ErrMissingHookCommand is returned when a hook has no command
	ErrMissingHookCommand = errors.New("missing required field: command")
)

// Hook is one user-defined command run around the update sequence
type Hook struct {
	// Name identifies the hook in logs and history
	Name string `toml:"name"`
	// Command is the shell command line to run
	Command string `toml:"command"`
}

// Catalog holds the hooks from hooks.toml.
// Pre hooks run after pre-flight checks pass, before the first package
// operation; post hooks run after the last one, before success is recorded.
// Hook failures abort the cycle like any other step.
type Catalog struct {
	Pre  []Hook `toml:"pre"`
	Post []Hook `toml:"post"`
}

// Load reads the hook catalog from path. A missing file yields an empty
// catalog; a file that exists but cannot be parsed or validated is an
// error, since silently skipping misconfigured hooks would be worse.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("failed to read hook catalog: %w", err)
	}

	var catalog Catalog
	if err := toml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse hook catalog: %w", err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	return &catalog, nil
}

// Validate checks that every hook has a name and a command
func (c *Catalog) Validate() error {
	for i, h := range c.Pre {
		if err := validateHook(h); err != nil {
			return fmt.Errorf("pre hook %d: %w", i+1, err)
		}
	}
	for i, h := range c.Post {
		if err := validateHook(h); err != nil {
			return fmt.Errorf("post hook %d: %w", i+1, err)
		}
	}
	return nil
}

func validateHook(h Hook) error {
	if h.Name == "" {
		return ErrMissingHookName
	}
	if h.Command == "" {
		return fmt.Errorf("%w (hook %q)", ErrMissingHookCommand, h.Name)
	}
	return nil
}

// Empty reports whether the catalog has no hooks at all
func (c *Catalog) Empty() bool {
	return len(c.Pre) == 0 && len(c.Post) == 0
}
