// Package schedule decides whether a maintenance cycle is due and persists
// the timestamp of the last successful one.
package schedule

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Error variables for run-record errors
var (
	// ErrNoRecord is returned when no run record exists yet
	ErrNoRecord = errors.New("no run record")
	// ErrRecordInvalid is returned when the run record cannot be parsed
	ErrRecordInvalid = errors.New("run record is invalid")
)

// Store persists the last successful run as a Unix timestamp, the sole
// content of a single plain-text file.
type Store struct {
	// path is the file the timestamp is persisted to
	path string
}

// NewStore creates a Store backed by the given file path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the run-record file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the last successful run time.
// ErrNoRecord means no cycle has ever completed on this host;
// ErrRecordInvalid means a file exists but its content is not a
// non-negative integer timestamp.
func (s *Store) Load() (time.Time, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, ErrNoRecord
		}
		return time.Time{}, fmt.Errorf("failed to read run record: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrRecordInvalid, raw)
	}
	if secs < 0 {
		return time.Time{}, fmt.Errorf("%w: negative timestamp %d", ErrRecordInvalid, secs)
	}

	return time.Unix(secs, 0), nil
}

// Save persists t as the new last-run timestamp, replacing any prior value.
// The write goes to a temp file first so a crash never leaves a truncated
// record behind.
func (s *Store) Save(t time.Time) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data := []byte(strconv.FormatInt(t.Unix(), 10) + "\n")

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		// Clean up temp file on rename failure
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename run record: %w", err)
	}

	return nil
}
